package event

import (
	"crypto/sha1"
	"fmt"
	"strings"
)

// Fallback values used when a listing card is missing a field
const (
	TitleFallback = "no title"
	DateFallback  = "date unavailable"
	LinkSentinel  = "#"
)

// Status labels for synthetic availability records
const (
	StatusUnknown = "unknown"
	StatusError   = "error"
)

// RaceEvent represents one race listed on the source page
type RaceEvent struct {
	Title         string               `json:"title"`
	Date          string               `json:"date"`
	Link          string               `json:"link"`
	Image         string               `json:"image"`
	Registrations []RegistrationLink   `json:"registrationLinks"`
	Availability  []AvailabilityRecord `json:"availability,omitempty"` // nil until enrichment runs
}

// RegistrationLink is an outbound registration link keyed by its visible label
type RegistrationLink struct {
	Type string `json:"type"` // e.g. "PAY WITH CHANNEL", compared by exact match
	URL  string `json:"url"`
}

// AvailabilityRecord is the normalized verdict for one registration link
type AvailabilityRecord struct {
	Type        string   `json:"type,omitempty"`
	Price       string   `json:"price,omitempty"`
	Status      string   `json:"status,omitempty"`
	IsAvailable bool     `json:"isAvailable"`
	Notes       []string `json:"additionalInfo,omitempty"`

	URL string `json:"-"` // registration link the record was read from
}

// IsHTTP reports whether the link points at a page that can be visited.
// The "#" placeholder and non-HTTP schemes are excluded.
func (l RegistrationLink) IsHTTP() bool {
	if l.URL == LinkSentinel {
		return false
	}
	u := strings.ToLower(l.URL)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// HTTPLinks returns the registration links that qualify for enrichment, in list order
func (e *RaceEvent) HTTPLinks() []RegistrationLink {
	links := make([]RegistrationLink, 0, len(e.Registrations))
	for _, l := range e.Registrations {
		if l.IsHTTP() {
			links = append(links, l)
		}
	}
	return links
}

// LinkOfType returns the first HTTP registration link with exactly the given type
func (e *RaceEvent) LinkOfType(linkType string) (RegistrationLink, bool) {
	for _, l := range e.Registrations {
		if l.Type == linkType && l.IsHTTP() {
			return l, true
		}
	}
	return RegistrationLink{}, false
}

// SourceLink returns the HTTP registration link a record was read from. Records
// without a URL fall back to the first link of their type.
func (e *RaceEvent) SourceLink(rec AvailabilityRecord) (RegistrationLink, bool) {
	if rec.URL != "" {
		for _, l := range e.Registrations {
			if l.URL == rec.URL && l.Type == rec.Type && l.IsHTTP() {
				return l, true
			}
		}
	}
	return e.LinkOfType(rec.Type)
}

// UnknownRecord is appended when enrichment extracted no signal at all
func UnknownRecord() AvailabilityRecord {
	return AvailabilityRecord{
		Status:      StatusUnknown,
		IsAvailable: false,
	}
}

// ErrorRecord replaces the availability list when the per-event routine fails
func ErrorRecord(err error) AvailabilityRecord {
	rec := AvailabilityRecord{
		Status:      StatusError,
		IsAvailable: false,
	}
	if err != nil {
		rec.Notes = []string{err.Error()}
	}
	return rec
}

// NotificationKey creates a deterministic identity for an event and one of its
// registration links. Events have no identity across runs, so the key is derived
// from the fields that are stable on the listing page.
func NotificationKey(evt *RaceEvent, link RegistrationLink) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimSpace(evt.Title) + "|" + evt.Date + "|" + link.URL))
	return fmt.Sprintf("%x", h.Sum(nil))
}
