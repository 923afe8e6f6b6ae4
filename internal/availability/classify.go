package availability

import (
	"strings"

	"github.com/pfrederiksen/race-alerts/internal/event"
)

// Rule inspects the signals and updates the record in place. It returns true when
// it reached a definitive sold-out verdict, which stops evaluation.
type Rule struct {
	Name  string
	Apply func(sig Signals, lit Literals, rec *event.AvailabilityRecord) bool
}

// Rules returns the classification rules in precedence order (highest first)
func Rules() []Rule {
	return []Rule{
		{Name: "markup", Apply: markupRule},
		{Name: "status-element", Apply: statusRule},
		{Name: "text-scan", Apply: textRule},
	}
}

// Classify produces the availability record for one registration link.
// IsAvailable is true unless some rule finds a sold-out signal.
func Classify(sig Signals, linkType string, lit Literals) event.AvailabilityRecord {
	rec := event.AvailabilityRecord{
		Type:        linkType,
		Price:       sig.Price,
		IsAvailable: true,
		Notes:       Notes(sig.Paragraphs, lit),
	}

	for _, rule := range Rules() {
		if rule.Apply(sig, lit, &rec) {
			break
		}
	}

	return rec
}

// Notes keeps every paragraph that neither mentions the registrations marker nor
// starts with the price prefix
func Notes(paragraphs []string, lit Literals) []string {
	var notes []string
	for _, p := range paragraphs {
		lower := strings.ToLower(p)
		if lit.RegistrationsMarker != "" && strings.Contains(lower, strings.ToLower(lit.RegistrationsMarker)) {
			continue
		}
		if lit.PricePrefix != "" && strings.HasPrefix(lower, strings.ToLower(lit.PricePrefix)) {
			continue
		}
		notes = append(notes, p)
	}
	return notes
}

// markupRule: raw markup carries both the registrations and the sold-out marker
func markupRule(sig Signals, lit Literals, rec *event.AvailabilityRecord) bool {
	if lit.RegistrationsMarker == "" || lit.SoldOutMarker == "" {
		return false
	}
	markup := strings.ToLower(sig.Markup)
	if strings.Contains(markup, strings.ToLower(lit.RegistrationsMarker)) &&
		strings.Contains(markup, strings.ToLower(lit.SoldOutMarker)) {
		rec.IsAvailable = false
		rec.Status = lit.SoldOutStatus
		return true
	}
	return false
}

// statusRule: a status element reading exactly the sold-out label, otherwise its
// text becomes the status
func statusRule(sig Signals, lit Literals, rec *event.AvailabilityRecord) bool {
	if !sig.HasStatus {
		return false
	}
	if sig.Status == lit.StatusSoldOut {
		rec.IsAvailable = false
		setStatus(rec, lit.SoldOutStatus)
		return true
	}
	setStatus(rec, sig.Status)
	return false
}

// textRule: scan the whole region text, sold-out variants first
func textRule(sig Signals, lit Literals, rec *event.AvailabilityRecord) bool {
	text := strings.ToLower(sig.Text)

	if containsAny(text, lit.SoldOutVariants) {
		setStatus(rec, lit.SoldOutStatus)
		rec.IsAvailable = false
		return true
	}
	if containsAny(text, lit.AvailableVariants) {
		setStatus(rec, lit.AvailableStatus)
		rec.IsAvailable = true
	}
	return false
}

func setStatus(rec *event.AvailabilityRecord, status string) {
	if rec.Status == "" {
		rec.Status = status
	}
}

func containsAny(text string, variants []string) bool {
	for _, v := range variants {
		if v != "" && strings.Contains(text, strings.ToLower(v)) {
			return true
		}
	}
	return false
}
