package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/pfrederiksen/race-alerts/internal/event"
)

const priceFallback = "n/a"

// Match is one event with an available registration on the watched channel
type Match struct {
	Event  *event.RaceEvent
	Link   event.RegistrationLink
	Record event.AvailabilityRecord
}

// Key returns the notified-set identity of the match
func (m Match) Key() string {
	return event.NotificationKey(m.Event, m.Link)
}

// Matches returns the first available record of channel for every event, in event
// order, paired with the link that record was read from
func Matches(events []*event.RaceEvent, channel string) []Match {
	var matches []Match
	for _, evt := range events {
		for _, rec := range evt.Availability {
			if rec.Type != channel || !rec.IsAvailable {
				continue
			}
			link, _ := evt.SourceLink(rec)
			matches = append(matches, Match{Event: evt, Link: link, Record: rec})
			break
		}
	}
	return matches
}

// Options controls message composition
type Options struct {
	Subject string
	Channel string
}

// Message is a composed digest
type Message struct {
	Subject string
	HTML    string
}

type entry struct {
	Title string
	Date  string
	Image string
	URL   string
	Price string
	Notes []string
}

var bodyTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
<h2>{{.Heading}}</h2>
<p>{{.Count}} race{{if ne .Count 1}}s{{end}} with open registrations via <strong>{{.Channel}}</strong>:</p>
{{range .Entries}}<div style="border: 1px solid #ddd; border-radius: 6px; margin: 12px 0; padding: 12px;">
{{if .Image}}<img src="{{.Image}}" alt="{{.Title}}" style="max-width: 100%; height: auto;">
{{end}}<h3 style="margin: 8px 0;">{{.Title}}</h3>
<p>📅 {{.Date}}</p>
<p>💶 {{.Price}}</p>
{{range .Notes}}<p style="color: #666; font-size: 13px;">{{.}}</p>
{{end}}{{if .URL}}<p><a href="{{.URL}}">Register</a></p>
{{end}}</div>
{{end}}</body>
</html>
`))

// Compose builds the digest email for matches
func Compose(matches []Match, opts Options) (Message, error) {
	if len(matches) == 0 {
		return Message{}, fmt.Errorf("composing digest: no matches")
	}

	subject := opts.Subject
	if subject == "" {
		subject = "Race registrations available"
	}

	data := struct {
		Heading string
		Channel string
		Count   int
		Entries []entry
	}{
		Heading: subject,
		Channel: opts.Channel,
		Count:   len(matches),
	}

	for _, m := range matches {
		e := entry{
			Title: m.Event.Title,
			Date:  m.Event.Date,
			Image: m.Event.Image,
			URL:   m.Link.URL,
			Price: m.Record.Price,
			Notes: m.Record.Notes,
		}
		if strings.TrimSpace(e.Price) == "" {
			e.Price = priceFallback
		}
		if !m.Link.IsHTTP() {
			e.URL = ""
		}
		data.Entries = append(data.Entries, e)
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("rendering digest: %w", err)
	}

	return Message{
		Subject: fmt.Sprintf("%s (%d)", subject, len(matches)),
		HTML:    buf.String(),
	}, nil
}

// FormatSummary returns a one-line plain text summary for logs and dry runs
func FormatSummary(matches []Match, channel string) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No available registrations via %s", channel)
	}

	titles := make([]string, 0, len(matches))
	for _, m := range matches {
		titles = append(titles, m.Event.Title)
	}

	return fmt.Sprintf("%d race%s available via %s: %s",
		len(matches),
		pluralize(len(matches)),
		channel,
		strings.Join(titles, ", "))
}

func pluralize(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
