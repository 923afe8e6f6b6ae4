package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pfrederiksen/race-alerts/internal/runner"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// OutputResult is the report printed after a single run
type OutputResult struct {
	CheckedAt   time.Time `json:"checked_at"`
	RunID       string    `json:"run_id"`
	Channel     string    `json:"channel"`
	EventCount  int       `json:"event_count"`
	Matches     int       `json:"matches"`
	AlreadySent int       `json:"already_sent,omitempty"`
	Notified    bool      `json:"notified"`
	DeliveryErr string    `json:"delivery_error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
}

// NewOutputResult converts a run result into a report
func NewOutputResult(res *runner.Result, channel string) *OutputResult {
	out := &OutputResult{
		CheckedAt:   time.Now().UTC(),
		RunID:       res.RunID,
		Channel:     channel,
		EventCount:  res.Events,
		Matches:     res.Matches,
		AlreadySent: res.AlreadySent,
		Notified:    res.Notified,
		DurationMS:  res.Duration.Milliseconds(),
	}
	if res.DeliveryErr != nil {
		out.DeliveryErr = res.DeliveryErr.Error()
	}
	return out
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult) error {
	fmt.Fprintf(w, "Checked %d event(s) at %s\n", result.EventCount, result.CheckedAt.Format(time.RFC3339))

	if result.Matches == 0 {
		fmt.Fprintf(w, "No available registrations via %s.\n", result.Channel)
		return nil
	}

	fmt.Fprintf(w, "Available via %s: %d event(s)\n", result.Channel, result.Matches)
	if result.AlreadySent > 0 {
		fmt.Fprintf(w, "Already notified: %d\n", result.AlreadySent)
	}

	switch {
	case result.Notified:
		fmt.Fprintln(w, "Digest sent.")
	case result.DeliveryErr != "":
		fmt.Fprintf(w, "Digest delivery failed: %s\n", result.DeliveryErr)
	default:
		fmt.Fprintln(w, "Nothing new to send.")
	}
	return nil
}
