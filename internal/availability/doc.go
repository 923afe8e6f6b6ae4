// Package availability turns the info region of a registration page into an
// event.AvailabilityRecord.
//
// Extraction (DOM access through goquery) and classification are separate steps:
// Extract collects raw Signals from the markup, and Classify evaluates an ordered
// list of rules over those signals. The rules run top-down and stop at the first
// definitive "sold out" verdict, so a sold-out marker in the raw markup always
// wins over an "available" phrase found elsewhere in the text.
package availability
