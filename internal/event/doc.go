// Package event provides the race listing data model shared by the scraper,
// the availability enricher and the notification digest.
//
// A RaceEvent is created fresh on every pipeline run. It is mutated once, when
// the enricher attaches its AvailabilityRecord list, and discarded afterwards
// unless the run dumps the enriched list to JSON.
package event
