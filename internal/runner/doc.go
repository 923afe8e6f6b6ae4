// Package runner executes the watcher pipeline and schedules it.
//
// A Pipeline run scrapes the listing, enriches every event with availability,
// and sends one digest when the watched payment channel has an open
// registration. A Runner repeats the pipeline on a fixed interval and never
// lets two runs overlap: a tick that fires while a run is in flight is skipped.
package runner
