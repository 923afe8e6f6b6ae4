// Package enricher attaches availability records to scraped race events by
// visiting their registration links in a headless browser.
//
// Events are processed in windows of Options.Concurrency (see package batch), each
// event in its own tab. Link failures are isolated: a link that times out or cannot
// be read is logged and skipped, and an event whose routine fails outright gets a
// single "error" record instead of propagating the failure.
package enricher
