// Package browser drives a headless Chrome instance for pages that only render
// their content with JavaScript.
//
// A Launcher starts one Session per scraping or enrichment pass. Each Session hands
// out Pages (browser tabs) which are owned and closed by the goroutine that opened
// them. Chrome is the only implementation; the browsertest subpackage provides an
// in-memory site for tests.
package browser
