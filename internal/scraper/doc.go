// Package scraper loads the race listing page in a headless browser and extracts
// the event cards it renders.
//
// The listing container is filled in by JavaScript, so the page is rendered with
// the browser package and the container's markup is then parsed with goquery.
// Any failure yields an empty list: callers treat that as "no events found".
package scraper
