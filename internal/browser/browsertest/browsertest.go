// Package browsertest provides an in-memory browser.Launcher for tests.
//
// A Site maps URLs to static HTML. Pages resolve selectors with goquery against
// the HTML of the last URL they navigated to, and the Site records how many
// pages were open at once.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/race-alerts/internal/browser"
)

// ErrNotFound is returned when navigating to a URL the site does not serve
var ErrNotFound = errors.New("net::ERR_NAME_NOT_RESOLVED")

// Site is a fake browser backed by static pages
type Site struct {
	mu sync.Mutex

	pages   map[string]string
	navErrs map[string]error
	panicOn map[string]bool
	delay   time.Duration

	LaunchErr  error
	NewPageErr error

	launches int
	sessions int
	open     int
	maxOpen  int
	opened   int
	closed   int
	visits   []string
}

// NewSite creates an empty site
func NewSite() *Site {
	return &Site{
		pages:   make(map[string]string),
		navErrs: make(map[string]error),
		panicOn: make(map[string]bool),
	}
}

// Handle serves html at url
func (s *Site) Handle(url, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = html
	return s
}

// Fail makes navigation to url return err
func (s *Site) Fail(url string, err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navErrs[url] = err
	return s
}

// Panic makes navigation to url panic
func (s *Site) Panic(url string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicOn[url] = true
	return s
}

// Delay makes every navigation take d
func (s *Site) Delay(d time.Duration) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	return s
}

// Launch implements browser.Launcher
func (s *Site) Launch(ctx context.Context) (browser.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launches++
	if s.LaunchErr != nil {
		return nil, s.LaunchErr
	}
	s.sessions++
	return &session{site: s}, nil
}

// Stats reports page bookkeeping
type Stats struct {
	Launches     int
	OpenSessions int
	PagesOpened  int
	PagesClosed  int
	MaxOpenPages int
	Visits       []string
}

// Stats returns a snapshot of the site's bookkeeping
func (s *Site) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Launches:     s.launches,
		OpenSessions: s.sessions,
		PagesOpened:  s.opened,
		PagesClosed:  s.closed,
		MaxOpenPages: s.maxOpen,
		Visits:       append([]string(nil), s.visits...),
	}
}

type session struct {
	site *Site
	once sync.Once
}

func (ss *session) NewPage() (browser.Page, error) {
	s := ss.site
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NewPageErr != nil {
		return nil, s.NewPageErr
	}
	s.opened++
	s.open++
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
	return &page{site: s}, nil
}

func (ss *session) Close() error {
	ss.once.Do(func() {
		ss.site.mu.Lock()
		ss.site.sessions--
		ss.site.mu.Unlock()
	})
	return nil
}

type page struct {
	site   *Site
	url    string
	doc    *goquery.Document
	closed bool
}

func (p *page) Navigate(url string, timeout time.Duration) error {
	s := p.site
	s.mu.Lock()
	s.visits = append(s.visits, url)
	html, ok := s.pages[url]
	navErr := s.navErrs[url]
	shouldPanic := s.panicOn[url]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if shouldPanic {
		panic(fmt.Sprintf("browsertest: page crashed at %s", url))
	}
	if navErr != nil {
		return &browser.NavigationError{URL: url, Op: "navigate", Err: navErr}
	}
	if !ok {
		return &browser.NavigationError{URL: url, Op: "navigate", Err: ErrNotFound}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return &browser.NavigationError{URL: url, Op: "navigate", Err: err}
	}
	p.url = url
	p.doc = doc
	return nil
}

func (p *page) WaitVisible(selector string, timeout time.Duration) error {
	if p.doc != nil && p.doc.Find(selector).Length() > 0 {
		return nil
	}
	return &browser.NavigationError{URL: p.url, Op: "wait for " + selector, Err: context.DeadlineExceeded}
}

func (p *page) Exists(selector string) (bool, error) {
	if p.doc == nil {
		return false, errors.New("browsertest: no document loaded")
	}
	return p.doc.Find(selector).Length() > 0, nil
}

func (p *page) OuterHTML(selector string) (string, error) {
	if p.doc == nil {
		return "", errors.New("browsertest: no document loaded")
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("browsertest: %s not found", selector)
	}
	return goquery.OuterHtml(sel)
}

func (p *page) Close() error {
	s := p.site
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	s.open--
	s.closed++
	return nil
}
