package scraper

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/race-alerts/internal/browser"
	"github.com/pfrederiksen/race-alerts/internal/event"
	"github.com/pfrederiksen/race-alerts/internal/logger"
)

const (
	PageTimeout    = 30 * time.Second
	ListingTimeout = 15 * time.Second
)

var datePattern = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)

// Options configures a Scraper
type Options struct {
	URL            string
	Selectors      Selectors
	PageTimeout    time.Duration
	ListingTimeout time.Duration
}

// Scraper handles rendering and parsing the listing page
type Scraper struct {
	launcher browser.Launcher
	opts     Options
	log      *logger.Logger
}

// New creates a new Scraper instance
func New(launcher browser.Launcher, opts Options, log *logger.Logger) *Scraper {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = PageTimeout
	}
	if opts.ListingTimeout <= 0 {
		opts.ListingTimeout = ListingTimeout
	}
	if log == nil {
		log = logger.Default()
	}
	return &Scraper{
		launcher: launcher,
		opts:     opts,
		log:      log.With(logger.Fields{"component": "scraper"}),
	}
}

// FetchEvents renders the listing page and returns its events without availability.
// It never fails: navigation, wait and extraction errors are logged and an empty
// list is returned.
func (s *Scraper) FetchEvents(ctx context.Context) []*event.RaceEvent {
	log := s.log.Ctx(ctx)
	events, err := s.fetch(ctx)
	if err != nil {
		log.Warn("Listing scrape failed", logger.Fields{"url": s.opts.URL}, err)
		return []*event.RaceEvent{}
	}

	log.Info("Scraped listing", logger.Fields{"url": s.opts.URL, "events": len(events)})
	return events
}

func (s *Scraper) fetch(ctx context.Context) (events []*event.RaceEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = fmt.Errorf("extracting listing: panic: %v", r)
		}
	}()

	sess, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	defer sess.Close()

	page, err := sess.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(s.opts.URL, s.opts.PageTimeout); err != nil {
		return nil, err
	}

	container := s.opts.Selectors.Container
	if err := page.WaitVisible(container, s.opts.ListingTimeout); err != nil {
		return nil, err
	}

	html, err := page.OuterHTML(container)
	if err != nil {
		return nil, fmt.Errorf("reading listing container: %w", err)
	}

	return s.parseEvents(strings.NewReader(html), s.opts.URL)
}

// parseEvents extracts events from the listing container markup
func (s *Scraper) parseEvents(r io.Reader, sourceURL string) ([]*event.RaceEvent, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	base, _ := url.Parse(sourceURL)
	sel := s.opts.Selectors
	events := make([]*event.RaceEvent, 0)

	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		evt := &event.RaceEvent{
			Title:         extractTitle(card),
			Date:          extractDate(card.Find(sel.Meta).Text()),
			Link:          event.LinkSentinel,
			Registrations: make([]event.RegistrationLink, 0),
		}

		if link := firstAttr(card, sel.Link); link != "" {
			evt.Link = resolve(base, link)
		}
		if img := firstAttr(card, sel.Image); img != "" {
			evt.Image = resolve(base, img)
		}

		// Registration URLs are kept as written so "#" placeholders survive
		card.Find(sel.BuyTicket).Find("a").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			evt.Registrations = append(evt.Registrations, event.RegistrationLink{
				Type: strings.TrimSpace(a.Text()),
				URL:  strings.TrimSpace(href),
			})
		})

		events = append(events, evt)
	})

	return events, nil
}

// extractTitle returns the trimmed text of the first heading in the card
func extractTitle(card *goquery.Selection) string {
	title := strings.TrimSpace(card.Find("h1, h2, h3, h4, h5, h6").First().Text())
	if title == "" {
		return event.TitleFallback
	}
	return title
}

// extractDate finds the first DD/MM/YYYY date in the metadata text
func extractDate(meta string) string {
	if match := datePattern.FindString(meta); match != "" {
		return match
	}
	return event.DateFallback
}

// firstAttr returns the first non-empty attribute among the candidates, in order
func firstAttr(card *goquery.Selection, candidates []Candidate) string {
	for _, c := range candidates {
		var value string
		card.Find(c.Selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			v, ok := el.Attr(c.Attr)
			v = strings.TrimSpace(v)
			if ok && v != "" {
				value = v
				return false
			}
			return true
		})
		if value != "" {
			return value
		}
	}
	return ""
}

// resolve makes ref absolute against the listing URL; "#" is left alone
func resolve(base *url.URL, ref string) string {
	if base == nil || ref == event.LinkSentinel {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
