package enricher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pfrederiksen/race-alerts/internal/availability"
	"github.com/pfrederiksen/race-alerts/internal/batch"
	"github.com/pfrederiksen/race-alerts/internal/browser"
	"github.com/pfrederiksen/race-alerts/internal/event"
	"github.com/pfrederiksen/race-alerts/internal/logger"
	"github.com/pfrederiksen/race-alerts/internal/metrics"
	"golang.org/x/time/rate"
)

const NavTimeout = 30 * time.Second

// Options configures an Enricher
type Options struct {
	Concurrency int
	NavTimeout  time.Duration
	Selectors   availability.Selectors
	Literals    availability.Literals
	Limiter     *rate.Limiter // optional pacing of link navigations
}

// Enricher visits registration links and classifies their availability
type Enricher struct {
	launcher browser.Launcher
	opts     Options
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// New creates an Enricher. m may be nil.
func New(launcher browser.Launcher, opts Options, log *logger.Logger, m *metrics.Metrics) *Enricher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = batch.DefaultSize
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = NavTimeout
	}
	if log == nil {
		log = logger.Default()
	}
	return &Enricher{
		launcher: launcher,
		opts:     opts,
		log:      log.With(logger.Fields{"component": "enricher"}),
		metrics:  m,
	}
}

// LinkResult is the outcome of visiting one registration link. Record is nil when
// the page had no info region or the visit failed.
type LinkResult struct {
	Link   event.RegistrationLink
	Record *event.AvailabilityRecord
	Err    error
}

// OK reports whether the link was visited without error
func (r LinkResult) OK() bool {
	return r.Err == nil
}

// EnrichAll enriches every event using one browser session for the whole pass.
// The returned list has the same order as events.
func (e *Enricher) EnrichAll(ctx context.Context, events []*event.RaceEvent) []*event.RaceEvent {
	if !anyHTTPLinks(events) {
		return events
	}

	sess, err := e.launcher.Launch(ctx)
	if err != nil {
		e.log.Ctx(ctx).Error("Browser launch failed, marking events as errored", nil, err)
		for _, evt := range events {
			if len(evt.HTTPLinks()) > 0 {
				evt.Availability = []event.AvailabilityRecord{event.ErrorRecord(err)}
			}
		}
		return events
	}
	defer sess.Close()

	e.log.Ctx(ctx).Debug("Enriching events", logger.Fields{
		"events":  len(events),
		"windows": batch.Windows(len(events), e.opts.Concurrency),
	})

	return batch.Run(ctx, events, e.opts.Concurrency, func(ctx context.Context, _ int, evt *event.RaceEvent) *event.RaceEvent {
		return e.Enrich(ctx, sess, evt)
	})
}

// Enrich visits the HTTP registration links of one event in list order. Events
// without HTTP links are returned unchanged.
func (e *Enricher) Enrich(ctx context.Context, sess browser.Session, evt *event.RaceEvent) (out *event.RaceEvent) {
	links := evt.HTTPLinks()
	if len(links) == 0 {
		return evt
	}

	log := e.log.Ctx(ctx).With(logger.Fields{"event": evt.Title})

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("enriching event: panic: %v", r)
			log.Error("Enrichment failed", nil, err)
			evt.Availability = []event.AvailabilityRecord{event.ErrorRecord(err)}
			out = evt
		}
	}()

	page, err := sess.NewPage()
	if err != nil {
		log.Error("Opening page failed", nil, err)
		evt.Availability = []event.AvailabilityRecord{event.ErrorRecord(err)}
		return evt
	}
	defer page.Close()

	records := make([]event.AvailabilityRecord, 0, len(links))
	for _, link := range links {
		res := e.visitLink(ctx, page, link)
		if !res.OK() {
			e.metrics.LinkVisited(metrics.ResultFailed)
			log.Warn("Registration link skipped", logger.Fields{
				"type":    link.Type,
				"url":     link.URL,
				"timeout": IsTimeout(res.Err),
			}, res.Err)
			continue
		}
		e.metrics.LinkVisited(metrics.ResultOK)
		if res.Record != nil {
			records = append(records, *res.Record)
		}
	}

	if len(records) == 0 {
		records = append(records, event.UnknownRecord())
	}
	evt.Availability = records

	log.Debug("Event enriched", logger.Fields{"links": len(links), "records": len(records)})
	return evt
}

// visitLink navigates the event's page to one link and classifies its info region
func (e *Enricher) visitLink(ctx context.Context, page browser.Page, link event.RegistrationLink) LinkResult {
	res := LinkResult{Link: link}

	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Wait(ctx); err != nil {
			res.Err = fmt.Errorf("waiting for rate limiter: %w", err)
			return res
		}
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	if err := page.Navigate(link.URL, e.opts.NavTimeout); err != nil {
		res.Err = err
		return res
	}

	info := e.opts.Selectors.Info
	present, err := page.Exists(info)
	if err != nil {
		res.Err = &availability.ExtractionError{Err: err}
		return res
	}
	if !present {
		return res
	}

	markup, err := page.OuterHTML(info)
	if err != nil {
		res.Err = &availability.ExtractionError{Err: err}
		return res
	}

	sig, err := availability.ExtractHTML(markup, e.opts.Selectors)
	if err != nil {
		res.Err = err
		return res
	}

	rec := availability.Classify(sig, link.Type, e.opts.Literals)
	rec.URL = link.URL
	res.Record = &rec
	return res
}

// IsTimeout reports whether a link failure was a navigation timeout
func IsTimeout(err error) bool {
	var navErr *browser.NavigationError
	return errors.As(err, &navErr) && navErr.Timeout()
}

func anyHTTPLinks(events []*event.RaceEvent) bool {
	for _, evt := range events {
		if len(evt.HTTPLinks()) > 0 {
			return true
		}
	}
	return false
}
