package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pfrederiksen/race-alerts/internal/digest"
	"github.com/pfrederiksen/race-alerts/internal/event"
	"github.com/pfrederiksen/race-alerts/internal/logger"
	"github.com/pfrederiksen/race-alerts/internal/metrics"
	"github.com/pfrederiksen/race-alerts/internal/notifier"
	"github.com/pfrederiksen/race-alerts/internal/storage"
)

// EventSource produces the events of one listing pass
type EventSource interface {
	FetchEvents(ctx context.Context) []*event.RaceEvent
}

// EventEnricher adds availability records to events
type EventEnricher interface {
	EnrichAll(ctx context.Context, events []*event.RaceEvent) []*event.RaceEvent
}

// Store persists the event dump and the notified set
type Store interface {
	SaveEvents(path string, events []*event.RaceEvent) error
	LoadNotified() (*storage.NotifiedSet, error)
	SaveNotified(set *storage.NotifiedSet) error
}

// Pipeline wires one run: scrape, enrich, decide, notify
type Pipeline struct {
	Source   EventSource
	Enricher EventEnricher
	Notifier notifier.Notifier
	Store    Store // required when DumpPath is set or Dedup is on

	Channel  string
	Subject  string
	DumpPath string
	Dedup    bool

	Metrics         *metrics.Metrics
	MetricsTextfile string
	Log             *logger.Logger
}

// Result summarizes a run
type Result struct {
	RunID       string
	Events      int
	Matches     int
	AlreadySent int
	Notified    bool
	DeliveryErr error
	Duration    time.Duration
}

// Run executes the pipeline once. A failed delivery is logged and reported in
// the result; only failures that prevent deciding or composing are returned.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	res = &Result{RunID: uuid.NewString()}

	ctx = logger.NewContext(ctx, logger.Fields{"run_id": res.RunID})
	log := p.logger().Ctx(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run panicked: %v", rec)
		}
		res.Duration = time.Since(start)
		result := metrics.ResultOK
		if err != nil {
			result = metrics.ResultFailed
		}
		p.Metrics.ObserveRun(result, res.Duration)
		if werr := p.Metrics.WriteTextfile(p.MetricsTextfile); werr != nil {
			log.Warn("Writing metrics textfile failed", logger.Fields{"path": p.MetricsTextfile}, werr)
		}
	}()

	log.Info("Run started", logger.Fields{"channel": p.Channel})

	events := p.Source.FetchEvents(ctx)
	res.Events = len(events)
	p.Metrics.SetEventsScraped(len(events))

	events = p.Enricher.EnrichAll(ctx, events)

	if p.DumpPath != "" {
		p.dump(log, events)
	}

	matches := digest.Matches(events, p.Channel)
	res.Matches = len(matches)

	var sent *storage.NotifiedSet
	if p.Dedup {
		if p.Store == nil {
			return res, fmt.Errorf("deduplication enabled without a store")
		}
		sent, err = p.Store.LoadNotified()
		if err != nil {
			return res, fmt.Errorf("loading notified set: %w", err)
		}
		fresh := matches[:0:0]
		for _, m := range matches {
			if sent.Has(m.Key()) {
				res.AlreadySent++
				continue
			}
			fresh = append(fresh, m)
		}
		matches = fresh
	}

	if len(matches) == 0 {
		log.Info("Run finished, nothing to send", logger.Fields{
			"events":       res.Events,
			"matches":      res.Matches,
			"already_sent": res.AlreadySent,
		})
		return res, nil
	}

	msg, err := digest.Compose(matches, digest.Options{Subject: p.Subject, Channel: p.Channel})
	if err != nil {
		return res, err
	}

	log.Info("Sending digest", logger.Fields{"summary": digest.FormatSummary(matches, p.Channel)})

	if derr := p.Notifier.Notify(ctx, msg); derr != nil {
		res.DeliveryErr = derr
		p.Metrics.NotificationSent(metrics.ResultFailed)
		log.Error("Digest delivery failed", logger.Fields{"matches": len(matches)}, derr)
		return res, nil
	}

	res.Notified = true
	p.Metrics.NotificationSent(metrics.ResultOK)

	if sent != nil {
		now := time.Now()
		for _, m := range matches {
			sent.Add(m.Key(), now)
		}
		if serr := p.Store.SaveNotified(sent); serr != nil {
			log.Warn("Saving notified set failed", nil, serr)
		}
	}

	log.Info("Run finished", logger.Fields{
		"events":   res.Events,
		"matches":  res.Matches,
		"notified": len(matches),
	})
	return res, nil
}

func (p *Pipeline) dump(log *logger.Logger, events []*event.RaceEvent) {
	if p.Store == nil {
		log.Warn("Event dump requested without a store", logger.Fields{"path": p.DumpPath}, nil)
		return
	}
	if err := p.Store.SaveEvents(p.DumpPath, events); err != nil {
		log.Warn("Writing event dump failed", logger.Fields{"path": p.DumpPath}, err)
		return
	}
	log.Debug("Event dump written", logger.Fields{"path": p.DumpPath, "events": len(events)})
}

func (p *Pipeline) logger() *logger.Logger {
	if p.Log == nil {
		return logger.Default()
	}
	return p.Log
}
