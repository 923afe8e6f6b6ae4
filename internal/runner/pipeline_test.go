package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/pfrederiksen/race-alerts/internal/availability"
	"github.com/pfrederiksen/race-alerts/internal/browser/browsertest"
	"github.com/pfrederiksen/race-alerts/internal/digest"
	"github.com/pfrederiksen/race-alerts/internal/enricher"
	"github.com/pfrederiksen/race-alerts/internal/event"
	"github.com/pfrederiksen/race-alerts/internal/logger"
	"github.com/pfrederiksen/race-alerts/internal/metrics"
	"github.com/pfrederiksen/race-alerts/internal/scraper"
	"github.com/pfrederiksen/race-alerts/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
)

const (
	channel    = "PAY WITH CHANNEL"
	listingURL = "https://races.example.com/calendario"
)

const listingHTML = `<html><body><div id="events-list">
  <article class="event-card">
    <h2>Trail del Sol</h2>
    <div class="event-meta">12/04/2026</div>
    <div class="buy-ticket"><a href="https://tickets.example.com/a">PAY WITH CHANNEL</a></div>
  </article>
  <article class="event-card">
    <h2>Carrera Nocturna</h2>
    <div class="event-meta">20/05/2026</div>
    <div class="buy-ticket"><a href="#">PRÓXIMAMENTE</a></div>
  </article>
</div></body></html>`

type recordingNotifier struct {
	mu   sync.Mutex
	sent []digest.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg digest.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type staticSource []*event.RaceEvent

func (s staticSource) FetchEvents(context.Context) []*event.RaceEvent { return s }

type passThrough struct{}

func (passThrough) EnrichAll(_ context.Context, events []*event.RaceEvent) []*event.RaceEvent {
	return events
}

func quietLogger() *logger.Logger {
	return logger.New(logger.LevelError, io.Discard)
}

func availableEvent(title string) *event.RaceEvent {
	return &event.RaceEvent{
		Title:         title,
		Date:          "12/04/2026",
		Registrations: []event.RegistrationLink{{Type: channel, URL: "https://tickets.example.com/" + title}},
		Availability:  []event.AvailabilityRecord{{Type: channel, IsAvailable: true}},
	}
}

func newTestStore(t *testing.T) (*storage.Storage, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := storage.New(fs, "/data")
	if err != nil {
		t.Fatal(err)
	}
	return store, fs
}

func TestPipeline_EndToEnd(t *testing.T) {
	site := browsertest.NewSite().
		Handle(listingURL, listingHTML).
		Handle("https://tickets.example.com/a", `<html><body><div class="summary entry-summary">
			<p>Inscripciones abiertas. Plazas Disponibles</p></div></body></html>`)

	log := quietLogger()
	store, fs := newTestStore(t)
	n := &recordingNotifier{}

	p := &Pipeline{
		Source: scraper.New(site, scraper.Options{URL: listingURL, Selectors: scraper.DefaultSelectors()}, log),
		Enricher: enricher.New(site, enricher.Options{
			Selectors: availability.DefaultSelectors(),
			Literals:  availability.DefaultLiterals(),
		}, log, nil),
		Notifier: n,
		Store:    store,
		Channel:  channel,
		DumpPath: "/data/events.json",
		Log:      log,
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Events != 2 || res.Matches != 1 || !res.Notified {
		t.Errorf("result = %+v", res)
	}
	if res.RunID == "" {
		t.Error("run ID not set")
	}

	if n.count() != 1 {
		t.Fatalf("sent %d emails, want exactly 1", n.count())
	}
	html := n.sent[0].HTML
	if !strings.Contains(html, "Trail del Sol") || strings.Contains(html, "Carrera Nocturna") {
		t.Errorf("email should reference only the available event:\n%s", html)
	}

	dumped, err := store.LoadEvents("/data/events.json")
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	if len(dumped) != 2 {
		t.Fatalf("dump has %d events, want 2", len(dumped))
	}
	if len(dumped[0].Availability) != 1 || !dumped[0].Availability[0].IsAvailable {
		t.Errorf("event A availability = %+v", dumped[0].Availability)
	}
	if dumped[1].Availability != nil {
		t.Errorf("event B availability = %+v, want none", dumped[1].Availability)
	}

	raw, _ := afero.ReadFile(fs, "/data/events.json")
	if strings.Count(string(raw), `"availability"`) != 1 {
		t.Errorf("only event A should carry an availability field:\n%s", raw)
	}

	if stats := site.Stats(); stats.OpenSessions != 0 || stats.PagesOpened != stats.PagesClosed {
		t.Errorf("browser resources leaked: %+v", stats)
	}
}

func TestPipeline_NoDeliveryWhenUnavailable(t *testing.T) {
	sold := availableEvent("trail")
	sold.Availability[0].IsAvailable = false
	other := availableEvent("10k")
	other.Availability[0].Type = "PAY WITH CARD"

	n := &recordingNotifier{}
	p := &Pipeline{
		Source:   staticSource{sold, other},
		Enricher: passThrough{},
		Notifier: n,
		Channel:  channel,
		Log:      quietLogger(),
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n.count() != 0 || res.Notified {
		t.Errorf("no email expected, sent %d", n.count())
	}
}

func TestPipeline_EmptyListing(t *testing.T) {
	n := &recordingNotifier{}
	p := &Pipeline{Source: staticSource{}, Enricher: passThrough{}, Notifier: n, Channel: channel, Log: quietLogger()}

	res, err := p.Run(context.Background())
	if err != nil || res.Events != 0 || n.count() != 0 {
		t.Errorf("Run() = %+v, %v; sent %d", res, err, n.count())
	}
}

func TestPipeline_DeliveryFailure(t *testing.T) {
	m := metrics.New()
	n := &recordingNotifier{err: errors.New("email API error (status 500)")}
	p := &Pipeline{
		Source:   staticSource{availableEvent("trail")},
		Enricher: passThrough{},
		Notifier: n,
		Channel:  channel,
		Metrics:  m,
		Log:      quietLogger(),
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, delivery failure must not fail the run", err)
	}
	if res.Notified || res.DeliveryErr == nil {
		t.Errorf("result = %+v, want delivery error recorded", res)
	}

	want := `
# HELP race_alerts_notifications_total Digest delivery attempts by result.
# TYPE race_alerts_notifications_total counter
race_alerts_notifications_total{result="failed"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "race_alerts_notifications_total"); err != nil {
		t.Error(err)
	}
}

func TestPipeline_Dedup(t *testing.T) {
	store, _ := newTestStore(t)
	n := &recordingNotifier{}
	events := staticSource{availableEvent("trail")}

	p := &Pipeline{
		Source:   events,
		Enricher: passThrough{},
		Notifier: n,
		Store:    store,
		Channel:  channel,
		Dedup:    true,
		Log:      quietLogger(),
	}

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n.count() != 1 {
		t.Errorf("sent %d emails, want 1 with dedup on", n.count())
	}
	if res.AlreadySent != 1 {
		t.Errorf("AlreadySent = %d, want 1", res.AlreadySent)
	}

	// A new match is still sent
	p.Source = staticSource{availableEvent("trail"), availableEvent("10k")}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n.count() != 2 {
		t.Errorf("sent %d emails, want the new match delivered", n.count())
	}
	if !strings.Contains(n.sent[1].HTML, "10k") || strings.Contains(n.sent[1].HTML, ">trail<") {
		t.Errorf("second digest should only list the new match:\n%s", n.sent[1].HTML)
	}
}

func TestPipeline_DedupKeepsFailedDeliveries(t *testing.T) {
	store, _ := newTestStore(t)
	n := &recordingNotifier{err: errors.New("down")}
	p := &Pipeline{
		Source:   staticSource{availableEvent("trail")},
		Enricher: passThrough{},
		Notifier: n,
		Store:    store,
		Channel:  channel,
		Dedup:    true,
		Log:      quietLogger(),
	}

	p.Run(context.Background())
	n.err = nil
	p.Run(context.Background())

	if n.count() != 2 {
		t.Errorf("attempts = %d, want retry on the next run after a failed delivery", n.count())
	}
	set, _ := store.LoadNotified()
	if set.Len() != 1 {
		t.Errorf("notified set has %d keys, want 1", set.Len())
	}
}

func TestPipeline_DedupWithoutStore(t *testing.T) {
	p := &Pipeline{Source: staticSource{}, Enricher: passThrough{}, Notifier: &recordingNotifier{}, Dedup: true, Log: quietLogger()}
	if _, err := p.Run(context.Background()); err == nil {
		t.Error("Run() should fail when dedup has no store")
	}
}

func TestPipeline_MetricsTextfile(t *testing.T) {
	m := metrics.New()
	path := t.TempDir() + "/race_alerts.prom"
	p := &Pipeline{
		Source:          staticSource{},
		Enricher:        passThrough{},
		Notifier:        &recordingNotifier{},
		Channel:         channel,
		Metrics:         m,
		MetricsTextfile: path,
		Log:             quietLogger(),
	}

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
	if !strings.Contains(string(data), `race_alerts_runs_total{result="ok"} 1`) {
		t.Errorf("textfile missing run counter:\n%s", data)
	}
}

type panickingSource struct{}

func (panickingSource) FetchEvents(context.Context) []*event.RaceEvent { panic("listing exploded") }

func TestPipeline_PanicBecomesFailedRun(t *testing.T) {
	m := metrics.New()
	p := &Pipeline{Source: panickingSource{}, Enricher: passThrough{}, Notifier: &recordingNotifier{}, Channel: channel, Metrics: m, Log: quietLogger()}

	res, err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "listing exploded") {
		t.Fatalf("Run() error = %v, want the panic as an error", err)
	}
	if res == nil || res.RunID == "" {
		t.Errorf("result = %+v, want the run ID kept", res)
	}

	want := `
# HELP race_alerts_runs_total Pipeline runs by result (ok, failed, skipped).
# TYPE race_alerts_runs_total counter
race_alerts_runs_total{result="failed"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "race_alerts_runs_total"); err != nil {
		t.Error(err)
	}
}
