package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pfrederiksen/race-alerts/internal/logger"
	"github.com/pfrederiksen/race-alerts/internal/metrics"
)

// ErrRunInProgress is returned by RunOnce when another run holds the guard
var ErrRunInProgress = errors.New("run already in progress")

// Job is one schedulable unit of work
type Job interface {
	Run(ctx context.Context) (*Result, error)
}

// State is the runner state
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Runner runs a Job immediately and then on every interval tick
type Runner struct {
	job      Job
	interval time.Duration
	log      *logger.Logger
	metrics  *metrics.Metrics

	guard   sync.Mutex
	state   atomic.Int32
	skipped atomic.Int64
	wg      sync.WaitGroup
}

// New creates a Runner. m may be nil.
func New(job Job, interval time.Duration, log *logger.Logger, m *metrics.Metrics) *Runner {
	if log == nil {
		log = logger.Default()
	}
	return &Runner{
		job:      job,
		interval: interval,
		log:      log.With(logger.Fields{"component": "runner"}),
		metrics:  m,
	}
}

// State returns whether a run is in flight
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Skipped returns how many ticks were skipped because a run was in flight
func (r *Runner) Skipped() int64 {
	return r.skipped.Load()
}

// RunOnce executes one guarded run. Panics inside the job are returned as errors.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	if !r.guard.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.guard.Unlock()

	return r.execute(ctx)
}

// Start runs the job once, then on every tick until ctx is cancelled. It waits
// for an in-flight run to return before returning itself.
func (r *Runner) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("invalid interval %s", r.interval)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Runner started", logger.Fields{"interval": r.interval.String()})

	r.launch(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Runner stopping, waiting for in-flight run", nil)
			r.wg.Wait()
			return nil
		case <-ticker.C:
			r.launch(ctx)
		}
	}
}

// launch starts a run in the background unless one is already in flight
func (r *Runner) launch(ctx context.Context) {
	if !r.guard.TryLock() {
		r.skipped.Add(1)
		r.metrics.SkipRun()
		r.log.Warn("Previous run still in flight, skipping tick", nil, nil)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.guard.Unlock()

		if _, err := r.execute(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("Run failed", nil, err)
		}
	}()
}

func (r *Runner) execute(ctx context.Context) (res *Result, err error) {
	r.state.Store(int32(StateRunning))
	defer r.state.Store(int32(StateIdle))

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run panicked: %v", rec)
		}
	}()

	return r.job.Run(ctx)
}
