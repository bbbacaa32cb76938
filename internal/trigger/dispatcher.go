package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ai/internal/artifact"
	"github.com/i474232898/weather-ai/internal/logging"
	"github.com/i474232898/weather-ai/internal/pipeline"
	"github.com/i474232898/weather-ai/internal/store"
)

// ErrRunInFlight is returned by Dispatch while another run is active.
var ErrRunInFlight = errors.New("a run is already in progress")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, stamp string) pipeline.Outcome
}

// Dispatcher starts at most one background run at a time and records
// every run in a MemoryStore.
type Dispatcher struct {
	runner  Runner
	runs    *store.MemoryStore
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	active uuid.UUID
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. timeout <= 0 leaves runs unbounded.
func NewDispatcher(runner Runner, runs *store.MemoryStore, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		runner:  runner,
		runs:    runs,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch starts a run and returns its ID without waiting for it. The run
// keeps ctx's values but not its cancellation, so it outlives the request
// that triggered it.
func (d *Dispatcher) Dispatch(ctx context.Context) (uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrRunInFlight, d.active)
	}

	started := d.now()
	run := store.Run{
		ID:        uuid.New(),
		Stamp:     started.Format(artifact.StampLayout),
		State:     store.StateRunning,
		StartedAt: started,
	}
	d.active = run.ID
	d.runs.Save(run)

	runCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, d.timeout)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		d.execute(runCtx, run)
	}()

	d.logger.Info("Run dispatched", "run_id", run.ID, "stamp", run.Stamp)
	return run.ID, nil
}

func (d *Dispatcher) execute(ctx context.Context, run store.Run) {
	defer func() {
		if r := recover(); r != nil {
			logging.Critical(d.logger, "Run crashed", "run_id", run.ID, "panic", fmt.Sprint(r))
			run.State = store.StateFailed
		}
		run.FinishedAt = d.now()
		d.runs.Save(run)

		d.mu.Lock()
		d.active = uuid.Nil
		d.mu.Unlock()
	}()

	out := d.runner.Run(ctx, run.Stamp)
	run.Outcome = &out
	run.State = store.StateSucceeded
	if out.Description == nil || out.Description.Err != nil {
		run.State = store.StateFailed
	}
}

// Active returns the ID of the running run, or uuid.Nil.
func (d *Dispatcher) Active() uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Dispatcher) Get(id uuid.UUID) (store.Run, error) { return d.runs.Get(id) }

func (d *Dispatcher) Latest() (store.Run, error) { return d.runs.Latest() }

func (d *Dispatcher) List(from, to time.Time) []store.Run { return d.runs.List(from, to) }

// Wait blocks until dispatched runs finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
