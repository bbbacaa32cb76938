package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ai/internal/pipeline"
)

var (
	// ErrNotFound is returned when no run matches the lookup.
	ErrNotFound = errors.New("run not found")
)

// RunState tracks a dispatched run.
type RunState string

const (
	StateRunning   RunState = "running"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
)

// Run is one dispatched pipeline run. Outcome is nil while it is running.
type Run struct {
	ID         uuid.UUID         `json:"id"`
	Stamp      string            `json:"stamp"`
	State      RunState          `json:"state"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
	Outcome    *pipeline.Outcome `json:"outcome,omitempty"`
}

// MemoryStore is a concurrency-safe in-memory history of runs.
type MemoryStore struct {
	mu sync.RWMutex

	// oldest first
	runs []Run

	// retention configuration
	maxHistory int           // max number of runs kept
	maxAge     time.Duration // optional max age measured from StartedAt

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Save inserts run or replaces the record with the same ID, then enforces
// retention. Running records are never evicted.
func (s *MemoryStore) Save(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			replaced = true
			break
		}
	}
	if !replaced {
		s.runs = append(s.runs, run)
	}

	s.evict()
}

func (s *MemoryStore) evict() {
	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.runs) > s.maxHistory {
		over := len(s.runs) - s.maxHistory
		s.runs = keepRunning(s.runs, over, func(Run) bool { return true })
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		s.runs = keepRunning(s.runs, len(s.runs), func(r Run) bool {
			return r.StartedAt.Before(cutoff)
		})
	}
}

// keepRunning drops up to n finished runs matching drop, oldest first.
func keepRunning(runs []Run, n int, drop func(Run) bool) []Run {
	kept := runs[:0]
	for _, r := range runs {
		if n > 0 && r.State != StateRunning && drop(r) {
			n--
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// Get returns the run with the given ID.
func (s *MemoryStore) Get(id uuid.UUID) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return Run{}, ErrNotFound
}

// Latest returns the most recently started run.
func (s *MemoryStore) Latest() (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return Run{}, ErrNotFound
	}
	return s.runs[len(s.runs)-1], nil
}

// List returns runs started between from and to (inclusive), newest first.
// Zero bounds are open.
func (s *MemoryStore) List(from, to time.Time) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Run, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		r := s.runs[i]
		if !from.IsZero() && r.StartedAt.Before(from) {
			continue
		}
		if !to.IsZero() && r.StartedAt.After(to) {
			continue
		}
		result = append(result, r)
	}
	return result
}
