package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/weather-ai/internal/logging"
)

// Texts returned in place of a description.
const (
	NoDataText = "[AI] No weather data to analyze."
	EmptyText  = "[AI] Model returned no text."
	FailedText = "[AI] Error occurred during weather description generation."
)

// Result is the outcome of one generation. Text is always set; Err says why
// it is not a real description.
type Result struct {
	Text     string        `json:"text"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Observer sees streamed fragments as they arrive.
type Observer interface {
	Fragment(text string)
	Done()
}

// RunnerOptions holds generation parameters and readiness polling.
type RunnerOptions struct {
	MaxTokens      int
	Temperature    float64
	TopP           float64
	Stream         bool
	ConnectTimeout time.Duration
	PollInterval   time.Duration
}

// DefaultRunnerOptions match the classic local setup.
func DefaultRunnerOptions() RunnerOptions {
	return RunnerOptions{
		MaxTokens:      300,
		Temperature:    0.7,
		TopP:           0.95,
		Stream:         true,
		ConnectTimeout: 30 * time.Second,
		PollInterval:   time.Second,
	}
}

// Runner connects to a Backend and turns prompts into descriptions.
type Runner struct {
	backend  Backend
	opts     RunnerOptions
	observer Observer
	logger   *slog.Logger

	mu sync.Mutex
}

// NewRunner creates a Runner. observer may be nil.
func NewRunner(backend Backend, opts RunnerOptions, observer Observer, logger *slog.Logger) *Runner {
	return &Runner{backend: backend, opts: opts, observer: observer, logger: logger}
}

// Generate never fails: errors are logged and returned in Result.Err with a
// fixed Text.
func (r *Runner) Generate(ctx context.Context, p Prompt) Result {
	if p.Empty {
		r.logger.Warn("No weather data to analyze, skipping generation")
		return Result{Text: NoDataText, Err: ErrNothingToAnalyze}
	}

	if err := r.connect(ctx); err != nil {
		return r.fail(err)
	}

	req := Request{
		Mode:        p.Mode,
		Prompt:      p.Text,
		Messages:    p.Messages,
		MaxTokens:   r.opts.MaxTokens,
		Temperature: r.opts.Temperature,
		TopP:        r.opts.TopP,
		Stop:        p.Stop,
	}

	start := time.Now()
	r.logger.Info("Generating weather description",
		"backend", r.backend.Name(),
		"mode", string(p.Mode),
		"stream", r.opts.Stream,
		"started", start.Format("2006-01-02 15:04:05"),
	)

	var (
		raw string
		err error
	)
	if r.opts.Stream {
		raw, err = r.stream(ctx, req)
	} else {
		raw, err = r.backend.Generate(ctx, req)
	}
	elapsed := time.Since(start)
	if err != nil {
		res := r.fail(err)
		res.Duration = elapsed
		return res
	}

	text := Normalize(raw)
	if text == "" {
		r.logger.Warn("Model returned no text", "duration", elapsed)
		return Result{Text: EmptyText, Err: ErrEmptyOutput, Duration: elapsed}
	}

	logging.Success(r.logger, "Generation completed successfully", "duration", elapsed.Round(time.Millisecond))
	return Result{Text: text, Duration: elapsed}
}

func (r *Runner) stream(ctx context.Context, req Request) (string, error) {
	if r.observer != nil {
		defer r.observer.Done()
	}

	var b strings.Builder
	for frag, err := range r.backend.Stream(ctx, req) {
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		if r.observer != nil {
			r.observer.Fragment(frag)
		}
	}
	return b.String(), nil
}

// connect starts an owned backend and polls Ready until ConnectTimeout.
// It runs before every generation so a backend lost between runs is
// restarted or reported as unavailable.
func (r *Runner) connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.backend.(Starter); ok {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}

	cctx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		err := r.backend.Ready(cctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("Model ready", "backend", r.backend.Name(), "attempts", attempt)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if cctx.Err() != nil {
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrModelUnavailable, r.backend.Name(), attempt, err)
		}

		r.logger.Warn("Model not ready, retrying",
			"backend", r.backend.Name(),
			"attempt", attempt,
			"retry_in", r.opts.PollInterval,
			"error", err,
		)

		timer := time.NewTimer(r.opts.PollInterval)
		select {
		case <-cctx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrModelUnavailable, r.backend.Name(), attempt, err)
		case <-timer.C:
		}
	}
}

func (r *Runner) fail(err error) Result {
	switch {
	case errors.Is(err, ErrModelNotFound):
		r.logger.Error("Model artifact missing", "backend", r.backend.Name(), "error", err)
	case errors.Is(err, ErrModelUnavailable):
		r.logger.Error("Model never became ready", "backend", r.backend.Name(), "error", err)
	default:
		r.logger.Error("Problem during generation", "backend", r.backend.Name(), "error", err)
	}
	return Result{Text: FailedText, Err: err}
}

// Close stops a backend process the runner started.
func (r *Runner) Close() error {
	if s, ok := r.backend.(Starter); ok {
		return s.Close()
	}
	return nil
}

// Normalize trims the output and puts each sentence on its own line.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ". ", "\n")
}
