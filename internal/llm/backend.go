package llm

import (
	"context"
	"errors"
	"io"
	"iter"
)

var (
	ErrModelNotFound    = errors.New("model artifact not found")
	ErrModelUnavailable = errors.New("model not ready")
	ErrEmptyOutput      = errors.New("model returned no text")
	ErrNothingToAnalyze = errors.New("no weather data to analyze")
)

// Request is a single generation call.
type Request struct {
	Mode        Mode
	Prompt      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// Backend is a model-serving endpoint.
type Backend interface {
	Name() string
	// Ready returns nil once the backend can serve Generate.
	Ready(ctx context.Context) error
	Generate(ctx context.Context, req Request) (string, error)
	// Stream yields fragments in generation order. A non-nil error ends
	// the sequence.
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Starter is implemented by backends that own the serving process.
type Starter interface {
	Start(ctx context.Context) error
	io.Closer
}
