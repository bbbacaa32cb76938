package weather

import (
	"context"
)

// Provider abstracts the forecast source. Implementations return errors
// wrapping ErrFetchFailed and never panic.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (*ForecastResponse, error)
}
