package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/i474232898/weather-ai/internal/artifact"
	"github.com/i474232898/weather-ai/internal/config"
	"github.com/i474232898/weather-ai/internal/httpcache"
	"github.com/i474232898/weather-ai/internal/llm"
	"github.com/i474232898/weather-ai/internal/location"
	"github.com/i474232898/weather-ai/internal/notify"
	"github.com/i474232898/weather-ai/internal/pipeline"
	"github.com/i474232898/weather-ai/internal/weather"
	"github.com/i474232898/weather-ai/internal/weather/providers"
)

// components is everything main needs to run or serve, plus the closers
// that release it in reverse order.
type components struct {
	pipeline *pipeline.Pipeline
	closers  []io.Closer
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	return errors.Join(errs...)
}

// build wires the pipeline from cfg. observer may be nil.
func build(ctx context.Context, cfg *config.Config, observer llm.Observer, logger *slog.Logger) (*components, error) {
	c := &components{}

	cache, err := newCacheStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cl, ok := cache.(io.Closer); ok {
		c.closers = append(c.closers, cl)
	}

	// Shared HTTP client for outbound forecast calls, cached below the retries.
	weatherClient := &http.Client{
		Timeout:   cfg.Weather.Timeout,
		Transport: httpcache.NewTransport(http.DefaultTransport, cache, cfg.Weather.CacheTTL, logger),
	}
	provider := providers.NewOpenMeteoProvider(weatherClient, cfg.Weather.BaseURL, providers.BackoffConfig{
		MaxAttempts:     cfg.Weather.MaxAttempts,
		InitialInterval: cfg.Weather.BackoffBase,
		MaxInterval:     cfg.Weather.BackoffMax,
	}, logger)
	service := weather.NewService(provider, logger)

	resolver := newResolver(cfg, logger)

	mirror, err := newMirror(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	reports := artifact.NewStore(cfg.DataDir(), artifact.KindReport, mirror, logger)
	descriptions := artifact.NewStore(cfg.ResponsesDir(), artifact.KindDescription, mirror, logger)

	backend := newBackend(cfg.Model, logger)
	runner := llm.NewRunner(backend, llm.RunnerOptions{
		MaxTokens:      cfg.Model.MaxTokens,
		Temperature:    cfg.Model.Temperature,
		TopP:           cfg.Model.TopP,
		Stream:         cfg.Model.Stream,
		ConnectTimeout: cfg.Model.ConnectTimeout,
		PollInterval:   cfg.Model.PollInterval,
	}, observer, logger)
	c.closers = append(c.closers, runner)

	deps := pipeline.Deps{
		Locator:  resolver,
		Reporter: service,
		Prompts: llm.PromptBuilder{
			System:       cfg.Model.SystemPrompt,
			User:         cfg.Model.UserPrompt,
			AssistantCue: cfg.Model.AssistantCue,
			Mode:         llm.Mode(cfg.Model.Mode),
		},
		Generator:    runner,
		Reports:      reports,
		Descriptions: descriptions,
	}
	if cfg.Notify.Enabled {
		publisher := notify.NewKafkaPublisher(cfg.Notify.Brokers, cfg.Notify.Topic, logger)
		c.closers = append(c.closers, publisher)
		deps.Notifier = publisher
		logger.Info("Run events enabled", "brokers", cfg.Notify.Brokers, "topic", cfg.Notify.Topic)
	}

	c.pipeline = pipeline.New(deps, logger)
	return c, nil
}

// newCacheStorage opens the SQLite response cache and drops expired
// entries, or keeps the cache in memory when no path is configured.
func newCacheStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (httpcache.Storage, error) {
	path := cfg.Path(cfg.Weather.CachePath)
	if path == "" {
		return httpcache.NewMemoryStorage(), nil
	}

	storage, err := httpcache.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open response cache: %w", err)
	}
	if cfg.Weather.CacheTTL > 0 {
		purged, err := storage.Purge(ctx, time.Now().Add(-cfg.Weather.CacheTTL))
		if err != nil {
			logger.Warn("Response cache purge failed", "error", err)
		} else if purged > 0 {
			logger.Debug("Expired responses purged", "count", purged)
		}
	}
	return storage, nil
}

func newResolver(cfg *config.Config, logger *slog.Logger) *location.Resolver {
	table := make([]weather.Location, 0, len(cfg.Location.Cities))
	for _, city := range cfg.Location.Cities {
		table = append(table, weather.Location{Name: city.Name, Latitude: city.Lat, Longitude: city.Lon})
	}

	opts := location.Options{
		Table:       table,
		DefaultName: cfg.Location.Default,
		City:        cfg.Location.City,
		IP:          location.NewIPAPIClient(&http.Client{Timeout: cfg.Location.LookupTimeout}, cfg.Location.IPLookupURL),
		Timeout:     cfg.Location.LookupTimeout,
	}
	if cfg.Location.GeocoderAPIKey != "" {
		opts.Geocoder = location.NewGoogleGeocoder(cfg.Location.GeocoderAPIKey)
	}
	if tz, err := location.NewTimezoneFinder(); err != nil {
		logger.Warn("Timezone lookup unavailable", "error", err)
	} else {
		opts.Timezones = tz
	}

	return location.NewResolver(opts, logger)
}

func newMirror(cfg *config.Config, logger *slog.Logger) (artifact.Mirror, error) {
	if !cfg.Mirror.Enabled {
		return nil, nil
	}
	m, err := artifact.NewS3Mirror(artifact.S3Options{
		Endpoint:  cfg.Mirror.Endpoint,
		AccessKey: cfg.Mirror.AccessKey,
		SecretKey: cfg.Mirror.SecretKey,
		Bucket:    cfg.Mirror.Bucket,
		UseSSL:    cfg.Mirror.UseSSL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init artifact mirror: %w", err)
	}
	return m, nil
}

// newBackend picks the model backend. Generation is bounded by the run
// context, so the client carries no timeout of its own.
func newBackend(cfg config.ModelConfig, logger *slog.Logger) llm.Backend {
	client := &http.Client{}
	switch cfg.Backend {
	case "openai":
		return llm.NewOpenAICompatible(cfg.Endpoint, cfg.Name, client)
	case "llamacpp":
		return llm.NewLlamaCpp(llm.LlamaCppOptions{
			ModelPath:   cfg.Path,
			Binary:      cfg.ServerBinary,
			Endpoint:    cfg.Endpoint,
			ContextSize: cfg.ContextSize,
			GPULayers:   cfg.GPULayers,
			Output:      os.Stderr,
		}, client, logger)
	default:
		return llm.NewOllama(cfg.Endpoint, cfg.Name, client)
	}
}
