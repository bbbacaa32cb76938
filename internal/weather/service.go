package weather

import (
	"context"
	"log/slog"
	"time"

	"github.com/i474232898/weather-ai/internal/logging"
)

// Service fetches a forecast for a location and renders it as a Report.
type Service struct {
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new Service.
func NewService(provider Provider, logger *slog.Logger) *Service {
	return &Service{
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// Report never fails: fetch and translation problems come back as sentinel
// reports and are logged here.
func (s *Service) Report(ctx context.Context, loc Location) Report {
	resp, err := s.provider.Fetch(ctx, loc)
	if err != nil {
		s.logger.Error("Error fetching weather data", "provider", s.provider.Name(), "location", loc.Name, "error", err)
	} else {
		s.logger.Log(ctx, logging.LevelSuccess, "Weather data successfully fetched", "provider", s.provider.Name(), "location", loc.Name)
	}

	report, fmtErr := formatReport(loc, resp, err, s.now())
	if report.Status == ReportInvalid {
		s.logger.Error("Error processing weather data", "location", loc.Name, "error", fmtErr)
	}
	return report
}
