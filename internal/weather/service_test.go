package weather

import (
	"context"
	"fmt"
	"testing"

	"github.com/i474232898/weather-ai/internal/logging"
)

type stubProvider struct {
	resp *ForecastResponse
	err  error
	got  []Location
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Fetch(_ context.Context, loc Location) (*ForecastResponse, error) {
	p.got = append(p.got, loc)
	return p.resp, p.err
}

func TestService_Report(t *testing.T) {
	tests := []struct {
		name       string
		provider   *stubProvider
		wantStatus ReportStatus
	}{
		{"success", &stubProvider{resp: cracowResponse()}, ReportOK},
		{"fetch failure", &stubProvider{err: fmt.Errorf("%w: timeout", ErrFetchFailed)}, ReportNoData},
		{"malformed", &stubProvider{resp: &ForecastResponse{}}, ReportInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.provider, logging.Discard())

			report := svc.Report(context.Background(), cracow)
			if report.Status != tt.wantStatus {
				t.Errorf("status = %v, want %v (%q)", report.Status, tt.wantStatus, report.Text)
			}
			if len(tt.provider.got) != 1 || tt.provider.got[0] != cracow {
				t.Errorf("provider called with %v", tt.provider.got)
			}
		})
	}
}
