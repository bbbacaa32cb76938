package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/i474232898/weather-ai/internal/artifact"
	"github.com/i474232898/weather-ai/internal/llm"
	"github.com/i474232898/weather-ai/internal/logging"
	"github.com/i474232898/weather-ai/internal/notify"
	"github.com/i474232898/weather-ai/internal/weather"
)

var cracow = weather.Location{Name: "Cracow", Latitude: 50.06, Longitude: 19.94, Timezone: "Europe/Warsaw"}

type fixedLocator struct{ loc weather.Location }

func (f fixedLocator) Resolve(context.Context) weather.Location { return f.loc }

type fixedReporter struct {
	report weather.Report
	panics bool
}

func (f fixedReporter) Report(context.Context, weather.Location) weather.Report {
	if f.panics {
		panic("decoder exploded")
	}
	return f.report
}

type spyGenerator struct {
	calls  int
	prompt llm.Prompt
	result llm.Result
}

func (s *spyGenerator) Generate(_ context.Context, p llm.Prompt) llm.Result {
	s.calls++
	s.prompt = p
	return s.result
}

type recordingNotifier struct {
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, e notify.Event) error {
	n.events = append(n.events, e)
	return n.err
}

type failingSaver struct {
	calls int
}

func (f *failingSaver) Save(context.Context, string, string) (artifact.Saved, error) {
	f.calls++
	return artifact.Saved{}, errors.New("disk full")
}

func newPipeline(t *testing.T, report weather.Report, gen *spyGenerator, n Notifier) (*Pipeline, *artifact.Store, *artifact.Store) {
	t.Helper()
	dir := t.TempDir()
	reports := artifact.NewStore(dir+"/weather", artifact.KindReport, nil, logging.Discard())
	descriptions := artifact.NewStore(dir+"/weather_description", artifact.KindDescription, nil, logging.Discard())

	deps := Deps{
		Locator:      fixedLocator{cracow},
		Reporter:     fixedReporter{report: report},
		Prompts:      llm.PromptBuilder{System: "sys", User: "usr", AssistantCue: "cue", Mode: llm.ModeCompletion},
		Generator:    gen,
		Reports:      reports,
		Descriptions: descriptions,
	}
	if n != nil {
		deps.Notifier = n
	}
	return New(deps, logging.Discard()), reports, descriptions
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestRun_ValidReport(t *testing.T) {
	report := weather.Report{Text: "Weather report for Cracow:\nTemperature: 3.2 °C", Status: weather.ReportOK}
	gen := &spyGenerator{result: llm.Result{Text: "Cold\nCloudy."}}
	n := &recordingNotifier{}
	p, reports, descriptions := newPipeline(t, report, gen, n)

	out := p.Run(context.Background(), "2024-11-20_14-00-00")

	if out.Text != "Cold\nCloudy." {
		t.Errorf("Text = %q", out.Text)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
	if gen.prompt.Empty {
		t.Error("prompt should carry the report")
	}
	if out.Location != cracow {
		t.Errorf("Location = %+v", out.Location)
	}
	if out.Description == nil || out.Description.Err != nil {
		t.Errorf("Description = %+v", out.Description)
	}

	if got := readFile(t, reports.StampedPath("2024-11-20_14-00-00")); got != report.Text {
		t.Errorf("stamped report = %q", got)
	}
	if got := readFile(t, descriptions.LatestPath()); got != "Cold\nCloudy." {
		t.Errorf("latest description = %q", got)
	}
	if out.DescriptionFiles.Stamped != descriptions.StampedPath("2024-11-20_14-00-00") {
		t.Errorf("DescriptionFiles = %+v", out.DescriptionFiles)
	}

	if len(n.events) != 1 {
		t.Fatalf("events = %d, want 1", len(n.events))
	}
	if e := n.events[0]; e.Location != "Cracow" || !e.DescriptionOK || e.ReportStatus != "ok" {
		t.Errorf("event = %+v", e)
	}
}

func TestRun_InvalidReportSkipsModel(t *testing.T) {
	tests := []struct {
		name   string
		report weather.Report
	}{
		{"no data", weather.Report{Text: weather.NoDataText, Status: weather.ReportNoData}},
		{"invalid", weather.Report{Text: weather.InvalidText, Status: weather.ReportInvalid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &spyGenerator{}
			p, reports, descriptions := newPipeline(t, tt.report, gen, nil)

			out := p.Run(context.Background(), "2024-11-20_14-00-00")

			if out.Text != FailedText {
				t.Errorf("Text = %q, want %q", out.Text, FailedText)
			}
			if gen.calls != 0 {
				t.Errorf("generator called %d times", gen.calls)
			}
			if out.Description != nil {
				t.Errorf("Description = %+v, want nil", out.Description)
			}
			if got := readFile(t, reports.LatestPath()); got != tt.report.Text {
				t.Errorf("latest report = %q, want the sentinel", got)
			}
			if _, err := os.Stat(descriptions.LatestPath()); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("description should not be saved, stat err = %v", err)
			}
		})
	}
}

func TestRun_ModelFailureStillSaved(t *testing.T) {
	report := weather.Report{Text: "Weather report for Cracow:", Status: weather.ReportOK}
	gen := &spyGenerator{result: llm.Result{Text: llm.FailedText, Err: llm.ErrModelUnavailable}}
	p, _, descriptions := newPipeline(t, report, gen, nil)

	out := p.Run(context.Background(), "2024-11-20_14-00-00")

	if out.Text != llm.FailedText {
		t.Errorf("Text = %q", out.Text)
	}
	if got := readFile(t, descriptions.LatestPath()); got != llm.FailedText {
		t.Errorf("latest description = %q", got)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	gen := &spyGenerator{}
	p, _, _ := newPipeline(t, weather.Report{}, gen, nil)
	p.deps.Reporter = fixedReporter{panics: true}

	out := p.Run(context.Background(), "2024-11-20_14-00-00")

	if out.Text != FailedText {
		t.Errorf("Text = %q", out.Text)
	}
	if gen.calls != 0 {
		t.Error("generator should not run after a panic")
	}
}

func TestRun_NotifyFailureIgnored(t *testing.T) {
	report := weather.Report{Text: "Weather report for Cracow:", Status: weather.ReportOK}
	gen := &spyGenerator{result: llm.Result{Text: "Fine."}}
	n := &recordingNotifier{err: errors.New("broker down")}
	p, _, _ := newPipeline(t, report, gen, n)

	out := p.Run(context.Background(), "2024-11-20_14-00-00")

	if out.Text != "Fine." || len(n.events) != 1 {
		t.Errorf("Text = %q, events = %d", out.Text, len(n.events))
	}
}

func TestRun_SaveFailures(t *testing.T) {
	report := weather.Report{Text: "Weather report for Cracow:\nTemperature: 3.2 °C", Status: weather.ReportOK}

	tests := []struct {
		name  string
		setup func(p *Pipeline, s Saver)
	}{
		{"report", func(p *Pipeline, s Saver) { p.deps.Reports = s }},
		{"description", func(p *Pipeline, s Saver) { p.deps.Descriptions = s }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &spyGenerator{result: llm.Result{Text: "Cold\nCloudy."}}
			n := &recordingNotifier{}
			p, _, _ := newPipeline(t, report, gen, n)
			failing := &failingSaver{}
			tt.setup(p, failing)

			out := p.Run(context.Background(), "2024-11-20_14-00-00")

			if failing.calls != 1 {
				t.Errorf("save calls = %d, want 1", failing.calls)
			}
			if gen.calls != 1 {
				t.Errorf("generator calls = %d, want 1", gen.calls)
			}
			if out.Text != "Cold\nCloudy." {
				t.Errorf("Text = %q, want the description", out.Text)
			}
			if len(n.events) != 1 {
				t.Fatalf("events = %d, want 1", len(n.events))
			}

			switch tt.name {
			case "report":
				if out.ReportFiles != (artifact.Saved{}) {
					t.Errorf("ReportFiles = %+v, want empty", out.ReportFiles)
				}
				if out.DescriptionFiles.Stamped == "" {
					t.Error("description should still be saved")
				}
				if n.events[0].ReportPath != "" {
					t.Errorf("event ReportPath = %q", n.events[0].ReportPath)
				}
			case "description":
				if out.DescriptionFiles != (artifact.Saved{}) {
					t.Errorf("DescriptionFiles = %+v, want empty", out.DescriptionFiles)
				}
				if out.ReportFiles.Stamped == "" {
					t.Error("report should still be saved")
				}
				if !n.events[0].DescriptionOK {
					t.Error("a save failure should not mark the description failed")
				}
			}
		})
	}
}
