package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/i474232898/weather-ai/internal/artifact"
	"github.com/i474232898/weather-ai/internal/llm"
	"github.com/i474232898/weather-ai/internal/logging"
	"github.com/i474232898/weather-ai/internal/notify"
	"github.com/i474232898/weather-ai/internal/weather"
)

// FailedText is returned when the weather report is unusable.
const FailedText = "Failed to generate report."

type Locator interface {
	Resolve(ctx context.Context) weather.Location
}

type Reporter interface {
	Report(ctx context.Context, loc weather.Location) weather.Report
}

type Generator interface {
	Generate(ctx context.Context, p llm.Prompt) llm.Result
}

type Saver interface {
	Save(ctx context.Context, stamp, text string) (artifact.Saved, error)
}

type Notifier interface {
	Publish(ctx context.Context, e notify.Event) error
}

// Deps wires a Pipeline. Notifier may be nil.
type Deps struct {
	Locator      Locator
	Reporter     Reporter
	Prompts      llm.PromptBuilder
	Generator    Generator
	Reports      Saver
	Descriptions Saver
	Notifier     Notifier
}

// Outcome is everything one run produced. Description is nil when the
// model was never asked.
type Outcome struct {
	Stamp            string           `json:"stamp"`
	Text             string           `json:"text"`
	Location         weather.Location `json:"location"`
	Report           weather.Report   `json:"report"`
	Description      *llm.Result      `json:"description,omitempty"`
	ReportFiles      artifact.Saved   `json:"report_files"`
	DescriptionFiles artifact.Saved   `json:"description_files"`
	Duration         time.Duration    `json:"duration"`
}

// Pipeline runs location → report → description once per call.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{deps: deps, logger: logger, now: time.Now}
}

// Run executes one full run under stamp. It always returns an Outcome;
// a panic inside a stage is logged as CRITICAL and reported as a failure.
func (p *Pipeline) Run(ctx context.Context, stamp string) (out Outcome) {
	start := p.now()
	out.Stamp = stamp
	p.logger.Info("=== WeatherAI program started ===", "stamp", stamp)
	defer func() {
		if r := recover(); r != nil {
			logging.Critical(p.logger, "Unhandled failure during run", "stamp", stamp, "panic", fmt.Sprint(r))
			out.Text = FailedText
		}
		out.Duration = p.now().Sub(start)
		p.logger.Info("=== WeatherAI program ended ===", "stamp", stamp, "duration", out.Duration)
	}()

	out.Location = p.deps.Locator.Resolve(ctx)
	out.Report = p.deps.Reporter.Report(ctx, out.Location)

	files, err := p.deps.Reports.Save(ctx, stamp, out.Report.Text)
	if err != nil {
		p.logger.Error("Failed to save weather report", "error", err)
	} else {
		out.ReportFiles = files
		p.logger.Info("Weather report saved", "path", files.Stamped)
	}

	if !out.Report.Valid() {
		p.logger.Error("Weather report unavailable, skipping description", "status", out.Report.Status.String())
		out.Text = FailedText
		p.publish(ctx, out)
		return out
	}

	prompt := p.deps.Prompts.Build(out.Report.Text)
	res := p.deps.Generator.Generate(ctx, prompt)
	out.Description = &res
	out.Text = res.Text

	files, err = p.deps.Descriptions.Save(ctx, stamp, res.Text)
	if err != nil {
		p.logger.Error("Failed to save weather description", "error", err)
	} else {
		out.DescriptionFiles = files
		p.logger.Info("Weather description saved", "path", files.Stamped)
	}

	p.publish(ctx, out)
	return out
}

func (p *Pipeline) publish(ctx context.Context, out Outcome) {
	if p.deps.Notifier == nil {
		return
	}

	e := notify.Event{
		Stamp:        out.Stamp,
		Location:     out.Location.Name,
		Latitude:     out.Location.Latitude,
		Longitude:    out.Location.Longitude,
		ReportStatus: out.Report.Status.String(),
		Report:       out.Report.Text,
		ReportPath:   out.ReportFiles.Stamped,
		FinishedAt:   p.now(),
	}
	if out.Description != nil {
		e.Description = out.Description.Text
		e.DescriptionOK = out.Description.Err == nil
		e.DescriptionPath = out.DescriptionFiles.Stamped
	}

	if err := p.deps.Notifier.Publish(ctx, e); err != nil {
		p.logger.Warn("Run event not delivered", "error", err)
	}
}
