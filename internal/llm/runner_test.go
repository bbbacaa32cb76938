package llm

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/weather-ai/internal/logging"
)

// spyBackend records calls and replays canned output.
type spyBackend struct {
	readyAfter int32 // Ready fails this many times first
	readyCalls atomic.Int32
	genCalls   atomic.Int32
	text       string
	fragments  []string
	err        error
	last       Request
}

func (s *spyBackend) Name() string { return "spy" }

func (s *spyBackend) Ready(context.Context) error {
	if s.readyCalls.Add(1) <= s.readyAfter {
		return errors.New("connection refused")
	}
	return nil
}

func (s *spyBackend) Generate(_ context.Context, req Request) (string, error) {
	s.genCalls.Add(1)
	s.last = req
	return s.text, s.err
}

func (s *spyBackend) Stream(_ context.Context, req Request) iter.Seq2[string, error] {
	s.genCalls.Add(1)
	s.last = req
	return func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type recordingObserver struct {
	fragments []string
	done      int
}

func (o *recordingObserver) Fragment(t string) { o.fragments = append(o.fragments, t) }
func (o *recordingObserver) Done()             { o.done++ }

func testOptions(stream bool) RunnerOptions {
	opts := DefaultRunnerOptions()
	opts.Stream = stream
	opts.ConnectTimeout = 200 * time.Millisecond
	opts.PollInterval = 5 * time.Millisecond
	return opts
}

var validPrompt = Prompt{Mode: ModeCompletion, Text: "System: x\n\nUser: y\nreport\n\nAssistant: z\n", Stop: StopMarkers}

func TestRunner_EmptyPromptSkipsBackend(t *testing.T) {
	backend := &spyBackend{text: "should not be used"}
	r := NewRunner(backend, testOptions(false), nil, logging.Discard())

	res := r.Generate(context.Background(), Prompt{Empty: true})

	if res.Text != NoDataText {
		t.Errorf("Text = %q, want %q", res.Text, NoDataText)
	}
	if !errors.Is(res.Err, ErrNothingToAnalyze) {
		t.Errorf("Err = %v", res.Err)
	}
	if backend.readyCalls.Load() != 0 || backend.genCalls.Load() != 0 {
		t.Errorf("backend touched: ready=%d gen=%d", backend.readyCalls.Load(), backend.genCalls.Load())
	}
}

func TestRunner_Batch(t *testing.T) {
	backend := &spyBackend{text: "  Cloudy and cold. Light wind. No rain expected.\n"}
	r := NewRunner(backend, testOptions(false), nil, logging.Discard())

	res := r.Generate(context.Background(), validPrompt)

	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if want := "Cloudy and cold\nLight wind\nNo rain expected."; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}

	req := backend.last
	if req.MaxTokens != 300 || req.Temperature != 0.7 || req.TopP != 0.95 {
		t.Errorf("unexpected generation params %+v", req)
	}
	if len(req.Stop) != 2 || req.Stop[0] != "User:" || req.Stop[1] != "System:" {
		t.Errorf("Stop = %v", req.Stop)
	}
	if req.Prompt != validPrompt.Text {
		t.Errorf("Prompt not forwarded")
	}
}

func TestRunner_StreamConcatenatesInOrder(t *testing.T) {
	backend := &spyBackend{fragments: []string{"Sunny", ". ", "Warm", " afternoon."}}
	obs := &recordingObserver{}
	r := NewRunner(backend, testOptions(true), obs, logging.Discard())

	res := r.Generate(context.Background(), validPrompt)

	if res.Text != "Sunny\nWarm afternoon." {
		t.Errorf("Text = %q", res.Text)
	}
	if strings.Join(obs.fragments, "") != "Sunny. Warm afternoon." {
		t.Errorf("observer saw %q", obs.fragments)
	}
	if obs.done != 1 {
		t.Errorf("Done called %d times", obs.done)
	}
}

func TestRunner_Failures(t *testing.T) {
	tests := []struct {
		name     string
		backend  *spyBackend
		stream   bool
		wantText string
		wantErr  error
	}{
		{"empty output", &spyBackend{text: "   "}, false, EmptyText, ErrEmptyOutput},
		{"generation error", &spyBackend{err: errors.New("cuda oom")}, false, FailedText, nil},
		{"stream error", &spyBackend{fragments: []string{"Half"}, err: errors.New("connection reset")}, true, FailedText, nil},
		{"never ready", &spyBackend{readyAfter: 1 << 20}, false, FailedText, ErrModelUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(tt.backend, testOptions(tt.stream), nil, logging.Discard())
			res := r.Generate(context.Background(), validPrompt)

			if res.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", res.Text, tt.wantText)
			}
			if res.Err == nil {
				t.Error("expected Err to be set")
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
		})
	}
}

func TestRunner_PollsUntilReady(t *testing.T) {
	backend := &spyBackend{readyAfter: 3, text: "Fine."}
	r := NewRunner(backend, testOptions(false), nil, logging.Discard())

	res := r.Generate(context.Background(), validPrompt)
	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if got := backend.readyCalls.Load(); got != 4 {
		t.Errorf("Ready calls = %d, want 4", got)
	}

	// an already running backend answers the first check
	r.Generate(context.Background(), validPrompt)
	if got := backend.readyCalls.Load(); got != 5 {
		t.Errorf("Ready calls after second run = %d, want 5", got)
	}
}

// flakyBackend is ready while up is set.
type flakyBackend struct {
	spyBackend
	up atomic.Bool
}

func (f *flakyBackend) Ready(ctx context.Context) error {
	f.readyCalls.Add(1)
	if !f.up.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestRunner_RechecksBackendEachRun(t *testing.T) {
	backend := &flakyBackend{spyBackend: spyBackend{text: "Fine."}}
	backend.up.Store(true)
	opts := testOptions(false)
	opts.ConnectTimeout = 30 * time.Millisecond
	r := NewRunner(backend, opts, nil, logging.Discard())

	if res := r.Generate(context.Background(), validPrompt); res.Err != nil {
		t.Fatalf("first run Err = %v", res.Err)
	}
	before := backend.readyCalls.Load()

	backend.up.Store(false)
	res := r.Generate(context.Background(), validPrompt)

	if !errors.Is(res.Err, ErrModelUnavailable) {
		t.Errorf("Err = %v, want ErrModelUnavailable", res.Err)
	}
	if res.Text != FailedText {
		t.Errorf("Text = %q", res.Text)
	}
	if after := backend.readyCalls.Load(); after <= before+1 {
		t.Errorf("Ready calls %d -> %d, want repeated polling", before, after)
	}
	if got := backend.genCalls.Load(); got != 1 {
		t.Errorf("generate calls = %d, want 1", got)
	}

	backend.up.Store(true)
	if res := r.Generate(context.Background(), validPrompt); res.Err != nil {
		t.Errorf("run after recovery Err = %v", res.Err)
	}
}

func TestRunner_StreamErrorEndsObserver(t *testing.T) {
	backend := &spyBackend{fragments: []string{"Half"}, err: errors.New("connection reset")}
	obs := &recordingObserver{}
	r := NewRunner(backend, testOptions(true), obs, logging.Discard())

	r.Generate(context.Background(), validPrompt)

	if obs.done != 1 {
		t.Errorf("Done called %d times, want 1", obs.done)
	}
}

func TestConsoleObserver_HeaderAfterFailedStream(t *testing.T) {
	var buf strings.Builder
	obs := NewConsoleObserver(&buf)
	backend := &spyBackend{fragments: []string{"Half"}, err: errors.New("connection reset")}
	r := NewRunner(backend, testOptions(true), obs, logging.Discard())

	r.Generate(context.Background(), validPrompt)
	backend.err = nil
	backend.fragments = []string{"Whole."}
	r.Generate(context.Background(), validPrompt)

	if n := strings.Count(buf.String(), "Generating weather description"); n != 2 {
		t.Errorf("header printed %d times, want 2:\n%s", n, buf.String())
	}
}

func TestRunner_MissingModelFailsFast(t *testing.T) {
	backend := NewLlamaCpp(LlamaCppOptions{
		ModelPath:   filepath.Join(t.TempDir(), "missing.gguf"),
		Endpoint:    "http://127.0.0.1:1",
		ContextSize: 1024,
		GPULayers:   -1,
	}, nil, logging.Discard())
	opts := testOptions(false)
	opts.ConnectTimeout = time.Minute

	r := NewRunner(backend, opts, nil, logging.Discard())
	start := time.Now()
	res := r.Generate(context.Background(), validPrompt)

	if !errors.Is(res.Err, ErrModelNotFound) {
		t.Fatalf("Err = %v, want ErrModelNotFound", res.Err)
	}
	if res.Text != FailedText {
		t.Errorf("Text = %q", res.Text)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("missing artifact should not wait for the connect timeout")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  A. B. C.  ":  "A\nB\nC.",
		"":              "",
		"\n\t":          "",
		"No period":     "No period",
		"3.5 degrees.":  "3.5 degrees.",
		"End. Start.\n": "End\nStart.",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
