package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Extra levels on top of the slog defaults.
const (
	LevelSuccess  = slog.Level(2)
	LevelCritical = slog.Level(12)
)

const timeLayout = "2006-01-02_15:04:05"

var levelStyles = map[string]lipgloss.Style{
	"DEBUG":    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	"INFO":     lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	"SUCCESS":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	"WARNING":  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	"ERROR":    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	"CRITICAL": lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
}

// LevelName returns the label written between brackets for a level.
func LevelName(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= LevelSuccess:
		return "SUCCESS"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "success":
		return LevelSuccess
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// Options configures New.
type Options struct {
	Level   slog.Level
	File    string // append-only log file; empty disables file output
	Console bool
}

// New builds a logger writing "[ts] [LEVEL] message" lines to the log file
// and, optionally, the console. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		file    io.WriteCloser
		console io.Writer
		color   bool
	)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log folder: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
	}

	if opts.Console {
		console = colorable.NewColorableStdout()
		color = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	h := NewHandler(file, console, color, opts.Level)
	return slog.New(h), closerFunc(func() error {
		if file != nil {
			return file.Close()
		}
		return nil
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Handler is a slog.Handler producing the plain bracketed line format.
type Handler struct {
	mu      *sync.Mutex
	file    io.Writer
	console io.Writer
	color   bool
	level   slog.Leveler
	prefix  string
	attrs   []slog.Attr
	now     func() time.Time
}

// NewHandler writes each record to file and console; either may be nil.
func NewHandler(file, console io.Writer, color bool, level slog.Leveler) *Handler {
	return &Handler{
		mu:      &sync.Mutex{},
		file:    file,
		console: console,
		color:   color,
		level:   level,
		now:     time.Now,
	}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = h.now()
	}
	name := LevelName(r.Level)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", ts.Format(timeLayout), name, r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	line := b.String()

	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	if h.file != nil {
		if _, err := io.WriteString(h.file, line+"\n"); err != nil {
			firstErr = err
		}
	}
	if h.console != nil {
		out := line
		if h.color {
			out = levelStyles[name].Render(line)
		}
		if _, err := io.WriteString(h.console, out+"\n"); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", ga)
		}
		return
	}
	v := a.Value.String()
	if strings.ContainsAny(v, " \t\n\"") {
		v = fmt.Sprintf("%q", v)
	}
	fmt.Fprintf(b, " %s%s=%s", prefix, a.Key, v)
}

// Success logs at LevelSuccess.
func Success(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelSuccess, msg, args...)
}

// Critical logs at LevelCritical.
func Critical(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelCritical, msg, args...)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(NewHandler(nil, nil, false, LevelCritical+1))
}
