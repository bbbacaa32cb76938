package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// LlamaCppOptions describe how llama-server is launched for a GGUF file.
type LlamaCppOptions struct {
	ModelPath   string
	Binary      string // llama-server executable
	Endpoint    string // where the server should listen, e.g. http://127.0.0.1:8081
	ContextSize int
	GPULayers   int    // negative offloads every layer
	Output      io.Writer
}

// LlamaCpp serves a local GGUF artifact through a child llama-server process
// and speaks to it as an OpenAI-compatible backend.
type LlamaCpp struct {
	*OpenAICompatible

	opts   LlamaCppOptions
	logger *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{} // closed once cmd has been reaped
}

func NewLlamaCpp(opts LlamaCppOptions, client *http.Client, logger *slog.Logger) *LlamaCpp {
	if opts.Binary == "" {
		opts.Binary = "llama-server"
	}
	api := NewOpenAICompatible(opts.Endpoint, modelName(opts.ModelPath), client)
	api.name = "llamacpp"
	return &LlamaCpp{OpenAICompatible: api, opts: opts, logger: logger}
}

func modelName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".gguf")
}

// Start checks the artifact and launches llama-server unless it is already
// running. A server that exited since the last call is launched again.
func (l *LlamaCpp) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != nil {
		select {
		case <-l.exited:
			l.logger.Warn("llama-server exited, restarting", "code", l.cmd.ProcessState.ExitCode())
			l.cmd = nil
		default:
			return nil
		}
	}
	if _, err := os.Stat(l.opts.ModelPath); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModelNotFound, l.opts.ModelPath, err)
	}

	args, err := l.args()
	if err != nil {
		return err
	}

	cmd := exec.Command(l.opts.Binary, args...)
	out := l.opts.Output
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", l.opts.Binary, err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	l.cmd, l.exited = cmd, exited
	l.logger.Info("llama-server started",
		"model", modelName(l.opts.ModelPath),
		"pid", cmd.Process.Pid,
		"ctx", l.opts.ContextSize,
		"gpu_layers", l.opts.GPULayers,
	)
	return nil
}

func (l *LlamaCpp) args() ([]string, error) {
	u, err := url.Parse(l.opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse llamacpp endpoint: %w", err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, fmt.Errorf("llamacpp endpoint needs host:port: %w", err)
	}

	gpu := l.opts.GPULayers
	if gpu < 0 {
		gpu = 999
	}

	return []string{
		"-m", l.opts.ModelPath,
		"-c", strconv.Itoa(l.opts.ContextSize),
		"-ngl", strconv.Itoa(gpu),
		"--host", host,
		"--port", port,
	}, nil
}

// Close stops the child process if one was started.
func (l *LlamaCpp) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd == nil || l.cmd.Process == nil {
		return nil
	}
	err := l.cmd.Process.Kill()
	<-l.exited
	l.cmd = nil
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
