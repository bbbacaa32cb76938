package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/weather-ai/internal/config"
	"github.com/i474232898/weather-ai/internal/httpcache"
	"github.com/i474232898/weather-ai/internal/llm"
	"github.com/i474232898/weather-ai/internal/logging"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{"ollama", "ollama"},
		{"openai", "openai"},
		{"llamacpp", "llamacpp"},
		{"", "ollama"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			b := newBackend(config.ModelConfig{
				Backend:     tt.backend,
				Endpoint:    "http://127.0.0.1:11434",
				Name:        "llama3.2",
				Path:        "/models/m.gguf",
				ContextSize: 1024,
			}, logging.Discard())
			if b.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", b.Name(), tt.want)
			}
			_, starts := b.(llm.Starter)
			if starts != (tt.want == "llamacpp") {
				t.Errorf("Starter = %v", starts)
			}
		})
	}
}

func TestNewCacheStorage(t *testing.T) {
	cfg := &config.Config{BaseDir: t.TempDir()}
	cfg.Weather.CacheTTL = 0

	mem, err := newCacheStorage(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("memory cache error = %v", err)
	}
	if _, ok := mem.(*httpcache.MemoryStorage); !ok {
		t.Errorf("empty cache_path should keep the cache in memory, got %T", mem)
	}

	cfg.Weather.CachePath = filepath.Join("cache", "http_cache.sqlite")
	cfg.Weather.CacheTTL = time.Hour
	disk, err := newCacheStorage(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("sqlite cache error = %v", err)
	}
	sqlite, ok := disk.(*httpcache.SQLiteStorage)
	if !ok {
		t.Fatalf("got %T, want *httpcache.SQLiteStorage", disk)
	}
	if err := sqlite.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
