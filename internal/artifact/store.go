package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Artifact kinds and the folders they live in under the base directory.
const (
	KindReport      = "weather"
	KindDescription = "weather_description"
)

// StampLayout formats run timestamps used in artifact names.
const StampLayout = "2006-01-02_15-04-05"

// Mirror receives a copy of every written artifact.
type Mirror interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Saved lists the files written by Save.
type Saved struct {
	Latest  string `json:"latest"`
	Stamped string `json:"stamped"`
}

// Store writes one kind of artifact as <kind>_latest.txt and
// <kind>_<stamp>.txt inside dir.
type Store struct {
	dir    string
	kind   string
	mirror Mirror
	logger *slog.Logger
}

// NewStore creates a Store. mirror may be nil.
func NewStore(dir, kind string, mirror Mirror, logger *slog.Logger) *Store {
	return &Store{dir: dir, kind: kind, mirror: mirror, logger: logger}
}

func (s *Store) Kind() string { return s.kind }

// LatestPath is the file overwritten on every save.
func (s *Store) LatestPath() string {
	return filepath.Join(s.dir, s.kind+"_latest.txt")
}

// StampedPath is the per-run file for stamp.
func (s *Store) StampedPath(stamp string) string {
	return filepath.Join(s.dir, s.kind+"_"+stamp+".txt")
}

// Save writes text to the stamped and latest files, then mirrors both.
// Mirror failures are logged; only local write errors are returned.
func (s *Store) Save(ctx context.Context, stamp, text string) (Saved, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Saved{}, fmt.Errorf("create %s folder: %w", s.kind, err)
	}

	saved := Saved{Latest: s.LatestPath(), Stamped: s.StampedPath(stamp)}
	for _, path := range []string{saved.Stamped, saved.Latest} {
		if err := writeFileAtomic(path, []byte(text)); err != nil {
			return Saved{}, fmt.Errorf("save %s: %w", s.kind, err)
		}
	}

	if s.mirror != nil {
		for _, path := range []string{saved.Stamped, saved.Latest} {
			key := s.kind + "/" + filepath.Base(path)
			if err := s.mirror.Put(ctx, key, []byte(text)); err != nil {
				s.logger.Warn("Artifact mirror failed", "key", key, "error", err)
			}
		}
	}

	return saved, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
