package httpcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage shares cached responses between process runs.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the cache database at path.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache folder: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		slog.Warn("could not set WAL mode on http cache", "error", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS responses (
        key TEXT PRIMARY KEY,
        status INTEGER NOT NULL,
        header TEXT NOT NULL,
        body BLOB NOT NULL,
        stored_at INTEGER NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		e        Entry
		header   string
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM responses WHERE key = ?`, key,
	).Scan(&e.Status, &header, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	e.Header = http.Header{}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached header: %w", err)
	}
	e.StoredAt = time.Unix(0, storedAt)
	return e, true, nil
}

func (s *SQLiteStorage) Set(ctx context.Context, key string, e Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses(key, status, header, body, stored_at) VALUES(?,?,?,?,?)`,
		key, e.Status, string(header), e.Body, e.StoredAt.UnixNano())
	return err
}

// Purge drops entries stored before cutoff.
func (s *SQLiteStorage) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE stored_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
