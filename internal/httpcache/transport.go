package httpcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HeaderFromCache is set to "1" on responses served from storage.
const HeaderFromCache = "X-From-Cache"

// Entry is a stored response.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Storage persists entries by request key.
type Storage interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
}

// Transport is an http.RoundTripper serving GET responses from Storage while
// they are younger than TTL. Only 200 responses are stored.
type Transport struct {
	Base    http.RoundTripper
	Storage Storage
	TTL     time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, storage Storage, ttl time.Duration, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Base:    base,
		Storage: storage,
		TTL:     ttl,
		Logger:  logger,
		Now:     time.Now,
	}
}

// Key is the request signature: method plus URL with a canonical query.
func Key(req *http.Request) string {
	u := *req.URL
	u.RawQuery = canonicalQuery(u.RawQuery)
	u.Fragment = ""
	return req.Method + " " + u.String()
}

func canonicalQuery(raw string) string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	return values.Encode()
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || t.TTL <= 0 || t.Storage == nil {
		return t.Base.RoundTrip(req)
	}

	ctx := req.Context()
	key := Key(req)

	entry, ok, err := t.Storage.Get(ctx, key)
	if err != nil {
		t.log().Warn("http cache lookup failed", "key", key, "error", err)
	} else if ok && t.Now().Sub(entry.StoredAt) < t.TTL {
		t.log().Debug("http cache hit", "key", key, "age", t.Now().Sub(entry.StoredAt).Round(time.Second))
		return entry.response(req), nil
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	stored := Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: t.Now(),
	}
	if err := t.Storage.Set(ctx, key, stored); err != nil {
		t.log().Warn("http cache store failed", "key", key, "error", err)
	}
	return resp, nil
}

func (t *Transport) log() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (e Entry) response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderFromCache, "1")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
