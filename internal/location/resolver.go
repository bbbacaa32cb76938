package location

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/i474232898/weather-ai/internal/weather"
)

// ErrNotFound is returned by ResolveNamed for names missing from the table.
var ErrNotFound = errors.New("location not found")

// Cracow is the compiled-in last resort when the table lacks its default.
var Cracow = weather.Location{Name: "Cracow", Latitude: 50.06, Longitude: 19.94}

// IPLocator resolves the caller's location from its public IP.
type IPLocator interface {
	Locate(ctx context.Context) (weather.Location, error)
}

// Geocoder turns a city name into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city string) (weather.Location, error)
}

// TimezoneFinder maps coordinates to an IANA zone name.
type TimezoneFinder interface {
	GetTimezone(latitude, longitude float64) (string, error)
}

// Options configures a Resolver. Nil collaborators are skipped.
type Options struct {
	Table       []weather.Location
	DefaultName string
	City        string // pins resolution to a named city
	IP          IPLocator
	Geocoder    Geocoder
	Timezones   TimezoneFinder
	Timeout     time.Duration // bound for each network lookup
}

// Resolver determines the location of a run. Resolve always yields one.
type Resolver struct {
	table       map[string]weather.Location
	defaultName string
	city        string
	ip          IPLocator
	geocoder    Geocoder
	timezones   TimezoneFinder
	timeout     time.Duration
	logger      *slog.Logger
}

func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	table := make(map[string]weather.Location, len(opts.Table))
	for _, l := range opts.Table {
		table[strings.ToLower(l.Name)] = l
	}
	return &Resolver{
		table:       table,
		defaultName: opts.DefaultName,
		city:        opts.City,
		ip:          opts.IP,
		geocoder:    opts.Geocoder,
		timezones:   opts.Timezones,
		timeout:     opts.Timeout,
		logger:      logger,
	}
}

// ResolveNamed looks name up in the local table, ignoring case.
func (r *Resolver) ResolveNamed(name string) (weather.Location, error) {
	l, ok := r.table[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return weather.Location{}, ErrNotFound
	}
	return r.annotate(l), nil
}

// Resolve tries the pinned city, then IP geolocation, then the default table
// entry. Failures along the way are logged as warnings.
func (r *Resolver) Resolve(ctx context.Context) weather.Location {
	if r.city != "" {
		l, err := r.resolvePinned(ctx)
		if err == nil {
			r.logger.Info("Using configured location", "location", l.Name)
			return l
		}
		r.logger.Warn("Configured city could not be resolved", "city", r.city, "error", err)
	}

	if r.ip != nil {
		lctx, cancel := r.withTimeout(ctx)
		l, err := r.ip.Locate(lctx)
		cancel()
		if err == nil {
			r.logger.Info("Location resolved from IP", "location", l.Name, "lat", l.Latitude, "lon", l.Longitude)
			return r.annotate(l)
		}
		r.logger.Warn("Live location lookup failed", "error", err)
	}

	if l, err := r.ResolveNamed(r.defaultName); err == nil {
		r.logger.Warn("Falling back to default location", "location", l.Name)
		return l
	}

	r.logger.Warn("Default location missing from table, using built-in", "default", r.defaultName, "location", Cracow.Name)
	return r.annotate(Cracow)
}

func (r *Resolver) resolvePinned(ctx context.Context) (weather.Location, error) {
	if l, err := r.ResolveNamed(r.city); err == nil {
		return l, nil
	}
	if r.geocoder == nil {
		return weather.Location{}, ErrNotFound
	}

	gctx, cancel := r.withTimeout(ctx)
	defer cancel()
	l, err := r.geocoder.Geocode(gctx, r.city)
	if err != nil {
		return weather.Location{}, err
	}
	return r.annotate(l), nil
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Resolver) annotate(l weather.Location) weather.Location {
	if l.Timezone != "" || r.timezones == nil {
		return l
	}
	tz, err := r.timezones.GetTimezone(l.Latitude, l.Longitude)
	if err != nil {
		r.logger.Debug("timezone lookup failed", "location", l.Name, "error", err)
		return l
	}
	l.Timezone = tz
	return l
}
