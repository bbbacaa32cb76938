package weather

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrFetchFailed wraps every failure of a weather provider.
	ErrFetchFailed = errors.New("weather fetch failed")
	// ErrMalformedSnapshot is returned when a response lacks a requested value.
	ErrMalformedSnapshot = errors.New("malformed weather snapshot")
)

// ForecastResponse is the Open-Meteo forecast payload requested with
// timeformat=unixtime. Values are kept by variable name so that nulls and
// missing variables are visible to Snapshot.
type ForecastResponse struct {
	Latitude             float64               `json:"latitude"`
	Longitude            float64               `json:"longitude"`
	Timezone             string                `json:"timezone"`
	TimezoneAbbreviation string                `json:"timezone_abbreviation"`
	UTCOffsetSeconds     int                   `json:"utc_offset_seconds"`
	Current              map[string]*float64   `json:"current"`
	Daily                map[string][]*float64 `json:"daily"`
}

type variable struct {
	name   string
	assign func(s *Snapshot, v float64)
}

// currentVariables and dailyVariables are shared by the request builder and
// Snapshot; their order is the order sent to the provider.
var currentVariables = []variable{
	{"temperature_2m", func(s *Snapshot, v float64) { s.TemperatureC = v }},
	{"rain", func(s *Snapshot, v float64) { s.RainMM = v }},
	{"cloud_cover", func(s *Snapshot, v float64) { s.CloudCoverPct = v }},
}

var dailyVariables = []variable{
	{"temperature_2m_min", func(s *Snapshot, v float64) { s.DailyMinC = v }},
	{"temperature_2m_max", func(s *Snapshot, v float64) { s.DailyMaxC = v }},
	{"sunrise", func(s *Snapshot, v float64) { s.Sunrise = time.Unix(int64(v), 0) }},
	{"sunset", func(s *Snapshot, v float64) { s.Sunset = time.Unix(int64(v), 0) }},
}

// CurrentVariables lists the "current" variables in request order.
func CurrentVariables() []string { return names(currentVariables) }

// DailyVariables lists the "daily" variables in request order.
func DailyVariables() []string { return names(dailyVariables) }

func names(vars []variable) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.name
	}
	return out
}

// Snapshot translates the response into named fields. Today's forecast is the
// first daily entry.
func (r *ForecastResponse) Snapshot() (Snapshot, error) {
	if r == nil {
		return Snapshot{}, fmt.Errorf("%w: empty response", ErrMalformedSnapshot)
	}

	snap := Snapshot{Zone: r.zone()}

	asOf, err := finite(r.Current["time"], "current.time")
	if err != nil {
		return Snapshot{}, err
	}
	snap.AsOf = time.Unix(int64(asOf), 0)

	for _, v := range currentVariables {
		val, err := finite(r.Current[v.name], "current."+v.name)
		if err != nil {
			return Snapshot{}, err
		}
		v.assign(&snap, val)
	}

	for _, v := range dailyVariables {
		values := r.Daily[v.name]
		if len(values) == 0 {
			return Snapshot{}, fmt.Errorf("%w: daily.%s missing", ErrMalformedSnapshot, v.name)
		}
		val, err := finite(values[0], "daily."+v.name)
		if err != nil {
			return Snapshot{}, err
		}
		v.assign(&snap, val)
	}

	return snap, nil
}

func (r *ForecastResponse) zone() *time.Location {
	if r.Timezone != "" {
		if loc, err := time.LoadLocation(r.Timezone); err == nil {
			return loc
		}
	}
	if r.UTCOffsetSeconds != 0 || r.TimezoneAbbreviation != "" {
		return time.FixedZone(r.TimezoneAbbreviation, r.UTCOffsetSeconds)
	}
	return nil
}

func finite(v *float64, field string) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s missing", ErrMalformedSnapshot, field)
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, fmt.Errorf("%w: %s not finite", ErrMalformedSnapshot, field)
	}
	return *v, nil
}
