package weather

import (
	"fmt"
	"time"
)

// Location is the place a run reports on. It is not modified once resolved.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"` // IANA name, empty when unknown
}

// Snapshot is a single measurement plus today's forecast extremes.
type Snapshot struct {
	AsOf          time.Time
	TemperatureC  float64
	RainMM        float64
	CloudCoverPct float64
	DailyMinC     float64
	DailyMaxC     float64
	Sunrise       time.Time
	Sunset        time.Time

	// Zone is the provider's view of local time at the location.
	Zone *time.Location
}

// ReportStatus says whether a report can be handed to the model.
type ReportStatus int

const (
	ReportOK ReportStatus = iota
	ReportNoData
	ReportInvalid
)

func (s ReportStatus) String() string {
	switch s {
	case ReportOK:
		return "ok"
	case ReportNoData:
		return "no_data"
	case ReportInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

func (s ReportStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ReportStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ok":
		*s = ReportOK
	case "no_data":
		*s = ReportNoData
	case "invalid":
		*s = ReportInvalid
	default:
		return fmt.Errorf("unknown report status %q", b)
	}
	return nil
}

// Sentinel report texts.
const (
	NoDataText  = "No weather data available."
	InvalidText = "Error processing weather data."
)

// Report is the rendered weather text together with how it was produced.
type Report struct {
	Text   string       `json:"text"`
	Status ReportStatus `json:"status"`
}

// Valid reports whether downstream generation may use this report.
func (r Report) Valid() bool {
	return r.Status == ReportOK && r.Text != ""
}
