package weather

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	clockLayout    = "15:04:05"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// FormatReport renders the fixed-layout report for loc. A fetch error or a
// nil response yields the no-data sentinel; a response that cannot be
// translated into a Snapshot yields the invalid sentinel.
func FormatReport(loc Location, resp *ForecastResponse, fetchErr error, now time.Time) Report {
	report, _ := formatReport(loc, resp, fetchErr, now)
	return report
}

func formatReport(loc Location, resp *ForecastResponse, fetchErr error, now time.Time) (Report, error) {
	if fetchErr != nil || resp == nil {
		return Report{Text: NoDataText, Status: ReportNoData}, fetchErr
	}

	snap, err := resp.Snapshot()
	if err != nil {
		return Report{Text: InvalidText, Status: ReportInvalid}, err
	}

	return Report{Text: RenderSnapshot(loc, snap, now), Status: ReportOK}, nil
}

// RenderSnapshot writes the report body for an already translated snapshot.
func RenderSnapshot(loc Location, snap Snapshot, now time.Time) string {
	zone := reportZone(loc, snap)
	now = now.In(zone)

	var b strings.Builder
	fmt.Fprintf(&b, "Weather report for %s:\n", loc.Name)
	fmt.Fprintf(&b, "Actual date: %s\n", now.Format(dateLayout))
	fmt.Fprintf(&b, "Actual time: %s\n", now.Format(clockLayout))
	b.WriteString("\nLast report's conditions:\n")
	fmt.Fprintf(&b, "  Measurement time: %s\n", snap.AsOf.In(zone).Format(clockLayout))
	fmt.Fprintf(&b, "  Temperature: %.1f°C\n", snap.TemperatureC)
	fmt.Fprintf(&b, "  Rain: %.1f mm\n", snap.RainMM)
	fmt.Fprintf(&b, "  Cloud cover: %.0f%%\n\n", snap.CloudCoverPct)
	b.WriteString("Today's forecast:\n")
	fmt.Fprintf(&b, "  Min temperature: %.1f°C\n", snap.DailyMinC)
	fmt.Fprintf(&b, "  Max temperature: %.1f°C\n", snap.DailyMaxC)
	fmt.Fprintf(&b, "  Sunrise: %s\n", snap.Sunrise.In(zone).Format(dateTimeLayout))
	fmt.Fprintf(&b, "  Sunset: %s", snap.Sunset.In(zone).Format(dateTimeLayout))
	return b.String()
}

func reportZone(loc Location, snap Snapshot) *time.Location {
	if snap.Zone != nil {
		return snap.Zone
	}
	if loc.Timezone != "" {
		if z, err := time.LoadLocation(loc.Timezone); err == nil {
			return z
		}
	}
	return time.Local
}
