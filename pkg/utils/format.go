package utils

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// runIDZone is the zone run ids are rendered in (UTC+7).
var runIDZone = time.FixedZone("ICT", 7*60*60)

// FormatSize renders a byte count using binary units
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatDuration renders a duration as h/m/s
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// VersionStamp formats t as yyMMdd_HHmm, used for conflict-renamed files.
func VersionStamp(t time.Time) string {
	return t.Format("060102_1504")
}

// NewRunID returns a batch correlation id in the form yyMMdd-HHmmss (UTC+7).
func NewRunID(t time.Time) string {
	return t.In(runIDZone).Format("060102-150405")
}
