package utils

import (
	"fmt"
	"time"
)

// FormatConfidence renders a confidence score in [0,1] as a percentage,
// e.g. 0.82 → "82%". Out-of-range values are shown as-is.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.0f%%", c*100)
}

// FormatAge renders how long ago t was relative to now, e.g. "5m", "3h", "2d".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
