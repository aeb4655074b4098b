package util

import (
	"fmt"
	"time"
)

// FormatNumber formats an int64 with K/M suffix for readability.
// Examples: 500 -> "500", 1500 -> "1.5K", 1500000 -> "1.5M"
func FormatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// FormatPercent renders a rate in [0,1] as a percentage with two decimals.
func FormatPercent(rate float64) string {
	return fmt.Sprintf("%.2f%%", 100*rate)
}

// FormatSignedPercent renders a relative change with an explicit sign, or "-"
// when it is undefined.
func FormatSignedPercent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", 100*(*v))
}

// FormatPValue renders a p-value, or "-" when no test was run.
func FormatPValue(p *float64) string {
	if p == nil {
		return "-"
	}
	if *p < 0.0001 {
		return "<0.0001"
	}
	return fmt.Sprintf("%.4f", *p)
}

// FormatTime formats a timestamp as "2006-01-02 15:04" in UTC, or "-" when zero.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// FormatTimePtr is FormatTime for optional timestamps.
func FormatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return FormatTime(*t)
}

// ParseTimeRFC3339 parses an RFC3339 timestamp string to time.Time.
// Returns zero time if parsing fails.
func ParseTimeRFC3339(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
