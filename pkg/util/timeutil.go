package util

import "time"

// NowUTC exposes time.Now for deterministic testing.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// FormatISO8601 renders ts the way the analysis backend expects timestamps.
func FormatISO8601(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
