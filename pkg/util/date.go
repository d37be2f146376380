package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// TruncateToSecond drops sub-second precision. Deterministic identifiers
// derived from timestamps must agree across producers with different clocks.
func TruncateToSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FormatSignalTime renders a timestamp the way execution identifiers expect it.
func FormatSignalTime(t time.Time) string {
	return TruncateToSecond(t).Format("2006-01-02T15:04:05")
}
