package timeutil

import "time"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// ParseTimestamp parses an RFC 3339 timestamp, with or without fractional
// seconds, and returns it in UTC
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseTimestampOr returns fallback in UTC when value is empty or malformed
func ParseTimestampOr(value string, fallback time.Time) time.Time {
	if t, err := ParseTimestamp(value); err == nil {
		return t
	}
	return fallback.UTC()
}

// FormatTimestamp formats t as an RFC 3339 UTC timestamp
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
