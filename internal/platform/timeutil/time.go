// Package timeutil holds the timestamp format shared by JSON documents the
// service and its tooling write.
package timeutil

import (
	"fmt"
	"time"
)

// RFC3339Millis is RFC 3339 in UTC with exactly three fractional digits.
const RFC3339Millis = "2006-01-02T15:04:05.000Z"

// Time marshals as an RFC3339Millis string, e.g. "2026-01-15T10:30:00.000Z".
type Time struct {
	time.Time
}

// Now returns the current instant.
func Now() Time {
	return Time{Time: time.Now()}
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(RFC3339Millis) + `"`), nil
}

// UnmarshalJSON accepts any RFC 3339 timestamp. A JSON null leaves t as is.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("timeutil: expected JSON string, got %s", s)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s[1:len(s)-1])
	if err != nil {
		return fmt.Errorf("timeutil: %w", err)
	}
	t.Time = parsed
	return nil
}
