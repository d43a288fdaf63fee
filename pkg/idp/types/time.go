package types

import (
	"strings"
	"time"
)

// TimeLayout is the gateway timestamp format, always UTC
const TimeLayout = "2006-01-02 15:04:05"

var parseLayouts = []string{
	TimeLayout,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// FormatTime renders t in gateway format
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts gateway format and the ISO variants the gateway echoes
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range parseLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// NormalizeTime rewrites s in gateway format. It returns false when s
// cannot be parsed.
func NormalizeTime(s string) (string, bool) {
	t, err := ParseTime(s)
	if err != nil {
		return "", false
	}
	return FormatTime(t), true
}
