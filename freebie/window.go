package freebie

import (
	"strconv"
	"strings"
	"time"
)

// DefaultWindow is the free tier window used when none is configured or the
// configured value cannot be parsed.
const DefaultWindow = time.Hour

// ParseWindow parses a free tier window specification. Accepted forms are a
// duration with one of the suffixes ms, s, m, h or d ("30s", "5m", "1d") or
// a raw integer which is interpreted as milliseconds. Anything unparseable
// falls back to DefaultWindow.
func ParseWindow(window string) time.Duration {
	if window == "" {
		return DefaultWindow
	}

	// A bare integer is a millisecond count.
	if ms, err := strconv.ParseInt(window, 10, 64); err == nil {
		if ms <= 0 {
			return DefaultWindow
		}
		return time.Duration(ms) * time.Millisecond
	}

	// time.ParseDuration has no day unit.
	if days, found := strings.CutSuffix(window, "d"); found {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil || n <= 0 {
			return DefaultWindow
		}
		return time.Duration(n) * 24 * time.Hour
	}

	duration, err := time.ParseDuration(window)
	if err != nil || duration <= 0 {
		return DefaultWindow
	}

	return duration
}
