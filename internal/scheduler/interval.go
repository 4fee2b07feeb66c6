package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseIntervalDuration parses config intervals such as "30s", "5m", "1h", "1d", "1w".
// Anything time.ParseDuration accepts (e.g. "1h30m") also works. Returns (0, false) on
// invalid or non-positive input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if unit == 'd' || unit == 'w' {
		n, err := strconv.Atoi(numStr)
		if err != nil || n <= 0 {
			return 0, false
		}
		day := 24 * time.Hour
		if unit == 'w' {
			return time.Duration(n) * 7 * day, true
		}
		return time.Duration(n) * day, true
	}
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// IntervalOr parses interval and falls back to def when it is empty or invalid.
func IntervalOr(interval string, def time.Duration) time.Duration {
	if d, ok := ParseIntervalDuration(interval); ok {
		return d
	}
	return def
}
