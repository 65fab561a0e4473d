package logger

import (
	"strings"
	"time"
)

// Status renders an outcome as "ok" or "fail".
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return "fail"
}

// RoundMS rounds d to whole milliseconds; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

// Preview joins at most limit values and reports how many were left out.
func Preview(values []string, limit int) (string, int) {
	n := min(max(limit, 0), len(values))
	return strings.Join(values[:n], ", "), len(values) - n
}
