package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// Known status and outcome values. Unknown statuses are kept as written;
// unknown outcomes are dropped.
var (
	knownStatus  = set("ok", "fail", "skip", "retry", "rate_limited", "rejected", "cancelled", "conflict", "undelivered", "degraded")
	knownOutcome = set("ok", "fail", "cancelled", "rate_limited", "rejected")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeStatus lowercases status and reports whether it is a known value.
func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	_, ok := knownStatus[status]
	return status, ok && status != ""
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	_, ok := knownOutcome[outcome]
	return outcome, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"bot",
	"route",
	"http_code",
	"update_id",
	"user_id",
	"chat_id",
	"admin_id",
	"handler",
	"cb_key",
	"state",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"claim_id",
	"session_id",
	"claim_status",
	"target_state",
	"payment_id",
	"contractor_id",
	"delivered",
	"count",
	"page",
	"total",
	"sent",
	"failed",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"collapsed",
	"repeats",
}
