package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// serviceName tags every log line so governor's output is distinguishable
// from the other services sharing a log sink.
const serviceName = "governor"

// NewLogger creates a structured logger. Format is "json" or "text".
// Level is one of: debug, info, warn, error. Every record carries a
// "service" field so aggregated logs can be filtered per service.
func NewLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	var w io.Writer = os.Stdout
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", serviceName)
}

// WithTenant returns a child logger scoped to a tenant, for call paths
// (evaluation, template management) that act on behalf of one tenant and
// want every line correlated without repeating the field at each call site.
func WithTenant(logger *slog.Logger, tenantID string) *slog.Logger {
	return logger.With("tenant_id", tenantID)
}
