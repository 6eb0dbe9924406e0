// Package observability provides the ambient logging, tracing, and metrics
// stack shared by every component: structured logging with request-ID
// propagation, OpenTelemetry tracing of the tool-calling loop, and Prometheus
// counters for the derived metrics view.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/domekit-run/domekit/common/redact"
	"github.com/domekit-run/domekit/common/trace"
)

// Setup configures the global slog logger according to the provided level
// and format strings (e.g. level="info", format="json").
func Setup(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithRequestID returns a context carrying requestID, readable by WithTrace.
// The gateway's request IDs are UUIDs assigned once per incoming request
// (see audit.NewRequestID); propagating them through context.Context reuses
// the same trace-correlation mechanism every other handler boundary does.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return trace.WithTraceID(ctx, requestID)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, or ""
// if none is set.
func RequestIDFromContext(ctx context.Context) string {
	return trace.FromContext(ctx)
}

// WithTrace returns a child logger that always includes the request_id from
// ctx, so every log line emitted while serving a request carries its
// correlation ID without each call site threading it through by hand.
func WithTrace(ctx context.Context) *slog.Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return slog.Default()
	}
	return slog.With("request_id", id)
}

// RedactSecrets replaces known-sensitive values in a log message with
// "[REDACTED]". Call with the message text and the sensitive values to strip
// out (e.g. a manifest-declared API key pulled from the environment).
func RedactSecrets(msg string, sensitiveValues ...string) string {
	return redact.String(msg, sensitiveValues...)
}
