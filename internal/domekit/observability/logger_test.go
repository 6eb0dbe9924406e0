package observability_test

import (
	"context"
	"testing"

	"github.com/domekit-run/domekit/internal/domekit/observability"
)

func TestWithTrace_NoRequestIDReturnsDefault(t *testing.T) {
	logger := observability.WithTrace(context.Background())
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestWithRequestID_RoundTrip(t *testing.T) {
	ctx := observability.WithRequestID(context.Background(), "req-123")
	if got := observability.RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("got %q, want req-123", got)
	}
}

func TestRedactSecrets(t *testing.T) {
	out := observability.RedactSecrets("api key is sk-abcdef1234567890", "sk-abcdef1234567890")
	if out == "api key is sk-abcdef1234567890" {
		t.Error("expected secret to be redacted")
	}
}
