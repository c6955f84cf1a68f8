package services_test

import (
	"context"
	"testing"

	"lifesaver/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := services.WithSessionID(context.Background(), "sess-1")
	ctx = services.WithCorrelationID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if id, ok := services.CorrelationIDFromContext(ctx); !ok || id != "req-123" {
		t.Fatalf("unexpected correlation id: %v %v", id, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	if services.WithSessionID(ctx, "") != ctx {
		t.Fatal("expected blank session id to return original context")
	}
	if _, ok := services.CorrelationIDFromContext(services.WithCorrelationID(ctx, "")); ok {
		t.Fatal("expected no correlation id")
	}
}
