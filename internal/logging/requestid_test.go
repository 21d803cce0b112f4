package logging

import (
	"context"
	"testing"
)

func TestGenerateRequestIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := GenerateRequestID()
		if len(id) != 8 {
			t.Fatalf("GenerateRequestID() length = %d, want 8", len(id))
		}
		if seen[id] {
			t.Fatalf("GenerateRequestID() repeated %q", id)
		}
		seen[id] = true
	}
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID(fresh context) = %q, want empty", got)
	}

	id := GenerateRequestID()
	ctx := WithRequestID(context.Background(), id)
	if got := GetRequestID(ctx); got != id {
		t.Errorf("GetRequestID() = %q, want %q", got, id)
	}
}
