package engine

import (
	"context"
	"testing"
	"time"
)

func TestNewLimited_ZeroRateReturnsInner(t *testing.T) {
	inner := &mockEngine{isRunning: true}
	if got := NewLimited(inner, 0, 1); got != Engine(inner) {
		t.Errorf("NewLimited(rate 0) wrapped the engine")
	}
}

func TestLimited_Throttles(t *testing.T) {
	e := NewLimited(&mockEngine{isRunning: true}, 20, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := e.Embed(context.Background(), "m", "x"); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	// burst 1 at 20/s: the second and third calls wait ~50ms each.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 calls took %v, want throttled", elapsed)
	}
	if !e.IsRunning(context.Background()) {
		t.Error("IsRunning not delegated")
	}
}

func TestLimited_ContextCancelled(t *testing.T) {
	e := NewLimited(&mockEngine{}, 0.001, 1)
	e.Chat(context.Background(), "m", nil, nil) // consume the burst

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.Chat(ctx, "m", nil, nil); err == nil {
		t.Fatal("expected error when limiter wait exceeds deadline")
	}
}
