// Copyright 2025 James Ross
package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewDisabledWhenNonPositive(t *testing.T) {
	l := New(0, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("disabled limiter should never block: %v", err)
		}
	}
}

func TestWaitRespectsContext(t *testing.T) {
	l := New(1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()
	// Drain the single burst token immediately.
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait should not block: %v", err)
	}
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected context deadline error on exhausted bucket")
	}
}
