package importer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterAcquireRelease(t *testing.T) {
	l := NewLimiter(2, 50*time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if got := l.ActiveCount(); got != 2 {
		t.Errorf("active = %d, want 2", got)
	}
	if got := l.Available(); got != 0 {
		t.Errorf("available = %d, want 0", got)
	}

	// Both slots taken; the third acquire times out.
	if err := l.Acquire(ctx); !errors.Is(err, ErrTooManyImports) {
		t.Errorf("third acquire = %v, want ErrTooManyImports", err)
	}

	l.Release()
	if err := l.Acquire(ctx); err != nil {
		t.Errorf("acquire after release: %v", err)
	}

	l.Release()
	l.Release()
	if got := l.ActiveCount(); got != 0 {
		t.Errorf("active = %d, want 0", got)
	}
}

func TestLimiterContextCancelled(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("acquire = %v, want context.Canceled", err)
	}
}

func TestLimiterDefaults(t *testing.T) {
	l := NewLimiter(0, 0)
	if got := l.Available(); got != DefaultMaxConcurrentImports {
		t.Errorf("available = %d, want %d", got, DefaultMaxConcurrentImports)
	}
}

func TestLimiterWaitForDrain(t *testing.T) {
	l := NewLimiter(2, time.Second)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	go func() {
		time.Sleep(150 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain: %v", err)
	}
}

func TestLimiterWaitForDrainTimeout(t *testing.T) {
	l := NewLimiter(1, time.Second)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := l.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain = %v, want context.DeadlineExceeded", err)
	}
}
