package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	now := start
	l := NewLimiter()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))

	for i := 1; i <= 3; i++ {
		if err := l.Check("assist:u1", 3, time.Minute); err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}

	err := l.Check("assist:u1", 3, time.Minute)
	var rlErr *Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("call 4: got %v, want *Error", err)
	}
	if rlErr.RetryAfterSeconds < 1 {
		t.Errorf("RetryAfterSeconds = %d, want >= 1", rlErr.RetryAfterSeconds)
	}
}

func TestCheckRejectedCallDoesNotConsumeBudget(t *testing.T) {
	l, now := newTestLimiter(time.Unix(1000, 0))

	if err := l.Check("k", 1, time.Minute); err != nil {
		t.Fatalf("first call: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := l.Check("k", 1, time.Minute); err == nil {
			t.Fatalf("over-limit call %d unexpectedly admitted", i)
		}
	}

	// After the window elapses the very next call must succeed; rejected
	// calls must not have pushed resetAt forward.
	*now = now.Add(time.Minute)
	if err := l.Check("k", 1, time.Minute); err != nil {
		t.Fatalf("post-window call: %v", err)
	}
}

func TestCheckWindowResetReplacesCounter(t *testing.T) {
	l, now := newTestLimiter(time.Unix(2000, 0))

	for i := 0; i < 3; i++ {
		if err := l.Check("k", 3, time.Minute); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	*now = now.Add(61 * time.Second)
	for i := 0; i < 3; i++ {
		if err := l.Check("k", 3, time.Minute); err != nil {
			t.Fatalf("fresh window call %d: %v", i, err)
		}
	}
}

func TestCheckRetryAfterRoundsUp(t *testing.T) {
	l, now := newTestLimiter(time.Unix(3000, 0))

	if err := l.Check("k", 1, 10*time.Second); err != nil {
		t.Fatalf("first call: %v", err)
	}

	*now = now.Add(9500 * time.Millisecond)
	err := l.Check("k", 1, 10*time.Second)
	var rlErr *Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("got %v, want *Error", err)
	}
	if rlErr.RetryAfterSeconds != 1 {
		t.Errorf("RetryAfterSeconds = %d, want 1 (ceil of 0.5s)", rlErr.RetryAfterSeconds)
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(4000, 0))

	if err := l.Check("a", 1, time.Minute); err != nil {
		t.Fatalf("key a: %v", err)
	}
	if err := l.Check("b", 1, time.Minute); err != nil {
		t.Fatalf("key b must have its own counter: %v", err)
	}
}
