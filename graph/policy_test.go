package graph

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestComputeBackoff(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := 10 * time.Millisecond
	maxDelay := 50 * time.Millisecond

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{0, 10 * time.Millisecond, 20 * time.Millisecond},
		{1, 20 * time.Millisecond, 30 * time.Millisecond},
		{2, 40 * time.Millisecond, 50 * time.Millisecond},
		{3, 50 * time.Millisecond, 60 * time.Millisecond},
		{40, 50 * time.Millisecond, 60 * time.Millisecond},
	}
	for _, tt := range tests {
		got := computeBackoff(tt.attempt, base, maxDelay, rng)
		if got < tt.min || got >= tt.max {
			t.Errorf("computeBackoff(%d) = %v, want in [%v, %v)", tt.attempt, got, tt.min, tt.max)
		}
	}

	if got := computeBackoff(3, 0, maxDelay, rng); got != 0 {
		t.Errorf("zero base backoff = %v, want 0", got)
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		valid  bool
	}{
		{"ok", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, true},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, false},
		{"max below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidRetryPolicy) {
				t.Errorf("Validate() = %v, want ErrInvalidRetryPolicy", err)
			}
		})
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	var nilPolicy *RetryPolicy
	if nilPolicy.shouldRetry(0, errors.New("x")) {
		t.Error("nil policy should never retry")
	}

	p := &RetryPolicy{MaxAttempts: 2}
	if !p.shouldRetry(0, errors.New("x")) {
		t.Error("attempt 0 of 2 should retry")
	}
	if p.shouldRetry(1, errors.New("x")) {
		t.Error("attempt 1 of 2 should not retry")
	}
}
