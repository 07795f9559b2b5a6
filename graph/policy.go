package graph

import (
	"math/rand"
	"time"
)

// NodePolicy configures execution of a single node.
type NodePolicy struct {
	// Timeout overrides the engine's default node timeout when > 0.
	Timeout time.Duration

	// RetryPolicy retries the node on errors the policy considers retryable.
	// Nil disables retries.
	RetryPolicy *RetryPolicy
}

// RetryPolicy describes how a failing node is retried.
//
// The delay before attempt n (0-based) is min(BaseDelay*2^n, MaxDelay) plus a
// random jitter in [0, BaseDelay).
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Retryable reports whether an error is worth another attempt.
	// Nil treats every error as retryable.
	Retryable func(error) bool
}

// Validate checks the policy for impossible settings.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp *RetryPolicy) shouldRetry(attempt int, err error) bool {
	if rp == nil || attempt+1 >= rp.MaxAttempts {
		return false
	}
	if rp.Retryable == nil {
		return true
	}
	return rp.Retryable(err)
}

func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if maxDelay > 0 && delay >= maxDelay {
			break
		}
		delay *= 2
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry jitter
	}
	return delay + jitter
}
