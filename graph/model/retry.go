package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of calls, including the first one.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between attempts.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. 0 means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// If nil, IsRetryable is used.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries transient provider errors three times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Validate checks the policy for invalid values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("retry policy: MaxAttempts must be >= 1")
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return errors.New("retry policy: delays must be >= 0")
	}
	if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return errors.New("retry policy: MaxDelay must be >= BaseDelay")
	}
	return nil
}

// WithRetry wraps m so that retryable failures are attempted again with
// exponential backoff and jitter. Context cancellation stops retrying
// immediately.
func WithRetry(m ChatModel, policy RetryPolicy) ChatModel {
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &retryModel{next: m, policy: policy}
}

type retryModel struct {
	next   ChatModel
	policy RetryPolicy
}

func (r *retryModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, r.policy.BaseDelay, r.policy.MaxDelay, nil)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ChatOut{}, ctx.Err()
			case <-timer.C:
			}
		}

		out, err := r.next.Chat(ctx, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !r.policy.Retryable(err) {
			return ChatOut{}, err
		}
	}
	return ChatOut{}, fmt.Errorf("giving up after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}

// computeBackoff returns min(base*2^attempt, maxDelay) plus a jitter in
// [0, base). attempt is zero-based.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	exponentialDelay := base * (1 << attempt)
	if maxDelay > 0 && exponentialDelay > maxDelay {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return exponentialDelay + jitter
}
