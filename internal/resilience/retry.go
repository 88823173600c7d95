package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig holds retry policy settings layered above the breaker.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// BaseBackoff is the first backoff interval; it doubles on each
	// subsequent genuine failure (2^attempt scaling).
	BaseBackoff time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = time.Second
	}
}

// Retryer retries an operation with exponential backoff, each attempt
// re-entering the circuit breaker. Breaker rejections are short-circuited
// without a network call and do not consume backoff time; only genuine
// failures do.
type Retryer struct {
	cfg     RetryConfig
	breaker *CircuitBreaker

	// retryable classifies errors worth another attempt. Errors outside
	// the predicate are surfaced immediately.
	retryable func(error) bool

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryer creates a Retryer bound to one breaker. A nil retryable
// predicate retries every failure except breaker rejections.
func NewRetryer(cfg RetryConfig, breaker *CircuitBreaker, retryable func(error) bool) *Retryer {
	cfg.ApplyDefaults()
	return &Retryer{
		cfg:       cfg,
		breaker:   breaker,
		retryable: retryable,
		sleep:     sleepCtx,
	}
}

// Do runs fn through the breaker with up to MaxRetries additional attempts.
// The last error is returned once the retry budget is exhausted.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		err := r.breaker.Call(func() error { return fn(ctx) })
		if err == nil {
			return nil
		}
		lastErr = err

		// Breaker rejections are never retried within the same call.
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		if r.retryable != nil && !r.retryable(err) {
			return err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		backoff := r.cfg.BaseBackoff << attempt
		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
