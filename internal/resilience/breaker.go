// Package resilience provides the fault-tolerance layer wrapped around every
// provider call: a circuit breaker and an exponential-backoff retryer.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without invoking
// the wrapped function.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the breaker state machine position.
type State int

const (
	// StateClosed allows calls through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen allows exactly one probe call through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Clock abstracts wall-clock reads so timeout transitions are deterministic
// in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens.
	FailureThreshold int

	// Timeout is the cooldown before a half-open probe is allowed.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *BreakerConfig) ApplyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Snapshot is a read-only view of breaker state for diagnostics.
type Snapshot struct {
	State            State
	Failures         int
	SinceLastFailure time.Duration
}

// CircuitBreaker is a three-state breaker owned by exactly one provider
// instance for its whole lifetime. A mutex guards state mutation; the wrapped
// function runs outside the lock.
type CircuitBreaker struct {
	cfg   BreakerConfig
	clock Clock

	mu       sync.Mutex
	state    State
	failures int
	lastFail time.Time
	probing  bool
}

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock injects a clock. Used by tests to control timeout transitions.
func WithClock(clock Clock) BreakerOption {
	return func(b *CircuitBreaker) {
		b.clock = clock
	}
}

// NewCircuitBreaker creates a closed breaker with the given thresholds.
func NewCircuitBreaker(cfg BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	cfg.ApplyDefaults()
	b := &CircuitBreaker{
		cfg:   cfg,
		clock: systemClock{},
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Call runs fn under breaker protection. The error returned by fn is passed
// through unchanged so callers can match on specific error kinds; rejections
// return ErrCircuitOpen without invoking fn.
func (b *CircuitBreaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn()
	b.after(err)
	return err
}

// before decides whether the call may proceed.
func (b *CircuitBreaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clock.Now().Sub(b.lastFail) < b.cfg.Timeout {
			return fmt.Errorf("%w: retry after %s", ErrCircuitOpen, b.cfg.Timeout)
		}
		// Cooldown elapsed: allow a single probe.
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: probe in flight", ErrCircuitOpen)
		}
		b.probing = true
		return nil
	default:
		return fmt.Errorf("%w: invalid state %s", ErrCircuitOpen, b.state)
	}
}

// after records the call outcome.
func (b *CircuitBreaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false

	if err == nil {
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFail = b.clock.Now()

	// A failed half-open probe reopens immediately; a closed breaker opens
	// once the consecutive-failure threshold is reached.
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
}

// Reset forces the breaker closed and clears the failure counter.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// State returns a side-effect-free snapshot for diagnostics.
func (b *CircuitBreaker) State() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		State:    b.state,
		Failures: b.failures,
	}
	if !b.lastFail.IsZero() {
		snap.SinceLastFailure = b.clock.Now().Sub(b.lastFail)
	}
	return snap
}
