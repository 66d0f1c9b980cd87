package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned (or passed to the fallback) when the circuit short-circuits a call.
var ErrOpen = errors.New("service unavailable: circuit breaker open")

var errPanicked = errors.New("operation panicked")

// CircuitBreaker protects upstream calls by opening after repeated failures
// and allowing a trial request in half-open state.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	trialInFlight    bool
	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time
	onStateChange    func(from, to State) // optional, for metrics
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
	OnStateChange    func(from, to State)
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Counts is a point-in-time snapshot of breaker bookkeeping.
type Counts struct {
	State           State
	Failures        int
	LastFailureTime time.Time
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		now:              cfg.Now,
		onStateChange:    cfg.OnStateChange,
	}
}

// Execute runs op through cb. When the circuit is open (or a half-open trial is already
// running) op is skipped and fallback is called with ErrOpen. When op fails the failure is
// recorded and fallback is called with op's error. A nil fallback makes Execute return the
// error instead.
//
// A failure that coincides with ctx ending is not counted. A panicking op counts as a
// failure and the panic propagates.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error), fallback func(ctx context.Context, err error) (T, error)) (T, error) {
	var zero T
	trial, allowed := cb.before()
	if !allowed {
		if fallback != nil {
			return fallback(ctx, ErrOpen)
		}
		return zero, ErrOpen
	}

	v, err := guard(ctx, cb, trial, op)
	if err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return zero, err
	}
	return v, nil
}

// guard runs op and records its outcome, including when op panics.
func guard[T any](ctx context.Context, cb *CircuitBreaker, trial bool, op func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			cb.after(trial, errPanicked)
			panic(r)
		}
	}()
	v, err = op(ctx)
	if err != nil && ctx.Err() != nil {
		cb.release(trial)
		return v, err
	}
	cb.after(trial, err)
	return v, err
}

// before decides whether a call may proceed. trial is true for the single half-open trial.
func (cb *CircuitBreaker) before() (trial, allowed bool) {
	cb.mu.Lock()
	var transition bool
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.recoveryTimeout {
			cb.mu.Unlock()
			return false, false
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.trialInFlight = true
		transition = true
		trial = true
	case StateHalfOpen:
		if cb.trialInFlight {
			cb.mu.Unlock()
			return false, false
		}
		cb.trialInFlight = true
		trial = true
	}
	cb.mu.Unlock()

	if transition && cb.onStateChange != nil {
		cb.onStateChange(StateOpen, StateHalfOpen)
	}
	return trial, true
}

// after records the outcome of an allowed call.
func (cb *CircuitBreaker) after(trial bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if trial {
		cb.trialInFlight = false
	}

	if err != nil {
		cb.failureCount++
		cb.lastFailureTime = cb.now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.state = StateOpen
		}
	} else {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.successThreshold {
				cb.state = StateClosed
				cb.successCount = 0
			}
		}
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to && cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

// release frees a half-open trial slot without recording an outcome.
func (cb *CircuitBreaker) release(trial bool) {
	if !trial {
		return
	}
	cb.mu.Lock()
	cb.trialInFlight = false
	cb.mu.Unlock()
}

// State returns the current state (for metrics). An open circuit whose recovery window has
// elapsed still reports open until the next call tries it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a consistent snapshot of state, failure count and last failure time.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Counts{
		State:           cb.state,
		Failures:        cb.failureCount,
		LastFailureTime: cb.lastFailureTime,
	}
}
