// Package resilience pauses a failing dependency and retries transient errors.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State represents circuit breaker state
type State uint32

const (
	Closed   State = iota // calls pass through
	Open                  // calls rejected until ResetTimeout elapses
	HalfOpen              // probing recovery
)

func (s State) String() string {
	return [...]string{"closed", "open", "half-open"}[s]
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// Stats is a point-in-time view of the breaker.
type Stats struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Failures    int       `json:"consecutive_failures"`
	LastFailure time.Time `json:"last_failure,omitzero"`
	RetryAt     time.Time `json:"retry_at,omitzero"`
}

// Breaker implements the circuit breaker pattern with atomic state
type Breaker struct {
	cfg         Config
	state       atomic.Uint32
	failures    atomic.Int32
	successes   atomic.Int32
	lastFailure atomic.Int64 // unix nano

	hookMu sync.RWMutex
	hooks  []func(from, to State)
}

// New creates a breaker with config
func New(cfg Config) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults()}
	b.state.Store(uint32(Closed))
	return b
}

// WithHook adds a state change callback. Hooks run synchronously on the transitioning goroutine.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.hookMu.Lock()
	b.hooks = append(b.hooks, fn)
	b.hookMu.Unlock()
	return b
}

// Allow checks if request should proceed; returns nil if allowed
func (b *Breaker) Allow() error {
	switch State(b.state.Load()) {
	case Open:
		if b.shouldAttemptReset() {
			b.transition(HalfOpen)
			return nil
		}
		return ErrOpen
	default:
		return nil
	}
}

// Success records successful call
func (b *Breaker) Success() {
	switch State(b.state.Load()) {
	case HalfOpen:
		if b.successes.Add(1) >= int32(b.cfg.HalfOpenSuccesses) {
			b.transition(Closed)
		}
	case Closed:
		b.failures.Store(0)
	}
}

// Failure records failed call
func (b *Breaker) Failure() {
	b.lastFailure.Store(time.Now().UnixNano())
	count := b.failures.Add(1)

	switch State(b.state.Load()) {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		if count >= int32(b.cfg.Threshold) {
			b.transition(Open)
		}
	}
}

// State returns current state
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Stats returns counters and the earliest time an open breaker lets a probe through.
func (b *Breaker) Stats() Stats {
	st := Stats{Name: b.cfg.Name, State: b.State(), Failures: int(b.failures.Load())}
	if last := b.lastFailure.Load(); last != 0 {
		st.LastFailure = time.Unix(0, last)
		if st.State == Open {
			st.RetryAt = st.LastFailure.Add(b.cfg.ResetTimeout)
		}
	}
	return st
}

// Reset forces breaker to closed state
func (b *Breaker) Reset() {
	b.transition(Closed)
}

func (b *Breaker) transition(to State) {
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}

	log := slog.With("breaker", b.cfg.Name)
	switch to {
	case Closed:
		b.failures.Store(0)
		b.successes.Store(0)
		log.Info("circuit breaker closed")
	case Open:
		b.successes.Store(0)
		log.Warn("circuit breaker opened", "failures", b.failures.Load(), "retry_in", b.cfg.ResetTimeout)
	case HalfOpen:
		b.successes.Store(0)
		log.Info("circuit breaker half-open")
	}

	b.hookMu.RLock()
	hooks := b.hooks
	b.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(from, to)
	}
}

func (b *Breaker) shouldAttemptReset() bool {
	last := b.lastFailure.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) > b.cfg.ResetTimeout
}

// Execute runs fn with circuit breaker protection
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.Failure()
		return err
	}
	b.Success()
	return nil
}

// ExecuteWithResult runs fn returning value and error with circuit protection
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	if err != nil {
		b.Failure()
		return zero, err
	}
	b.Success()
	return result, nil
}
