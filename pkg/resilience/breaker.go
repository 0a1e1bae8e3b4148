package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Breaker.Allow while the circuit is open and
// calls must fail fast without touching the transport.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State represents the breaker's position in its lifecycle.
type State int

const (
	// Closed passes calls through and counts consecutive failures.
	Closed State = iota
	// Open rejects every call immediately with ErrCircuitOpen.
	Open
	// HalfOpen admits exactly one probe call to decide the next state.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// BreakerConfig tunes a Breaker. Zero values fall back to the defaults above.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker from Closed to Open.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays Open before admitting a
	// half-open probe.
	ResetTimeout time.Duration
	// OnTransition, when set, is invoked after every state change. It runs
	// with the breaker's lock held and must not call back into the breaker.
	OnTransition func(from, to State)
}

// Breaker is a per-server circuit breaker. All transitions happen under one
// mutex so concurrent calls never double-count failures.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker constructs a Breaker in the Closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. While Open it returns
// ErrCircuitOpen until the reset timeout has elapsed, at which point the
// breaker moves to HalfOpen and admits a single probe; concurrent callers
// during that probe are rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.transition(HalfOpen)
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess resets the consecutive-failure counter and, after a
// successful half-open probe, closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	if b.state != Closed {
		b.transition(Closed)
	}
}

// RecordFailure counts one failure. A failed half-open probe reopens the
// circuit immediately; in Closed the breaker trips once the consecutive
// count reaches the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.probing = false
		b.openedAt = b.now()
		b.transition(Open)
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.transition(Open)
		}
	case Open:
		// Late failure from a call admitted before the trip; nothing to do.
	}
}

// Release clears the half-open probe slot when an admitted call ends without
// a success or failure being recorded, such as an aborted call. Without it a
// cancelled probe would wedge the breaker in HalfOpen.
func (b *Breaker) Release() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnTransition != nil {
		b.cfg.OnTransition(from, to)
	}
}
