// Package resilience wraps remote provider calls with a retry policy, per
// provider circuit breakers and ordered failover between providers.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down has
	// elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successes close the breaker, any failure opens it again.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels log lines, usually the provider name.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// TrialCalls is the number of successful half-open calls needed to close
	// the breaker again. Default: 1.
	TrialCalls int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.TrialCalls <= 0 {
		c.TrialCalls = 1
	}
	return c
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// NewBreaker creates a [Breaker]. Zero config fields take their defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

// Execute runs fn unless the breaker is open. Cancellations and
// [Permanent] errors returned by fn are not counted as provider failures.
func (b *Breaker) Execute(fn func() error) error {
	trial, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn()
	b.release(trial, err)
	return err
}

func (b *Breaker) acquire() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.inFlight = 0
		b.successes = 0
		slog.Info("circuit breaker half-open", "provider", b.cfg.Name)
	}
	if b.state == StateHalfOpen {
		if b.inFlight+b.successes >= b.cfg.TrialCalls {
			return false, ErrCircuitOpen
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) release(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.inFlight--
	}
	if err != nil && (isCancellation(err) || IsPermanent(err)) {
		return
	}

	switch {
	case err != nil && trial:
		b.trip()
		slog.Warn("circuit breaker re-opened by failed trial call", "provider", b.cfg.Name, "error", err)
	case err != nil:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.trip()
			slog.Warn("circuit breaker opened", "provider", b.cfg.Name, "consecutive_failures", b.failures)
		}
	case trial:
		b.successes++
		if b.state == StateHalfOpen && b.successes >= b.cfg.TrialCalls {
			b.state = StateClosed
			b.failures = 0
			slog.Info("circuit breaker closed", "provider", b.cfg.Name)
		}
	default:
		b.failures = 0
	}
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.inFlight = 0
	b.successes = 0
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.inFlight = 0
	b.successes = 0
}
