// Package resilience provides retry and circuit breaker helpers for calls to
// the search API and scraped domains.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of a breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen lets a trial call through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned when a breaker rejects a call.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls when a breaker trips and recovers.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit. Default: 3.
	FailureThreshold int
	// Cooldown is how long the circuit stays open. Default: 5m.
	Cooldown time.Duration
	// OnStateChange is called with the breaker key on every transition.
	OnStateChange func(key string, from, to CircuitState)
}

// DefaultBreakerConfig returns the defaults used for scraped domains.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, Cooldown: 5 * time.Minute}
}

// Breaker is a consecutive-failure circuit breaker for one key.
type Breaker struct {
	key   string
	cfg   BreakerConfig
	now   func() time.Time
	mu    sync.Mutex
	state CircuitState
	fails int
	since time.Time
}

func newBreaker(key string, cfg BreakerConfig, now func() time.Time) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Breaker{key: key, cfg: cfg, now: now}
}

// Allow reports whether a call may proceed. An open breaker whose cooldown
// has elapsed moves to half-open and admits a trial call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen {
		if b.now().Sub(b.since) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.transition(CircuitHalfOpen)
	}
	return nil
}

// Record feeds a call outcome back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.fails = 0
		if b.state != CircuitClosed {
			b.transition(CircuitClosed)
		}
		return
	}
	b.fails++
	if b.state == CircuitHalfOpen || b.fails >= b.cfg.FailureThreshold {
		b.since = b.now()
		if b.state != CircuitOpen {
			b.transition(CircuitOpen)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.since) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.key, from, to)
	}
}

// Execute runs fn through the breaker.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.Record(err)
	return val, err
}

// Breakers lazily creates one breaker per key (a domain, a service).
type Breakers struct {
	cfg      BreakerConfig
	now      func() time.Time
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers returns an empty registry using cfg for every breaker.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, now: time.Now, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it on first use.
func (r *Breakers) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = newBreaker(key, r.cfg, r.now)
		r.breakers[key] = b
	}
	return b
}

// States snapshots every breaker's state.
func (r *Breakers) States() map[string]CircuitState {
	r.mu.Lock()
	keys := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		keys = append(keys, b)
	}
	r.mu.Unlock()

	out := make(map[string]CircuitState, len(keys))
	for _, b := range keys {
		out[b.key] = b.State()
	}
	return out
}
