// Package resilience keeps the recognition pipeline running when a speech
// engine misbehaves. [Breaker] stops calling an engine after repeated
// failures and probes it again after a cool-down; [Failover] tries a list of
// engines in order, each behind its own breaker.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls until the cool-down has elapsed.
	Open

	// Probing lets single calls through to test whether the engine recovered.
	Probing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take their defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is the number of consecutive successful probes that close the
	// breaker again. Default: 1.
	Probes int
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	passed   int
	inflight bool
	openedAt time.Time
}

// NewBreaker returns a closed breaker. name labels log messages.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the label given to [NewBreaker].
func (b *Breaker) Name() string { return b.name }

// Do runs fn unless the breaker is open. While probing only one call is in
// flight at a time; concurrent calls get [ErrOpen].
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrOpen
		}
		b.state = Probing
		b.passed = 0
		slog.Info("resilience: probing engine", "engine", b.name)
	}
	if b.state == Probing {
		if b.inflight {
			return false, ErrOpen
		}
		b.inflight = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.inflight = false
	}
	if err != nil {
		b.failures++
		if probe || b.failures >= b.cfg.MaxFailures {
			if b.state != Open {
				slog.Warn("resilience: circuit opened", "engine", b.name, "failures", b.failures, "err", err)
			}
			b.state = Open
			b.openedAt = b.now()
		}
		return
	}

	b.failures = 0
	if probe {
		b.passed++
		if b.passed >= b.cfg.Probes {
			b.state = Closed
			slog.Info("resilience: circuit closed", "engine", b.name)
		}
	}
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports [Probing]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return Probing
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.passed = 0
	b.inflight = false
}
