// Package circuit fails fast against an upstream that keeps erroring.
package circuit

import (
	"sync"
	"time"

	"quantdesk/internal/logger"
)

type State int

const (
	Closed State = iota
	Open
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

// Config tunes a Breaker. Zero Threshold means 1; nil Now means time.Now.
type Config struct {
	Name      string
	Threshold int
	Cooldown  time.Duration
	Now       func() time.Time
	// OnTransition replaces the default warning log. It runs on its own
	// goroutine.
	OnTransition func(name string, from, to State)
}

// Counts is a point-in-time view of a Breaker.
type Counts struct {
	State       State
	Failures    int
	Trips       int
	LastFailure time.Time
}

// Breaker opens after Threshold consecutive failures. Once Cooldown has passed
// since the last failure, calls are let through half-open: one success closes
// it again, one failure reopens it.
type Breaker struct {
	cfg Config
	log *logger.Entry

	mu       sync.Mutex
	state    State
	failures int
	trips    int
	lastFail time.Time
}

func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, log: logger.With("circuit").WithField("breaker", cfg.Name)}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{State: b.state, Failures: b.failures, Trips: b.trips, LastFailure: b.lastFail}
}

// Allow reports whether a call may go upstream.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.cfg.Now().Sub(b.lastFail) <= b.cfg.Cooldown {
		return false
	}
	b.moveLocked(HalfOpen)
	return true
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == HalfOpen {
		b.moveLocked(Closed)
	}
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFail = b.cfg.Now()
	switch {
	case b.state == HalfOpen:
		b.moveLocked(Open)
	case b.state == Closed && b.failures >= b.cfg.Threshold:
		b.moveLocked(Open)
	}
}

func (b *Breaker) moveLocked(to State) {
	from := b.state
	b.state = to
	if to == Open {
		b.trips++
	}
	if b.cfg.OnTransition != nil {
		go b.cfg.OnTransition(b.cfg.Name, from, to)
		return
	}
	b.log.Warnf("[circuit] %s %s -> %s after %d failure(s), retry in %s", b.cfg.Name, from, to, b.failures, b.cfg.Cooldown)
}
