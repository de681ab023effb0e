package pricefeed

import (
	"sync"
	"time"

	"papertrader/internal/errors"
)

// ErrCircuitOpen is returned while a source is failing and lookups are
// short-circuited.
var ErrCircuitOpen = errors.New("price source circuit open")

// CircuitState is the state of a Breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"    // lookups pass through
	CircuitOpen     CircuitState = "open"      // lookups fail fast
	CircuitHalfOpen CircuitState = "half_open" // one probe allowed
)

// Breaker stops calling a source after consecutive failures and lets a single
// probe through once the cooldown has elapsed. A zero threshold disables it.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     CircuitClosed,
	}
}

// Allow reports whether a lookup may proceed. It returns ErrCircuitOpen while
// the breaker is open or while a half-open probe is in flight.
func (b *Breaker) Allow() error {
	if b == nil || b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = CircuitHalfOpen
		b.probing = true
		return nil
	case CircuitHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

// Success records a lookup that reached the source, including one that found
// no price.
func (b *Breaker) Success() {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.probing = false
}

// Failure records a lookup that could not reach the source.
func (b *Breaker) Failure() {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if b.state == CircuitHalfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = CircuitOpen
	b.openedAt = b.now()
	b.failures = 0
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	if b == nil || b.threshold <= 0 {
		return CircuitClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return CircuitHalfOpen
	}
	return b.state
}
