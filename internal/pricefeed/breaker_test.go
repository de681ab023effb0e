package pricefeed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"papertrader/internal/errors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)}
	b := NewBreaker(threshold, 10*time.Second)
	b.now = clock.now
	return b, clock
}

func wantState(t *testing.T, b *Breaker, want CircuitState, what string) {
	t.Helper()
	if got := b.State(); got != want {
		t.Errorf("%s: State() = %s, want %s", what, got, want)
	}
}

func mustAllow(t *testing.T, b *Breaker) {
	t.Helper()
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
}

func wantOpen(t *testing.T, err error, what string) {
	t.Helper()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("%s: error = %v, want ErrCircuitOpen", what, err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := testBreaker(3)

	for i := 0; i < 2; i++ {
		mustAllow(t, b)
		b.Failure()
	}
	wantState(t, b, CircuitClosed, "below threshold")

	mustAllow(t, b)
	b.Success()
	mustAllow(t, b)
	b.Failure()
	wantState(t, b, CircuitClosed, "success resets the count")

	for i := 0; i < 2; i++ {
		mustAllow(t, b)
		b.Failure()
	}
	wantState(t, b, CircuitOpen, "at threshold")
	wantOpen(t, b.Allow(), "open breaker")
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, clock := testBreaker(1)
	b.Failure()
	wantState(t, b, CircuitOpen, "after failure")

	clock.advance(10 * time.Second)
	wantState(t, b, CircuitHalfOpen, "after cooldown")
	mustAllow(t, b)
	wantOpen(t, b.Allow(), "only one probe at a time")

	b.Failure()
	wantState(t, b, CircuitOpen, "failed probe reopens")
	wantOpen(t, b.Allow(), "reopened breaker")

	clock.advance(10 * time.Second)
	mustAllow(t, b)
	b.Success()
	wantState(t, b, CircuitClosed, "successful probe")
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() after recovery error = %v", err)
	}
}

func TestBreakerDisabled(t *testing.T) {
	b, _ := testBreaker(0)
	for i := 0; i < 10; i++ {
		b.Failure()
	}
	wantState(t, b, CircuitClosed, "zero threshold")
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() error = %v", err)
	}

	var nilBreaker *Breaker
	if err := nilBreaker.Allow(); err != nil {
		t.Errorf("nil Allow() error = %v", err)
	}
	nilBreaker.Failure()
	wantState(t, nilBreaker, CircuitClosed, "nil breaker")
}

func TestThrottledShortCircuitsFailingSource(t *testing.T) {
	calls := 0
	src := SourceFunc(func(ctx context.Context, ticker string) (float64, error) {
		calls++
		return 0, fmt.Errorf("dial tcp: connection refused")
	})
	th := NewThrottled(src, ThrottleConfig{
		Retries:          1,
		Timeout:          time.Second,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	}, zerolog.Nop())
	th.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	for i := 0; i < 2; i++ {
		if _, ok := th.Price("AAPL"); ok {
			t.Fatal("Price() succeeded against failing source")
		}
	}
	if calls != 4 {
		t.Errorf("source calls = %d, want 4", calls)
	}
	if got := th.Circuit(); got != CircuitOpen {
		t.Errorf("Circuit() = %s, want open", got)
	}

	_, err := th.Fetch(context.Background(), "MSFT")
	wantOpen(t, err, "Fetch with open circuit")
	if calls != 4 {
		t.Errorf("open circuit reached the source: calls = %d", calls)
	}
}

func TestThrottledMissingPriceKeepsCircuitClosed(t *testing.T) {
	src := SourceFunc(func(ctx context.Context, ticker string) (float64, error) {
		return 0, errors.Wrapf(errors.ErrNoPrice, "no key for %s", ticker)
	})
	th := NewThrottled(src, ThrottleConfig{Timeout: time.Second, BreakerThreshold: 1, BreakerCooldown: time.Hour}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, err := th.Fetch(context.Background(), "ZZZ"); !errors.Is(err, errors.ErrNoPrice) {
			t.Errorf("Fetch() error = %v, want ErrNoPrice", err)
		}
	}
	if got := th.Circuit(); got != CircuitClosed {
		t.Errorf("Circuit() = %s, want closed", got)
	}
}
