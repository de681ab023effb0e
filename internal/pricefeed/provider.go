// Package pricefeed supplies market prices to the broker from Redis or from
// historical CSV files.
package pricefeed

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"papertrader/internal/broker"
	"papertrader/internal/errors"
)

// Source looks up the latest price for a ticker. Implementations return an
// error wrapping errors.ErrNoPrice when the ticker has no price.
type Source interface {
	Lookup(ctx context.Context, ticker string) (float64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, ticker string) (float64, error)

// Lookup calls f.
func (f SourceFunc) Lookup(ctx context.Context, ticker string) (float64, error) {
	return f(ctx, ticker)
}

// ThrottleConfig bounds lookups made through a Throttled provider.
type ThrottleConfig struct {
	RateLimit float64       // lookups per second, 0 for unlimited
	Retries   int           // additional attempts after a transient failure
	Timeout   time.Duration // per Price call

	// BreakerThreshold failed lookups in a row open the circuit for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultThrottleConfig returns the default throttle settings.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		RateLimit:        10,
		Retries:          3,
		Timeout:          2 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Throttled adapts a Source to broker.PriceProvider with rate limiting and
// retries. Missing prices are not retried. A circuit breaker fails lookups fast
// while the source is unreachable.
type Throttled struct {
	source  Source
	limiter *rate.Limiter
	breaker *Breaker
	retries int
	timeout time.Duration
	logger  zerolog.Logger

	newBackOff func() backoff.BackOff
}

var _ broker.PriceProvider = (*Throttled)(nil)

// NewThrottled wraps source.
func NewThrottled(source Source, cfg ThrottleConfig, logger zerolog.Logger) *Throttled {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultThrottleConfig().Timeout
	}
	return &Throttled{
		source:  source,
		limiter: rate.NewLimiter(limit, 1),
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		retries: max(cfg.Retries, 0),
		timeout: timeout,
		logger:  logger.With().Str("component", "price_feed").Logger(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
}

// Price implements broker.PriceProvider.
func (t *Throttled) Price(ticker string) (float64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	price, err := t.Fetch(ctx, ticker)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrNoPrice):
		case errors.Is(err, ErrCircuitOpen):
			t.logger.Debug().Str("ticker", ticker).Msg("Price source unavailable")
		default:
			t.logger.Warn().Err(err).Str("ticker", ticker).Msg("Price lookup failed")
		}
		return 0, false
	}
	return price, true
}

// Fetch looks up ticker, waiting on the rate limiter before each attempt. It
// returns ErrCircuitOpen without calling the source while the breaker is open.
func (t *Throttled) Fetch(ctx context.Context, ticker string) (float64, error) {
	if err := t.breaker.Allow(); err != nil {
		return 0, err
	}

	operation := func() (float64, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return 0, backoff.Permanent(err)
		}
		price, err := t.source.Lookup(ctx, ticker)
		if err != nil {
			if errors.Is(err, errors.ErrNoPrice) {
				return 0, backoff.Permanent(err)
			}
			t.logger.Debug().Err(err).Str("ticker", ticker).Msg("Retrying price lookup")
			return 0, err
		}
		if price <= 0 {
			return 0, backoff.Permanent(errors.Wrapf(errors.ErrNoPrice, "non-positive price %v for %s", price, ticker))
		}
		return price, nil
	}

	price, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(t.newBackOff()),
		backoff.WithMaxTries(uint(t.retries+1)),
	)
	switch {
	case err == nil, errors.Is(err, errors.ErrNoPrice):
		t.breaker.Success()
	case errors.Is(err, context.Canceled) && t.breaker.State() == CircuitClosed:
		// caller gave up
	default:
		t.breaker.Failure()
	}
	return price, err
}

// Circuit returns the breaker state.
func (t *Throttled) Circuit() CircuitState {
	return t.breaker.State()
}

// Chain tries each provider in order and returns the first price found.
type Chain []broker.PriceProvider

// Price implements broker.PriceProvider.
func (c Chain) Price(ticker string) (float64, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if price, ok := p.Price(ticker); ok {
			return price, true
		}
	}
	return 0, false
}

// Static is a fixed price table.
type Static map[string]float64

// Price implements broker.PriceProvider.
func (s Static) Price(ticker string) (float64, bool) {
	price, ok := s[ticker]
	return price, ok
}
