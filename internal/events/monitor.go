package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"papertrader/internal/errors"
	"papertrader/internal/logging"
)

// DefaultMonitorInterval is the polling interval used when none is given.
const DefaultMonitorInterval = time.Minute

// PriceFetcher looks up the latest price of a ticker.
type PriceFetcher interface {
	Fetch(ctx context.Context, ticker string) (float64, error)
}

// Monitor polls prices for a fixed set of tickers and publishes them as
// price updates, which the publisher turns into alerts on large moves.
type Monitor struct {
	fetcher   PriceFetcher
	publisher *Publisher
	tickers   []string
	interval  time.Duration
	source    string
	logger    zerolog.Logger
}

// NewMonitor creates a monitor. source names the monitor in published events.
func NewMonitor(fetcher PriceFetcher, publisher *Publisher, tickers []string, interval time.Duration, source string, logger zerolog.Logger) *Monitor {
	if source == "" {
		source = "price_monitor"
	}
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		fetcher:   fetcher,
		publisher: publisher,
		tickers:   tickers,
		interval:  interval,
		source:    source,
		logger:    logging.WithComponent(logger, "price_monitor"),
	}
}

// Poll fetches every ticker once and publishes the prices found. Tickers
// without a price are skipped. It returns the number of events published.
func (m *Monitor) Poll(ctx context.Context) (int, error) {
	published := 0
	for _, ticker := range m.tickers {
		price, err := m.fetcher.Fetch(ctx, ticker)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return published, ctxErr
			}
			event := m.logger.Warn()
			if errors.Is(err, errors.ErrNoPrice) {
				event = m.logger.Debug()
			}
			event.Err(err).Str("ticker", ticker).Msg("Failed to fetch price")
			continue
		}

		e, err := m.publisher.PublishPriceUpdate(ctx, ticker, price, nil, m.source)
		if err != nil {
			return published, err
		}
		published++

		if e.EventType == EventPriceAlert {
			change, _ := Number(e.Data, "change_percent")
			m.logger.Info().Str("ticker", ticker).Float64("price", price).Float64("change_percent", change).Msg("Price alert")
		}
	}
	return published, nil
}

// Run polls immediately and then every interval until ctx is done. Publish
// failures are logged and retried on the next round.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().
		Strs("tickers", m.tickers).
		Dur("interval", m.interval).
		Float64("alert_threshold", m.publisher.threshold).
		Msg("Price monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error().Err(err).Msg("Publishing prices failed")
		}

		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Price monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
