package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/errors"
)

// scriptedFetcher returns successive prices per ticker, repeating the last.
type scriptedFetcher struct {
	mu     sync.Mutex
	prices map[string][]float64
	calls  int
}

func (f *scriptedFetcher) Fetch(_ context.Context, ticker string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	seq := f.prices[ticker]
	switch len(seq) {
	case 0:
		return 0, fmt.Errorf("%w for %s", errors.ErrNoPrice, ticker)
	case 1:
		return seq[0], nil
	}
	f.prices[ticker] = seq[1:]
	return seq[0], nil
}

func TestMonitorPollPublishesAndAlerts(t *testing.T) {
	bus := &memoryBus{}
	pub := NewPublisher(bus, "", WithAlertThreshold(2))
	pub.now = fixedClock()
	fetcher := &scriptedFetcher{prices: map[string][]float64{
		"AAPL": {100, 101, 95},
	}}
	m := NewMonitor(fetcher, pub, []string{"AAPL", "MISSING"}, time.Second, "", zerolog.Nop())

	n, err := m.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	first := bus.last(t)
	assert.Equal(t, EventPriceUpdate, first.EventType)
	assert.Equal(t, "price_monitor", first.Source)

	_, err = m.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventPriceUpdate, bus.last(t).EventType)

	_, err = m.Poll(context.Background())
	require.NoError(t, err)
	alert := bus.last(t)
	assert.Equal(t, EventPriceAlert, alert.EventType)
	assert.Equal(t, PriorityHigh, alert.Priority)
	price, ok := Number(alert.Data, "price")
	require.True(t, ok)
	assert.Equal(t, 95.0, price)

	assert.Len(t, bus.published, 3)
	assert.Equal(t, 6, fetcher.calls)
}

func TestMonitorRunUntilCancelled(t *testing.T) {
	bus := &memoryBus{}
	fetcher := &scriptedFetcher{prices: map[string][]float64{"X": {10}}}
	m := NewMonitor(fetcher, NewPublisher(bus, ""), []string{"X"}, 5*time.Millisecond, "test", zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.GreaterOrEqual(t, len(bus.published), 2)
}

func TestMonitorDefaultInterval(t *testing.T) {
	m := NewMonitor(&scriptedFetcher{}, NewPublisher(&memoryBus{}, ""), nil, 0, "", zerolog.Nop())
	assert.Equal(t, DefaultMonitorInterval, m.interval)
}
