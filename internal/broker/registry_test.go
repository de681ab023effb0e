package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

func TestRegistryCreatesPaperBrokers(t *testing.T) {
	r := NewRegistry()

	for _, name := range []Type{"", TypeMock, "PAPER", " mock "} {
		b, err := r.Create(name, Config{InitialCash: 500, MarginRequirement: 0.5})
		require.NoError(t, err, "type %q", name)
		_, ok := b.(*PaperBroker)
		assert.True(t, ok)
		assert.Equal(t, 500.0, b.GetAccount().Cash)
	}
}

func TestRegistryUnknownAndUnimplemented(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create("robinhood", DefaultConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownBroker))
	assert.Contains(t, err.Error(), "alpaca, ibkr, mock, paper")

	_, err = r.Create(TypeAlpaca, DefaultConfig())
	assert.True(t, errors.Is(err, errors.ErrBrokerNotImplemented))
	_, err = r.Create(TypeIBKR, DefaultConfig())
	assert.True(t, errors.Is(err, errors.ErrBrokerNotImplemented))
}

func TestRegistryRegisterCustom(t *testing.T) {
	r := NewRegistry()
	called := false
	require.NoError(t, r.Register("Custom", func(cfg Config) (Broker, error) {
		called = true
		return NewPaperBroker(cfg), nil
	}))

	_, err := r.Create("custom", DefaultConfig())
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, r.Types(), Type("custom"))

	assert.Error(t, r.Register("", func(Config) (Broker, error) { return nil, nil }))
	assert.Error(t, r.Register("x", nil))

	var empty Registry
	require.NoError(t, empty.Register("only", func(cfg Config) (Broker, error) { return NewPaperBroker(cfg), nil }))
	assert.Equal(t, []Type{"only"}, empty.Types())
}

func TestSyncBrokerConcurrentSubmits(t *testing.T) {
	inner := NewPaperBroker(Config{InitialCash: 1_000_000, MarginRequirement: 0.5})
	b := NewSyncBroker(inner)
	b.SetPrice("X", 10)

	var wg conc.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Go(func() {
			order, _ := models.NewOrder("X", models.OrderSideBuy, 2)
			b.SubmitOrder(order)
			b.GetAccount()
			b.GetPositions()
		})
	}
	wg.Wait()

	pos, ok := b.GetPosition("X")
	require.True(t, ok)
	assert.Equal(t, 100, pos.Quantity)
	assert.InDelta(t, 1_000_000-1000, b.GetAccount().Cash, 1e-9)
	assert.Len(t, b.GetOrders(StatusAll), 50)
}

type memoryRecorder struct {
	mu      sync.Mutex
	results []models.OrderResult
	fail    bool
}

func (m *memoryRecorder) Record(_ context.Context, r models.OrderResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("disk full")
	}
	m.results = append(m.results, r)
	return nil
}

func TestJournaledBrokerRecordsResults(t *testing.T) {
	rec := &memoryRecorder{}
	b := NewJournaledBroker(NewPaperBroker(Config{InitialCash: 10_000, MarginRequirement: 0.5}), rec, zerolog.Nop())
	b.SetPrice("X", 100)

	filled := b.SubmitOrder(mustOrder(t, "X", models.OrderSideBuy, 1))
	pending := b.SubmitOrder(mustOrder(t, "X", models.OrderSideBuy, 1, models.WithLimitPrice(90)))
	assert.False(t, b.CancelOrder(filled.OrderID))
	assert.True(t, b.CancelOrder(pending.OrderID))

	other := b.SubmitOrder(mustOrder(t, "X", models.OrderSideBuy, 1, models.WithLimitPrice(80)))
	b.SetPrice("X", 79)
	require.Len(t, b.ReevaluatePending(), 1)

	require.Len(t, rec.results, 5)
	assert.Equal(t, models.OrderStatusFilled, rec.results[0].Status)
	assert.Equal(t, models.OrderStatusPending, rec.results[1].Status)
	assert.Equal(t, models.OrderStatusCancelled, rec.results[2].Status)
	assert.Equal(t, other.OrderID, rec.results[4].OrderID)
	assert.Equal(t, models.OrderStatusFilled, rec.results[4].Status)
}

func TestJournaledBrokerIgnoresRecorderFailure(t *testing.T) {
	rec := &memoryRecorder{fail: true}
	b := NewJournaledBroker(NewPaperBroker(Config{InitialCash: 10_000, MarginRequirement: 0.5}), rec, zerolog.Nop())
	b.SetPrice("X", 100)

	r := b.SubmitOrder(mustOrder(t, "X", models.OrderSideBuy, 1))
	assert.Equal(t, models.OrderStatusFilled, r.Status)
	assert.Empty(t, rec.results)
}
