package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"papertrader/internal/models"
)

// Recorder persists order results outside the ledger.
type Recorder interface {
	Record(ctx context.Context, result models.OrderResult) error
}

// JournaledBroker records every order result the wrapped simulator produces.
// Journal failures are logged and never change the result.
type JournaledBroker struct {
	Simulator
	recorder Recorder
	logger   zerolog.Logger
	timeout  time.Duration
}

// NewJournaledBroker wraps s so results are written to rec.
func NewJournaledBroker(s Simulator, rec Recorder, logger zerolog.Logger) *JournaledBroker {
	return &JournaledBroker{
		Simulator: s,
		recorder:  rec,
		logger:    logger.With().Str("component", "journal").Logger(),
		timeout:   5 * time.Second,
	}
}

func (b *JournaledBroker) record(result models.OrderResult) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.recorder.Record(ctx, result); err != nil {
		b.logger.Error().Err(err).Str("order_id", result.OrderID).Msg("Failed to journal order")
	}
}

// SubmitOrder submits and journals the result.
func (b *JournaledBroker) SubmitOrder(order models.Order) models.OrderResult {
	result := b.Simulator.SubmitOrder(order)
	b.record(result)
	return result
}

// CancelOrder cancels and journals the updated order.
func (b *JournaledBroker) CancelOrder(orderID string) bool {
	if !b.Simulator.CancelOrder(orderID) {
		return false
	}
	if r, ok := b.Simulator.GetOrder(orderID); ok {
		b.record(r)
	}
	return true
}

// ReevaluatePending reevaluates and journals every updated order.
func (b *JournaledBroker) ReevaluatePending() []models.OrderResult {
	updated := b.Simulator.ReevaluatePending()
	for _, r := range updated {
		b.record(r)
	}
	return updated
}

var _ Simulator = (*JournaledBroker)(nil)
