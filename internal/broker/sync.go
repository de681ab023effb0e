package broker

import (
	"sync"

	"papertrader/internal/models"
)

// SyncBroker serialises every call to the wrapped simulator with one mutex.
// Reads take the same lock because refreshing positions mutates market fields.
type SyncBroker struct {
	mu    sync.Mutex
	inner Simulator
}

// NewSyncBroker wraps s for use from several goroutines.
func NewSyncBroker(s Simulator) *SyncBroker {
	return &SyncBroker{inner: s}
}

func (b *SyncBroker) SubmitOrder(order models.Order) models.OrderResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.SubmitOrder(order)
}

func (b *SyncBroker) CancelOrder(orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.CancelOrder(orderID)
}

func (b *SyncBroker) GetOrder(orderID string) (models.OrderResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.GetOrder(orderID)
}

func (b *SyncBroker) GetOrders(filter StatusFilter) []models.OrderResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.GetOrders(filter)
}

func (b *SyncBroker) GetPosition(ticker string) (models.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.GetPosition(ticker)
}

func (b *SyncBroker) GetPositions() map[string]models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.GetPositions()
}

func (b *SyncBroker) GetAccount() models.AccountInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.GetAccount()
}

func (b *SyncBroker) GetCurrentPrice(ticker string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.GetCurrentPrice(ticker)
}

func (b *SyncBroker) SetPrice(ticker string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.SetPrice(ticker, price)
}

func (b *SyncBroker) SetPrices(prices map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.SetPrices(prices)
}

func (b *SyncBroker) ReevaluatePending() []models.OrderResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.ReevaluatePending()
}

func (b *SyncBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.Reset()
}

func (b *SyncBroker) GetPerformanceSummary() models.PerformanceSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.GetPerformanceSummary()
}

func (b *SyncBroker) SaveState(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.SaveState(path)
}

func (b *SyncBroker) LoadState(path string) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.LoadState(path)
}

var _ Simulator = (*SyncBroker)(nil)
