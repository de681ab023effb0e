package broker

import (
	"fmt"
	"os"

	"papertrader/internal/models"
	"papertrader/internal/snapshot"
)

// Snapshot captures the durable ledger state.
func (p *PaperBroker) Snapshot() snapshot.State {
	s := snapshot.State{
		Version:           snapshot.Version,
		SavedAt:           p.now(),
		InitialCash:       p.initialCash,
		Cash:              p.cash,
		MarginRequirement: p.marginRequirement,
		MarginUsed:        p.marginUsed,
		MaxSlippage:       p.maxSlippage,
		Positions:         make(map[string]models.Position, len(p.positions)),
		Orders:            make(map[string]models.OrderResult, len(p.orders)),
		Prices:            make(map[string]float64, len(p.prices)),
		PendingOrders:     make(map[string]models.Order, len(p.pending)),
	}
	for ticker, pos := range p.positions {
		s.Positions[ticker] = *pos
	}
	for id, r := range p.orders {
		s.Orders[id] = *r
	}
	for ticker, price := range p.prices {
		s.Prices[ticker] = price
	}
	for id, o := range p.pending {
		s.PendingOrders[id] = o
	}
	return s
}

// Restore replaces the ledger with s. Slippage and the price provider are kept.
func (p *PaperBroker) Restore(s snapshot.State) {
	p.initialCash = s.InitialCash
	p.cash = s.Cash
	p.marginRequirement = s.MarginRequirement
	p.marginUsed = s.MarginUsed
	p.maxSlippage = s.MaxSlippage

	p.positions = make(map[string]*models.Position, len(s.Positions))
	for ticker, pos := range s.Positions {
		pos.Ticker = ticker
		p.positions[ticker] = &pos
	}
	p.orders = make(map[string]*models.OrderResult, len(s.Orders))
	for id, r := range s.Orders {
		p.orders[id] = &r
		if r.SubmittedAt.After(p.lastSubmit) {
			p.lastSubmit = r.SubmittedAt
		}
	}
	p.prices = make(map[string]float64, len(s.Prices))
	for ticker, price := range s.Prices {
		p.prices[ticker] = price
	}
	p.pending = make(map[string]models.Order, len(s.PendingOrders))
	for id, o := range s.PendingOrders {
		if r, ok := p.orders[id]; ok && r.Status == models.OrderStatusPending {
			p.pending[id] = o
		}
	}
}

// SaveState writes the ledger to path, or to the configured state file when
// path is empty.
func (p *PaperBroker) SaveState(path string) error {
	if path == "" {
		path = p.stateFile
	}
	if err := snapshot.Save(path, p.Snapshot()); err != nil {
		return err
	}
	p.logger.Debug().Str("path", path).Msg("State saved")
	return nil
}

// LoadState replaces the ledger with the state file at path (or the configured
// state file). On failure the ledger is untouched and the message says why.
func (p *PaperBroker) LoadState(path string) (bool, string) {
	if path == "" {
		path = p.stateFile
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, fmt.Sprintf("No state file found at %s", path)
	}

	s, err := snapshot.Load(path)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("State load failed")
		return false, fmt.Sprintf("Error loading state: %v", err)
	}

	p.Restore(s)
	savedAt := "unknown"
	if !s.SavedAt.IsZero() {
		savedAt = s.SavedAt.Format("2006-01-02T15:04:05")
	}
	p.logger.Info().Str("path", path).Int("positions", len(s.Positions)).Int("orders", len(s.Orders)).Msg("State loaded")
	return true, fmt.Sprintf("State loaded from %s (saved at %s)", path, savedAt)
}
