package broker

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"papertrader/internal/logging"
	"papertrader/internal/models"
	"papertrader/internal/snapshot"
)

const (
	DefaultInitialCash       = 1_000_000.0
	DefaultMarginRequirement = 0.5
	DefaultMaxSlippage       = snapshot.DefaultMaxSlippage
	DefaultStateFile         = "data/broker_state.json"

	// AccountID identifies the simulated account.
	AccountID = "paper-account"

	pendingMessage = "Order pending - limit price not reached"
)

// Config holds configuration for the paper broker.
type Config struct {
	InitialCash       float64
	MarginRequirement float64
	Slippage          float64
	MaxSlippage       float64
	PriceProvider     PriceProvider
	StateFile         string
	AutoSave          bool
	Logger            *zerolog.Logger
}

// DefaultConfig returns the paper broker defaults.
func DefaultConfig() Config {
	return Config{
		InitialCash:       DefaultInitialCash,
		MarginRequirement: DefaultMarginRequirement,
		MaxSlippage:       DefaultMaxSlippage,
		StateFile:         DefaultStateFile,
	}
}

// PaperBroker simulates order execution against a cash and margin ledger.
// It is not safe for concurrent use; wrap it with NewSyncBroker when shared.
type PaperBroker struct {
	initialCash       float64
	cash              float64
	marginRequirement float64
	marginUsed        float64
	slippage          float64
	maxSlippage       float64

	positions map[string]*models.Position
	orders    map[string]*models.OrderResult
	pending   map[string]models.Order // requests behind PENDING results
	prices    map[string]float64      // manual price cache

	provider  PriceProvider
	stateFile string
	autoSave  bool
	logger    zerolog.Logger

	now        func() time.Time
	newID      func() string
	lastSubmit time.Time // latest SubmittedAt handed out
}

// NewPaperBroker creates a paper broker from cfg. Zero values are taken as given.
func NewPaperBroker(cfg Config) *PaperBroker {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "paper_broker").Logger()
	}

	stateFile := cfg.StateFile
	if stateFile == "" {
		stateFile = DefaultStateFile
	}

	return &PaperBroker{
		initialCash:       cfg.InitialCash,
		cash:              cfg.InitialCash,
		marginRequirement: cfg.MarginRequirement,
		slippage:          cfg.Slippage,
		maxSlippage:       cfg.MaxSlippage,
		positions:         make(map[string]*models.Position),
		orders:            make(map[string]*models.OrderResult),
		pending:           make(map[string]models.Order),
		prices:            make(map[string]float64),
		provider:          cfg.PriceProvider,
		stateFile:         stateFile,
		autoSave:          cfg.AutoSave,
		logger:            logger,
		now:               time.Now,
		newID:             uuid.NewString,
	}
}

// SetPrice sets the manual price for ticker.
func (p *PaperBroker) SetPrice(ticker string, price float64) {
	p.prices[ticker] = price
}

// SetPrices merges prices into the manual price cache.
func (p *PaperBroker) SetPrices(prices map[string]float64) {
	for ticker, price := range prices {
		p.prices[ticker] = price
	}
}

// GetCurrentPrice checks the manual cache first, then the price provider.
func (p *PaperBroker) GetCurrentPrice(ticker string) (float64, bool) {
	if price, ok := p.prices[ticker]; ok {
		return price, true
	}
	if p.provider != nil {
		return p.provider.Price(ticker)
	}
	return 0, false
}

// applySlippage moves price against the trader.
func (p *PaperBroker) applySlippage(price float64, side models.OrderSide) float64 {
	if p.slippage == 0 {
		return price
	}
	if side == models.OrderSideBuy {
		return price * (1 + p.slippage)
	}
	return price * (1 - p.slippage)
}

// limitReached reports whether a limit order is executable at current.
func limitReached(order models.Order, current float64) bool {
	limit := *order.LimitPrice
	if order.Side == models.OrderSideBuy {
		return current <= limit
	}
	return current >= limit
}

// executionPrice resolves the fill price for order. A non-empty reason means
// the order is rejected; pending means a limit order is not yet executable.
func (p *PaperBroker) executionPrice(order models.Order, current float64) (price float64, pending bool, reason string) {
	switch order.Type {
	case models.OrderTypeMarket:
		price = p.applySlippage(current, order.Side)
		if p.maxSlippage > 0 && current > 0 {
			actual := math.Abs(price-current) / current
			if actual > p.maxSlippage+1e-12 {
				return 0, false, fmt.Sprintf("Slippage %.2f%% exceeds max %.2f%%", actual*100, p.maxSlippage*100)
			}
		}
		return price, false, ""
	case models.OrderTypeLimit:
		if !limitReached(order, current) {
			return 0, true, ""
		}
		return *order.LimitPrice, false, ""
	default:
		// stop and stop_limit execute at market with slippage
		return p.applySlippage(current, order.Side), false, ""
	}
}

// SubmitOrder executes order against the ledger. It never panics or returns an
// error: every failure is a REJECTED result.
func (p *PaperBroker) SubmitOrder(order models.Order) models.OrderResult {
	submittedAt := p.submitTime()

	if err := order.Validate(); err != nil {
		return p.reject(order, submittedAt, err.Error())
	}

	current, ok := p.GetCurrentPrice(order.Ticker)
	if !ok {
		return p.reject(order, submittedAt, fmt.Sprintf("No price available for %s", order.Ticker))
	}

	execPrice, pending, reason := p.executionPrice(order, current)
	if reason != "" {
		return p.reject(order, submittedAt, reason)
	}

	if pending {
		result := p.newResult(order, submittedAt)
		result.Status = models.OrderStatusPending
		result.Message = pendingMessage
		p.store(result)
		p.pending[result.OrderID] = order
		p.logger.Info().
			Str("order_id", result.OrderID).
			Str("ticker", order.Ticker).
			Float64("limit_price", *order.LimitPrice).
			Float64("current_price", current).
			Msg("Limit order pending")
		p.saveIfEnabled()
		return result
	}

	filled, err := p.fill(order, execPrice)
	if err != nil {
		return p.reject(order, submittedAt, err.Error())
	}

	result := p.newResult(order, submittedAt)
	p.applyFill(&result, order.Quantity, filled, execPrice)
	p.store(result)
	p.logResult(result)
	p.saveIfEnabled()
	return result
}

// submitTime returns the clock reading, bumped so submission times strictly
// increase and order pending orders by arrival.
func (p *PaperBroker) submitTime() time.Time {
	t := p.now()
	if !t.After(p.lastSubmit) {
		t = p.lastSubmit.Add(time.Nanosecond)
	}
	p.lastSubmit = t
	return t
}

func (p *PaperBroker) newResult(order models.Order, submittedAt time.Time) models.OrderResult {
	return models.OrderResult{
		OrderID:           p.newID(),
		ClientOrderID:     order.ClientOrderID,
		Ticker:            order.Ticker,
		Side:              order.Side,
		QuantityRequested: order.Quantity,
		SubmittedAt:       submittedAt,
	}
}

// applyFill sets status, message and prices on r from the filled quantity.
func (p *PaperBroker) applyFill(r *models.OrderResult, requested, filled int, price float64) {
	r.QuantityFilled = filled
	r.AveragePrice = nil
	r.FilledAt = nil

	switch {
	case filled == 0:
		r.Status = models.OrderStatusRejected
		r.Message = "No quantity filled"
	case filled < requested:
		r.Status = models.OrderStatusPartial
		r.Message = fmt.Sprintf("Partial fill: %d/%d", filled, requested)
		r.AveragePrice = &price
	default:
		r.Status = models.OrderStatusFilled
		r.Message = ""
		r.AveragePrice = &price
		filledAt := p.now()
		r.FilledAt = &filledAt
	}
}

// reject builds a REJECTED result without touching the ledger or order map.
func (p *PaperBroker) reject(order models.Order, submittedAt time.Time, message string) models.OrderResult {
	result := p.newResult(order, submittedAt)
	result.Status = models.OrderStatusRejected
	result.Message = message
	p.logResult(result)
	return result
}

func (p *PaperBroker) store(r models.OrderResult) {
	p.orders[r.OrderID] = &r
}

func (p *PaperBroker) logResult(r models.OrderResult) {
	logging.LogOrderResult(p.logger, r)
}

// CancelOrder cancels a non-terminal order. Unknown and terminal orders return false.
func (p *PaperBroker) CancelOrder(orderID string) bool {
	r, ok := p.orders[orderID]
	if !ok || r.IsTerminal() {
		return false
	}
	r.Status = models.OrderStatusCancelled
	delete(p.pending, orderID)
	p.logger.Info().Str("order_id", orderID).Str("ticker", r.Ticker).Msg("Order cancelled")
	p.saveIfEnabled()
	return true
}

// GetOrder returns the stored result for orderID.
func (p *PaperBroker) GetOrder(orderID string) (models.OrderResult, bool) {
	r, ok := p.orders[orderID]
	if !ok {
		return models.OrderResult{}, false
	}
	return *r, true
}

// GetOrders returns stored results passing filter, oldest first.
func (p *PaperBroker) GetOrders(filter StatusFilter) []models.OrderResult {
	results := make([]models.OrderResult, 0, len(p.orders))
	for _, r := range p.orders {
		if filter.Match(r.Status) {
			results = append(results, *r)
		}
	}
	SortResults(results)
	return results
}

// ReevaluatePending retries every PENDING limit order at the current price, in
// submission order, so earlier orders claim cash and margin first. Orders that
// become executable are filled and their stored result updated.
func (p *PaperBroker) ReevaluatePending() []models.OrderResult {
	queue := make([]models.OrderResult, 0, len(p.pending))
	for id := range p.pending {
		if stored, ok := p.orders[id]; ok {
			queue = append(queue, *stored)
		} else {
			delete(p.pending, id)
		}
	}
	SortResults(queue)

	var updated []models.OrderResult
	for _, queued := range queue {
		id := queued.OrderID
		order := p.pending[id]
		stored, ok := p.orders[id]
		if !ok || stored.Status != models.OrderStatusPending {
			delete(p.pending, id)
			continue
		}

		current, ok := p.GetCurrentPrice(order.Ticker)
		if !ok || !limitReached(order, current) {
			continue
		}

		delete(p.pending, id)
		filled, err := p.fill(order, *order.LimitPrice)
		if err != nil {
			stored.Status = models.OrderStatusRejected
			stored.Message = err.Error()
		} else {
			p.applyFill(stored, order.Quantity, filled, *order.LimitPrice)
		}
		p.logResult(*stored)
		updated = append(updated, *stored)
	}

	if len(updated) > 0 {
		p.saveIfEnabled()
	}
	return updated
}

// refresh recomputes market fields for pos from the current price.
func (p *PaperBroker) refresh(pos *models.Position) {
	if price, ok := p.GetCurrentPrice(pos.Ticker); ok && price > 0 {
		pos.UpdateMarketData(price)
	}
}

// GetPosition returns the position in ticker with market fields refreshed.
func (p *PaperBroker) GetPosition(ticker string) (models.Position, bool) {
	pos, ok := p.positions[ticker]
	if !ok {
		return models.Position{}, false
	}
	p.refresh(pos)
	return *pos, true
}

// GetPositions returns every open position with market fields refreshed.
func (p *PaperBroker) GetPositions() map[string]models.Position {
	out := make(map[string]models.Position, len(p.positions))
	for ticker, pos := range p.positions {
		p.refresh(pos)
		out[ticker] = *pos
	}
	return out
}

// GetAccount returns the account view. Equity is cash plus position market value.
func (p *PaperBroker) GetAccount() models.AccountInfo {
	var positionsValue float64
	for _, pos := range p.positions {
		p.refresh(pos)
		positionsValue += pos.MarketValue
	}

	available := p.cash - p.marginUsed
	return models.AccountInfo{
		AccountID:       AccountID,
		Cash:            p.cash,
		BuyingPower:     available,
		Equity:          p.cash + positionsValue,
		MarginUsed:      p.marginUsed,
		MarginAvailable: available,
		IsPaper:         true,
	}
}

// GetPerformanceSummary aggregates P&L over the open positions and filled orders.
// Win and loss counts are taken per open position from its realized P&L sign,
// so closed-out positions are not counted.
func (p *PaperBroker) GetPerformanceSummary() models.PerformanceSummary {
	account := p.GetAccount()

	var positionsValue, realized, unrealized float64
	var wins, losses int
	for _, pos := range p.positions {
		positionsValue += pos.MarketValue
		realized += pos.RealizedPnL
		unrealized += pos.UnrealizedPnL
		switch {
		case pos.RealizedPnL > 0:
			wins++
		case pos.RealizedPnL < 0:
			losses++
		}
	}

	trades := 0
	for _, r := range p.orders {
		if r.Status == models.OrderStatusFilled {
			trades++
		}
	}

	totalPnL := account.Equity - p.initialCash
	var totalPct float64
	if p.initialCash > 0 {
		totalPct = totalPnL / p.initialCash * 100
	}
	var winRate float64
	if wins+losses > 0 {
		winRate = float64(wins) / float64(wins+losses) * 100
	}

	return models.PerformanceSummary{
		InitialCapital:  p.initialCash,
		CurrentEquity:   account.Equity,
		Cash:            p.cash,
		PositionsValue:  positionsValue,
		TotalPnL:        totalPnL,
		RealizedPnL:     realized,
		UnrealizedPnL:   unrealized,
		TotalPnLPercent: totalPct,
		TotalTrades:     trades,
		WinningTrades:   wins,
		LosingTrades:    losses,
		WinRate:         winRate,
	}
}

// Reset restores the initial cash and clears positions, orders and prices.
func (p *PaperBroker) Reset() {
	p.cash = p.initialCash
	p.marginUsed = 0
	p.positions = make(map[string]*models.Position)
	p.orders = make(map[string]*models.OrderResult)
	p.pending = make(map[string]models.Order)
	p.prices = make(map[string]float64)
	p.logger.Info().Float64("cash", p.cash).Msg("Ledger reset")
}

// StateFile is the default path used by SaveState and LoadState.
func (p *PaperBroker) StateFile() string {
	return p.stateFile
}

func (p *PaperBroker) saveIfEnabled() {
	if !p.autoSave {
		return
	}
	if err := p.SaveState(""); err != nil {
		p.logger.Error().Err(err).Str("path", p.stateFile).Msg("Auto-save failed")
	}
}

var _ Simulator = (*PaperBroker)(nil)
