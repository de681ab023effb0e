// Package broker provides the broker contract and the simulated paper broker.
package broker

import (
	"fmt"
	"sort"
	"strings"

	"papertrader/internal/models"
)

// Broker defines the operations every broker backend supports.
type Broker interface {
	// Orders
	SubmitOrder(order models.Order) models.OrderResult
	CancelOrder(orderID string) bool
	GetOrder(orderID string) (models.OrderResult, bool)
	GetOrders(filter StatusFilter) []models.OrderResult

	// Positions & Account
	GetPosition(ticker string) (models.Position, bool)
	GetPositions() map[string]models.Position
	GetAccount() models.AccountInfo

	// Market Data
	GetCurrentPrice(ticker string) (float64, bool)
}

// Simulator is the paper-trading surface on top of Broker: manual prices,
// pending-order reevaluation, reset, and state persistence.
type Simulator interface {
	Broker

	SetPrice(ticker string, price float64)
	SetPrices(prices map[string]float64)
	ReevaluatePending() []models.OrderResult
	Reset()
	GetPerformanceSummary() models.PerformanceSummary
	SaveState(path string) error
	LoadState(path string) (bool, string)
}

// PriceProvider resolves a ticker to a price when the manual cache has none.
type PriceProvider interface {
	Price(ticker string) (float64, bool)
}

// PriceFunc adapts a plain function to PriceProvider.
type PriceFunc func(ticker string) (float64, bool)

// Price calls f.
func (f PriceFunc) Price(ticker string) (float64, bool) {
	return f(ticker)
}

// StatusFilter selects orders by lifecycle stage.
type StatusFilter string

const (
	StatusOpen   StatusFilter = "open"
	StatusClosed StatusFilter = "closed"
	StatusAll    StatusFilter = "all"
)

// ParseStatusFilter parses open, closed or all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case StatusOpen, StatusClosed, StatusAll:
		return f, nil
	case "":
		return StatusAll, nil
	}
	return "", fmt.Errorf("unknown status filter %q (want open, closed or all)", s)
}

// Match reports whether an order with status s passes the filter.
func (f StatusFilter) Match(s models.OrderStatus) bool {
	switch f {
	case StatusOpen:
		return !s.IsTerminal()
	case StatusClosed:
		return s.IsTerminal()
	}
	return true
}

// ClosePosition submits a market order that flattens the position in ticker.
// It returns false when there is nothing to close.
func ClosePosition(b Broker, ticker string) (models.OrderResult, bool) {
	pos, ok := b.GetPosition(ticker)
	if !ok || pos.Quantity == 0 {
		return models.OrderResult{}, false
	}

	side := models.OrderSideSell
	if pos.Side == models.PositionSideShort {
		side = models.OrderSideBuy
	}

	order, err := models.NewOrder(ticker, side, pos.Quantity, models.WithPositionSide(pos.Side))
	if err != nil {
		return models.OrderResult{}, false
	}
	return b.SubmitOrder(order), true
}

// CloseAllPositions closes every open position in ticker order.
func CloseAllPositions(b Broker) []models.OrderResult {
	positions := b.GetPositions()
	tickers := make([]string, 0, len(positions))
	for t := range positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var results []models.OrderResult
	for _, t := range tickers {
		if r, ok := ClosePosition(b, t); ok {
			results = append(results, r)
		}
	}
	return results
}

// SortResults orders results by submission time, then id.
func SortResults(results []models.OrderResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].SubmittedAt.Equal(results[j].SubmittedAt) {
			return results[i].SubmittedAt.Before(results[j].SubmittedAt)
		}
		return results[i].OrderID < results[j].OrderID
	})
}
