package models

import (
	"fmt"
	"strings"

	"papertrader/pkg/utils"
)

// Position is an open holding in one ticker. Quantity is always the magnitude;
// Side says which book it belongs to.
type Position struct {
	Ticker        string       `json:"ticker"`
	Quantity      int          `json:"quantity"`
	Side          PositionSide `json:"side"`
	AverageCost   float64      `json:"average_cost"`
	CurrentPrice  float64      `json:"current_price"`
	MarketValue   float64      `json:"market_value"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
	RealizedPnL   float64      `json:"realized_pnl"`
}

// CostBasis is quantity times average cost.
func (p Position) CostBasis() float64 {
	return float64(p.Quantity) * p.AverageCost
}

// SignedQuantity is negative for short positions.
func (p Position) SignedQuantity() int {
	if p.Side == PositionSideShort {
		return -p.Quantity
	}
	return p.Quantity
}

// UpdateMarketData recomputes the market-derived fields at price.
func (p *Position) UpdateMarketData(price float64) {
	p.CurrentPrice = price
	p.MarketValue = float64(p.Quantity) * price
	if p.Side == PositionSideLong {
		p.UnrealizedPnL = (price - p.AverageCost) * float64(p.Quantity)
	} else {
		p.UnrealizedPnL = (p.AverageCost - price) * float64(p.Quantity)
	}
}

// AccountInfo is a point-in-time view of the account.
type AccountInfo struct {
	AccountID       string  `json:"account_id"`
	Cash            float64 `json:"cash"`
	BuyingPower     float64 `json:"buying_power"`
	Equity          float64 `json:"equity"`
	MarginUsed      float64 `json:"margin_used"`
	MarginAvailable float64 `json:"margin_available"`
	DayTradeCount   int     `json:"day_trade_count"`
	IsPaper         bool    `json:"is_paper"`
}

// PerformanceSummary aggregates the account's results since the start.
type PerformanceSummary struct {
	InitialCapital  float64 `json:"initial_capital"`
	CurrentEquity   float64 `json:"current_equity"`
	Cash            float64 `json:"cash"`
	PositionsValue  float64 `json:"positions_value"`
	TotalPnL        float64 `json:"total_pnl"`
	RealizedPnL     float64 `json:"realized_pnl"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
}

func (s PerformanceSummary) String() string {
	sign := ""
	if s.TotalPnL >= 0 {
		sign = "+"
	}

	var b strings.Builder
	b.WriteString("=== Performance Summary ===\n")
	fmt.Fprintf(&b, "Initial Capital:  %s\n", utils.FormatCurrency(s.InitialCapital))
	fmt.Fprintf(&b, "Current Equity:   %s\n", utils.FormatCurrency(s.CurrentEquity))
	fmt.Fprintf(&b, "  - Cash:         %s\n", utils.FormatCurrency(s.Cash))
	fmt.Fprintf(&b, "  - Positions:    %s\n", utils.FormatCurrency(s.PositionsValue))
	b.WriteString("---------------------------\n")
	fmt.Fprintf(&b, "Total P&L:        %s%s (%s%.2f%%)\n", sign, utils.FormatCurrency(s.TotalPnL), sign, s.TotalPnLPercent)
	fmt.Fprintf(&b, "  - Realized:     %s\n", utils.FormatCurrency(s.RealizedPnL))
	fmt.Fprintf(&b, "  - Unrealized:   %s\n", utils.FormatCurrency(s.UnrealizedPnL))
	b.WriteString("---------------------------\n")
	fmt.Fprintf(&b, "Trades: %d (Win: %d, Lose: %d)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(&b, "Win Rate: %.1f%%", s.WinRate)
	return b.String()
}
