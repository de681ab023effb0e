package cli

import (
	"sort"
	"strconv"

	"papertrader/internal/models"
	"papertrader/pkg/utils"
)

// statusText colors an order status.
func (o *Output) statusText(s models.OrderStatus) string {
	switch s {
	case models.OrderStatusFilled:
		return o.Green(string(s))
	case models.OrderStatusRejected, models.OrderStatusCancelled, models.OrderStatusExpired:
		return o.Red(string(s))
	case models.OrderStatusPending, models.OrderStatusPartial:
		return o.Yellow(string(s))
	}
	return string(s)
}

// printResult prints a single order outcome.
func printResult(output *Output, r models.OrderResult) {
	line := string(r.Side) + " " + strconv.Itoa(r.QuantityFilled) + "/" + strconv.Itoa(r.QuantityRequested) +
		" " + r.Ticker + " @ " + utils.FormatPrice(r.AveragePrice)
	switch r.Status {
	case models.OrderStatusFilled:
		output.Success("%s [%s]", line, r.Status)
	case models.OrderStatusRejected:
		output.Error("%s [%s] %s", line, r.Status, r.Message)
	default:
		output.Warning("%s [%s] %s", line, r.Status, r.Message)
	}
	output.Dim("Order ID: %s", r.OrderID)
}

// printResults renders results as a table.
func printResults(output *Output, results []models.OrderResult) {
	if len(results) == 0 {
		output.Dim("No orders")
		return
	}
	table := NewTable(output, "ORDER ID", "TICKER", "SIDE", "FILLED", "PRICE", "STATUS", "SUBMITTED")
	for _, r := range results {
		table.AddRow(
			r.OrderID,
			r.Ticker,
			string(r.Side),
			strconv.Itoa(r.QuantityFilled)+"/"+strconv.Itoa(r.QuantityRequested),
			utils.FormatPrice(r.AveragePrice),
			output.statusText(r.Status),
			r.SubmittedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	table.Render()
}

// sortedPositions returns positions ordered by ticker.
func sortedPositions(positions map[string]models.Position) []models.Position {
	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

func printPositions(output *Output, positions []models.Position) {
	if len(positions) == 0 {
		output.Dim("No open positions")
		return
	}
	table := NewTable(output, "TICKER", "SIDE", "QTY", "AVG COST", "PRICE", "VALUE", "UNREALIZED", "REALIZED")
	for _, p := range positions {
		table.AddRow(
			p.Ticker,
			string(p.Side),
			utils.FormatQuantity(int64(p.Quantity)),
			utils.FormatCurrency(p.AverageCost),
			utils.FormatCurrency(p.CurrentPrice),
			utils.FormatCurrency(p.MarketValue),
			output.FormatPnL(p.UnrealizedPnL),
			output.FormatPnL(p.RealizedPnL),
		)
	}
	table.Render()
}

func printAccount(output *Output, a models.AccountInfo) {
	output.Bold("Account %s", a.AccountID)
	output.Printf("  Cash:             %s\n", utils.FormatCurrency(a.Cash))
	output.Printf("  Equity:           %s\n", utils.FormatCurrency(a.Equity))
	output.Printf("  Buying Power:     %s\n", utils.FormatCurrency(a.BuyingPower))
	output.Printf("  Margin Used:      %s\n", utils.FormatCurrency(a.MarginUsed))
	output.Printf("  Margin Available: %s\n", utils.FormatCurrency(a.MarginAvailable))
}

func printSummary(output *Output, s models.PerformanceSummary) {
	output.Bold("Performance Summary")
	output.Printf("  Initial Capital:  %s\n", utils.FormatCurrency(s.InitialCapital))
	output.Printf("  Current Equity:   %s\n", utils.FormatCurrency(s.CurrentEquity))
	output.Printf("    Cash:           %s\n", utils.FormatCurrency(s.Cash))
	output.Printf("    Positions:      %s\n", utils.FormatCurrency(s.PositionsValue))
	output.Printf("  Total P&L:        %s (%s)\n", output.FormatPnL(s.TotalPnL), output.FormatPercent(s.TotalPnLPercent))
	output.Printf("    Realized:       %s\n", output.FormatPnL(s.RealizedPnL))
	output.Printf("    Unrealized:     %s\n", output.FormatPnL(s.UnrealizedPnL))
	output.Printf("  Trades:           %d (%d won, %d lost, %.1f%% win rate)\n",
		s.TotalTrades, s.WinningTrades, s.LosingTrades, s.WinRate)
}
