package trading

import (
	"sort"

	"github.com/rs/zerolog"

	"papertrader/internal/broker"
	"papertrader/internal/logging"
	"papertrader/internal/models"
)

// Executor submits orders for actions through a broker.
type Executor struct {
	broker broker.Broker
	logger zerolog.Logger
}

// NewExecutor creates an executor for b.
func NewExecutor(b broker.Broker, logger zerolog.Logger) *Executor {
	return &Executor{broker: b, logger: logging.WithComponent(logger, "executor")}
}

// Execute submits a market order, or a limit order when limitPrice is set,
// for action on ticker. It returns false without submitting for hold, for a
// non-positive quantity and for orders that fail construction.
func (e *Executor) Execute(ticker string, action Action, quantity int, limitPrice *float64) (models.OrderResult, bool) {
	side, position, ok := action.Sides()
	if !ok || quantity <= 0 {
		return models.OrderResult{}, false
	}

	opts := []models.OrderOption{models.WithPositionSide(position)}
	if limitPrice != nil {
		opts = append(opts, models.WithLimitPrice(*limitPrice))
	}
	order, err := models.NewOrder(ticker, side, quantity, opts...)
	if err != nil {
		e.logger.Warn().Err(err).Str("ticker", ticker).Str("action", string(action)).Msg("Invalid order")
		return models.OrderResult{}, false
	}

	result := e.broker.SubmitOrder(order)
	e.log(action, result)
	return result, true
}

// ExecuteSignal executes s without policy checks.
func (e *Executor) ExecuteSignal(s Signal) (models.OrderResult, bool) {
	return e.Execute(s.Ticker, s.Action, s.Quantity, s.LimitPrice)
}

// Decision is an action and quantity for one ticker.
type Decision struct {
	Action   Action
	Quantity int
}

// ExecuteDecisions executes decisions in ticker order, skipping tickers
// without a price in prices when prices is non-nil.
func (e *Executor) ExecuteDecisions(decisions map[string]Decision, prices map[string]float64) []models.OrderResult {
	tickers := make([]string, 0, len(decisions))
	for ticker := range decisions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var results []models.OrderResult
	for _, ticker := range tickers {
		if prices != nil {
			if _, ok := prices[ticker]; !ok {
				continue
			}
		}
		d := decisions[ticker]
		if r, ok := e.Execute(ticker, d.Action, d.Quantity, nil); ok {
			results = append(results, r)
		}
	}
	return results
}

func (e *Executor) log(action Action, r models.OrderResult) {
	event := e.logger.Info()
	if !r.IsFilled() {
		event = e.logger.Warn()
	}
	if r.AveragePrice != nil {
		event = event.Float64("price", *r.AveragePrice)
	}
	event.Str("ticker", r.Ticker).
		Str("action", string(action)).
		Int("filled", r.QuantityFilled).
		Str("status", string(r.Status)).
		Str("detail", r.Message).
		Msg("Executed trade")
}
