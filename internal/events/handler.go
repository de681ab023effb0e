package events

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"papertrader/internal/broker"
	"papertrader/internal/errors"
	"papertrader/internal/logging"
	"papertrader/internal/models"
	"papertrader/internal/trading"
)

// TradingHandler applies events to a simulated broker: prices update the
// ledger, trade signals become orders, and scheduled events re-evaluate
// pending orders and persist state.
type TradingHandler struct {
	sim       broker.Simulator
	executor  *trading.Executor
	checker   *trading.ExecutionChecker
	tickers   []string
	saveState bool
	logger    zerolog.Logger
}

// HandlerConfig configures a TradingHandler.
type HandlerConfig struct {
	Policy    trading.ExecutionPolicy
	Tickers   []string // used by scheduled events without tickers
	SaveState bool     // save broker state after trades and scheduled events
}

// NewTradingHandler creates a handler acting on sim. sim should be safe for
// concurrent use when it is shared outside the consumer.
func NewTradingHandler(sim broker.Simulator, cfg HandlerConfig, logger zerolog.Logger) *TradingHandler {
	return &TradingHandler{
		sim:       sim,
		executor:  trading.NewExecutor(sim, logger),
		checker:   trading.NewExecutionChecker(cfg.Policy),
		tickers:   cfg.Tickers,
		saveState: cfg.SaveState,
		logger:    logging.WithComponent(logger, "event_handler"),
	}
}

// Register wires the handler into c.
func (h *TradingHandler) Register(c *Consumer) {
	c.RegisterHandler(EventPriceUpdate, h.HandlePriceUpdate)
	c.RegisterHandler(EventPriceAlert, h.HandlePriceAlert)
	c.RegisterHandler(EventTradeSignal, h.HandleTradeSignal)
	c.RegisterHandler(EventScheduled, h.HandleScheduled)
	c.SetDefaultHandler(h.HandleOther)
}

func (h *TradingHandler) applyPrice(e TradingEvent) (float64, error) {
	if e.Ticker == "" {
		return 0, errors.Wrapf(errors.ErrInvalidEvent, "%s without ticker", e.EventType)
	}
	price, ok := Number(e.Data, "price")
	if !ok || price <= 0 {
		return 0, errors.Wrapf(errors.ErrInvalidEvent, "%s for %s has no valid price", e.EventType, e.Ticker)
	}
	h.sim.SetPrice(e.Ticker, price)
	logging.LogPriceUpdate(h.logger, e.Ticker, price, e.Source)
	return price, nil
}

func (h *TradingHandler) reevaluate() []models.OrderResult {
	updated := h.sim.ReevaluatePending()
	for _, r := range updated {
		h.logger.Info().Str("order_id", r.OrderID).Str("ticker", r.Ticker).Str("status", string(r.Status)).Msg("Pending order updated")
	}
	return updated
}

// HandlePriceUpdate records the price and re-evaluates pending orders.
func (h *TradingHandler) HandlePriceUpdate(_ context.Context, e TradingEvent) error {
	if _, err := h.applyPrice(e); err != nil {
		return err
	}
	h.reevaluate()
	return nil
}

// HandlePriceAlert is HandlePriceUpdate with the move logged at warn.
func (h *TradingHandler) HandlePriceAlert(_ context.Context, e TradingEvent) error {
	price, err := h.applyPrice(e)
	if err != nil {
		return err
	}
	change, _ := Number(e.Data, "change_percent")
	h.logger.Warn().
		Str("ticker", e.Ticker).
		Float64("price", price).
		Float64("change_percent", change).
		Msg("PRICE ALERT")
	h.reevaluate()
	return nil
}

// SignalFromEvent reads a trade signal payload.
func SignalFromEvent(e TradingEvent) (trading.Signal, error) {
	if e.Ticker == "" {
		return trading.Signal{}, errors.Wrap(errors.ErrInvalidEvent, "trade signal without ticker")
	}
	action, err := trading.ParseAction(String(e.Data, "signal"))
	if err != nil {
		return trading.Signal{}, errors.Wrap(errors.ErrInvalidEvent, err.Error())
	}
	confidence, _ := Number(e.Data, "confidence")
	qty, _ := Number(e.Data, "quantity")
	if qty < 0 || qty > math.MaxInt32 || qty != math.Trunc(qty) {
		return trading.Signal{}, errors.Wrapf(errors.ErrInvalidEvent, "trade signal quantity %v is not a whole number of shares", qty)
	}

	s := trading.Signal{
		Ticker:     strings.TrimSpace(e.Ticker),
		Action:     action,
		Quantity:   int(qty),
		Confidence: confidence,
		Reason:     String(e.Data, "reason"),
		Source:     e.Source,
	}
	if limit, ok := Number(e.Data, "limit_price"); ok {
		s.LimitPrice = &limit
	}
	return s, nil
}

// HandleTradeSignal executes the signal when it passes the execution policy.
// A price in the payload is applied first.
func (h *TradingHandler) HandleTradeSignal(_ context.Context, e TradingEvent) error {
	signal, err := SignalFromEvent(e)
	if err != nil {
		return err
	}
	if price, ok := Number(e.Data, "price"); ok && price > 0 {
		h.sim.SetPrice(signal.Ticker, price)
	}

	log := logging.WithTicker(h.logger, signal.Ticker).With().Str("event_id", e.EventID).Logger()
	log.Info().
		Str("signal", string(signal.Action)).
		Float64("confidence", signal.Confidence).
		Str("source", signal.Source).
		Msg("TRADE SIGNAL")

	check := h.checker.CheckExecution(signal)
	if !check.ShouldExecute {
		log.Info().Str("reason", check.BlockReason).Msg("Signal skipped")
		return nil
	}

	result, ok := h.executor.ExecuteSignal(signal)
	if !ok {
		return errors.Wrapf(errors.ErrInvalidOrder, "signal %s could not be turned into an order", signal)
	}
	if result.Status == models.OrderStatusRejected {
		log.Warn().Str("detail", result.Message).Msg("Signal order rejected")
	}
	h.persist()
	return nil
}

// HandleScheduled re-evaluates pending orders, logs the performance summary
// and persists state.
func (h *TradingHandler) HandleScheduled(_ context.Context, e TradingEvent) error {
	tickers := Strings(e.Data, "tickers")
	if len(tickers) == 0 {
		tickers = h.tickers
	}
	h.logger.Info().Strs("tickers", tickers).Msg("SCHEDULED ANALYSIS")

	h.reevaluate()
	summary := h.sim.GetPerformanceSummary()
	h.logger.Info().
		Float64("equity", summary.CurrentEquity).
		Float64("pnl_percent", summary.TotalPnLPercent).
		Int("trades", summary.TotalTrades).
		Msg("Performance")
	h.persist()
	return nil
}

// HandleOther logs events no other handler takes, such as news and sentiment.
func (h *TradingHandler) HandleOther(_ context.Context, e TradingEvent) error {
	h.logger.Info().
		Str("event_type", string(e.EventType)).
		Str("ticker", e.Ticker).
		Str("headline", String(e.Data, "headline")).
		Msg("Event noted")
	return nil
}

func (h *TradingHandler) persist() {
	if !h.saveState {
		return
	}
	if err := h.sim.SaveState(""); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save broker state")
	}
}
