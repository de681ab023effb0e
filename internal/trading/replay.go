package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"papertrader/internal/broker"
	"papertrader/internal/logging"
	"papertrader/internal/models"
	"papertrader/internal/pricefeed"
)

// ReplayReport summarizes a replay run. Results lists every order update in
// the order it happened; the status counts hold each order once, under its
// latest status.
type ReplayReport struct {
	Steps     int                       `json:"steps"`
	Signals   int                       `json:"signals"`
	Skipped   int                       `json:"skipped"`
	Results   []models.OrderResult      `json:"results"`
	Filled    int                       `json:"filled"`
	Partial   int                       `json:"partial"`
	Rejected  int                       `json:"rejected"`
	Pending   int                       `json:"pending"`
	StartedAt time.Time                 `json:"started_at"`
	EndedAt   time.Time                 `json:"ended_at"`
	Summary   models.PerformanceSummary `json:"summary"`

	status map[string]models.OrderStatus
}

// Replayer drives a simulator through a price timeline.
type Replayer struct {
	sim      broker.Simulator
	executor *Executor
	checker  *ExecutionChecker
	logger   zerolog.Logger
	onStep   func(context.Context, pricefeed.Step) error
}

// NewReplayer creates a replayer. Signals are subject to policy.
func NewReplayer(sim broker.Simulator, policy ExecutionPolicy, logger zerolog.Logger) *Replayer {
	return &Replayer{
		sim:      sim,
		executor: NewExecutor(sim, logger),
		checker:  NewExecutionChecker(policy),
		logger:   logging.WithComponent(logger, "replay"),
	}
}

// OnStep sets a hook called with each step after its prices are applied.
// A hook error stops the run.
func (r *Replayer) OnStep(fn func(context.Context, pricefeed.Step) error) {
	r.onStep = fn
}

// Run applies each step's prices, re-evaluates pending orders and executes
// the step's signals. It stops early when ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, steps []pricefeed.Step) (ReplayReport, error) {
	var report ReplayReport
	if len(steps) > 0 {
		report.StartedAt = steps[0].Time
		report.EndedAt = steps[len(steps)-1].Time
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			report.Summary = r.sim.GetPerformanceSummary()
			return report, err
		}

		r.sim.SetPrices(step.Prices)
		if r.onStep != nil {
			if err := r.onStep(ctx, step); err != nil {
				report.Summary = r.sim.GetPerformanceSummary()
				return report, err
			}
		}
		for _, res := range r.sim.ReevaluatePending() {
			report.add(res)
		}

		for _, bar := range step.Signals {
			report.Signals++
			action, err := ParseAction(bar.Action)
			if err != nil {
				r.logger.Warn().Err(err).Str("source", bar.Source).Int("line", bar.Line).Msg("Skipping signal")
				report.Skipped++
				continue
			}
			signal := Signal{Ticker: bar.Ticker, Action: action, Quantity: bar.Qty, Confidence: 100, Source: bar.Source}
			if check := r.checker.CheckExecution(signal); !check.ShouldExecute {
				r.logger.Debug().Str("ticker", bar.Ticker).Str("reason", check.BlockReason).Msg("Signal not executed")
				report.Skipped++
				continue
			}
			if res, ok := r.executor.ExecuteSignal(signal); ok {
				report.add(res)
			}
		}
		report.Steps++
	}

	report.Summary = r.sim.GetPerformanceSummary()
	r.logger.Info().
		Int("steps", report.Steps).
		Int("orders", len(report.Results)).
		Float64("equity", report.Summary.CurrentEquity).
		Msg("Replay finished")
	return report, nil
}

func (rep *ReplayReport) add(res models.OrderResult) {
	rep.Results = append(rep.Results, res)
	if res.OrderID != "" {
		if rep.status == nil {
			rep.status = make(map[string]models.OrderStatus)
		}
		if prev, ok := rep.status[res.OrderID]; ok {
			rep.count(prev, -1)
		}
		rep.status[res.OrderID] = res.Status
	}
	rep.count(res.Status, 1)
}

func (rep *ReplayReport) count(status models.OrderStatus, delta int) {
	switch status {
	case models.OrderStatusFilled:
		rep.Filled += delta
	case models.OrderStatusPartial:
		rep.Partial += delta
	case models.OrderStatusRejected:
		rep.Rejected += delta
	case models.OrderStatusPending:
		rep.Pending += delta
	}
}
