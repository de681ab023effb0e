package cli

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"papertrader/internal/broker"
	"papertrader/internal/pricefeed"
	"papertrader/internal/trading"
)

// addReplayCommands adds CSV price replay.
func addReplayCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "replay <csv>...",
		Short: "Replay historical prices and signals from CSV files",
		Long: `Replay drives the paper broker through daily bars read from CSV files.

Each file has the columns date, ticker, close and optionally action and qty.
Rows sharing a date form one step: prices are applied, pending orders are
re-evaluated, then the step's buy, sell, short and cover signals are executed.

By default the replay runs on a fresh ledger and leaves the state file alone.
With --state it continues from the saved ledger and saves the result.`,
		Example: `  papertrader replay data/aapl.csv data/msft.csv
  papertrader replay --dry-run --json prices.csv
  papertrader replay --publish prices.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			workers, _ := cmd.Flags().GetInt("workers")
			bars, err := pricefeed.LoadFiles(ctx, args, workers)
			if err != nil {
				return err
			}
			steps := pricefeed.Timeline(bars)

			useState, _ := cmd.Flags().GetBool("state")
			var sim broker.Simulator
			if useState {
				sim, err = app.Simulator()
			} else {
				sim, err = app.newSimulator(false)
			}
			if err != nil {
				return err
			}

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			policy := trading.ExecutionPolicy{MinConfidence: app.Config.Consumer.MinConfidence, DryRun: dryRun}
			replayer := trading.NewReplayer(sim, policy, app.Logger)

			if publish, _ := cmd.Flags().GetBool("publish"); publish {
				hook, err := app.publishHook(ctx)
				if err != nil {
					return err
				}
				replayer.OnStep(hook)
			}

			report, err := replayer.Run(ctx, steps)
			if err != nil {
				return err
			}
			if useState {
				if err := app.Save(); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			printReplayReport(output, report)
			return nil
		},
	}

	cmd.Flags().Int("workers", runtime.NumCPU(), "files parsed in parallel")
	cmd.Flags().Bool("dry-run", false, "apply prices but do not execute signals")
	cmd.Flags().Bool("state", false, "continue from and save to the state file")
	cmd.Flags().Bool("publish", false, "write each step's prices to the Redis price cache and event channel")

	rootCmd.AddCommand(cmd)
}

// publishHook returns a step hook that mirrors replayed prices to Redis: the
// price cache gets every close and the event channel gets price updates.
func (a *App) publishHook(ctx context.Context) (func(context.Context, pricefeed.Step) error, error) {
	src, err := a.priceSource()
	if err != nil {
		return nil, err
	}
	if err := src.Ping(ctx); err != nil {
		return nil, err
	}
	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, step pricefeed.Step) error {
		if err := src.StorePrices(ctx, step.Prices, 0); err != nil {
			return err
		}
		tickers := make([]string, 0, len(step.Prices))
		for t := range step.Prices {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
		for _, t := range tickers {
			if _, err := publisher.PublishPriceUpdate(ctx, t, step.Prices[t], nil, "replay"); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func printReplayReport(output *Output, report trading.ReplayReport) {
	output.Bold("Replay")
	if !report.StartedAt.IsZero() {
		output.Printf("  Period:   %s to %s\n", report.StartedAt.Format(time.DateOnly), report.EndedAt.Format(time.DateOnly))
	}
	output.Printf("  Steps:    %d\n", report.Steps)
	output.Printf("  Signals:  %d (%d skipped)\n", report.Signals, report.Skipped)
	output.Printf("  Orders:   %d filled, %d partial, %d pending, %d rejected\n",
		report.Filled, report.Partial, report.Pending, report.Rejected)
	output.Println()
	printSummary(output, report.Summary)
}
