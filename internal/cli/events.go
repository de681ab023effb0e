package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"papertrader/internal/events"
	"papertrader/internal/pricefeed"
	"papertrader/internal/trading"
)

// addEventCommands adds the Redis event consumer, publisher and price monitor.
func addEventCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newConsumeCmd(app))
	rootCmd.AddCommand(newPublishCmd(app))
	rootCmd.AddCommand(newMonitorCmd(app))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *App) publisher(ctx context.Context) (*events.Publisher, error) {
	bus, err := a.eventBus()
	if err != nil {
		return nil, err
	}
	if err := bus.Ping(ctx); err != nil {
		return nil, err
	}
	return events.NewPublisher(bus, a.Config.Redis.Channel,
		events.WithAlertThreshold(a.Config.Producer.AlertThreshold),
		events.WithPublisherLogger(a.Logger)), nil
}

func newConsumeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Apply trading events from Redis to the paper broker",
		Long: `Subscribe to the trading event channel and act on each event.

Price updates and alerts set prices and re-evaluate pending orders. Trade
signals at or above consumer.min_confidence become orders unless dry run is
on. Scheduled events re-evaluate pending orders, log the performance summary
and save the ledger. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			sim, err := app.Simulator()
			if err != nil {
				return err
			}
			bus, err := app.eventBus()
			if err != nil {
				return err
			}
			if err := bus.Ping(ctx); err != nil {
				return err
			}

			policy := trading.ExecutionPolicy{
				MinConfidence: app.Config.Consumer.MinConfidence,
				DryRun:        app.Config.Consumer.DryRun,
			}
			if cmd.Flags().Changed("dry-run") {
				policy.DryRun, _ = cmd.Flags().GetBool("dry-run")
			}
			if cmd.Flags().Changed("min-confidence") {
				policy.MinConfidence, _ = cmd.Flags().GetFloat64("min-confidence")
			}

			consumer := events.NewConsumer(app.Logger)
			handler := events.NewTradingHandler(sim, events.HandlerConfig{
				Policy:    policy,
				Tickers:   app.Config.Tickers,
				SaveState: !app.noSave,
			}, app.Logger)
			handler.Register(consumer)

			sub, err := bus.Subscribe(ctx, app.Config.Redis.Channel)
			if err != nil {
				return err
			}
			app.Logger.Info().
				Str("channel", app.Config.Redis.Channel).
				Bool("dry_run", policy.DryRun).
				Float64("min_confidence", policy.MinConfidence).
				Msg("Listening for events")

			err = consumer.Run(ctx, sub)
			if saveErr := app.Save(); saveErr != nil {
				return saveErr
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Bool("dry-run", false, "log signals without executing them (default from consumer.dry_run)")
	cmd.Flags().Float64("min-confidence", 0, "minimum signal confidence (default from consumer.min_confidence)")
	return cmd
}

func newPublishCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a trading event to Redis",
	}

	priceCmd := &cobra.Command{
		Use:   "price <ticker> <price>",
		Short: "Publish a price update",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := parsePricePairs(args)
			if err != nil {
				return err
			}
			var volume *int64
			if cmd.Flags().Changed("volume") {
				v, _ := cmd.Flags().GetInt64("volume")
				volume = &v
			}
			return app.publish(cmd, func(ctx context.Context, p *events.Publisher) (events.TradingEvent, error) {
				return p.PublishPriceUpdate(ctx, args[0], prices[args[0]], volume, "cli")
			})
		},
	}
	priceCmd.Flags().Int64("volume", 0, "traded volume")
	cmd.AddCommand(priceCmd)

	signalCmd := &cobra.Command{
		Use:   "signal <ticker> <buy|sell|short|cover|hold>",
		Short: "Publish a trade signal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := trading.ParseAction(args[1])
			if err != nil {
				return err
			}
			confidence, _ := cmd.Flags().GetFloat64("confidence")
			qty, _ := cmd.Flags().GetInt("qty")
			reason, _ := cmd.Flags().GetString("reason")
			return app.publish(cmd, func(ctx context.Context, p *events.Publisher) (events.TradingEvent, error) {
				return p.PublishTradeSignal(ctx, args[0], string(action), confidence, qty, reason, "cli")
			})
		},
	}
	signalCmd.Flags().Float64("confidence", 100, "signal confidence, 0-100")
	signalCmd.Flags().Int("qty", 0, "quantity to trade")
	signalCmd.Flags().String("reason", "", "free-form reason")
	cmd.AddCommand(signalCmd)

	newsCmd := &cobra.Command{
		Use:   "news <ticker> <headline>",
		Short: "Publish a news event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sentiment, _ := cmd.Flags().GetString("sentiment")
			url, _ := cmd.Flags().GetString("url")
			return app.publish(cmd, func(ctx context.Context, p *events.Publisher) (events.TradingEvent, error) {
				return p.PublishNews(ctx, args[0], args[1], sentiment, url, "cli")
			})
		},
	}
	newsCmd.Flags().String("sentiment", "", "bullish, bearish or neutral")
	newsCmd.Flags().String("url", "", "article url")
	cmd.AddCommand(newsCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "scheduled [ticker]...",
		Short: "Publish a scheduled run for tickers (default: configured tickers)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tickers := args
			if len(tickers) == 0 {
				tickers = app.Config.Tickers
			}
			return app.publish(cmd, func(ctx context.Context, p *events.Publisher) (events.TradingEvent, error) {
				return p.PublishScheduled(ctx, tickers, "cli")
			})
		},
	})

	return cmd
}

// publish runs fn against a connected publisher and reports the event.
func (a *App) publish(cmd *cobra.Command, fn func(context.Context, *events.Publisher) (events.TradingEvent, error)) error {
	output := NewOutput(cmd)
	ctx := cmd.Context()

	p, err := a.publisher(ctx)
	if err != nil {
		return err
	}
	e, err := fn(ctx, p)
	if err != nil {
		return err
	}

	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"event_id":   e.EventID,
			"event_type": e.EventType,
			"ticker":     e.Ticker,
			"channel":    a.Config.Redis.Channel,
		})
	}
	output.Success("Published %s", e)
	output.Dim("Event ID: %s", e.EventID)
	return nil
}

func newMonitorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor [ticker]...",
		Short: "Poll the Redis price cache and publish price events",
		Long: `Poll the Redis price cache for tickers (default: configured tickers) and
publish a price update for each. Moves of at least producer.alert_threshold
percent since the previous poll are published as price alerts. Lookups are
throttled to feed.rate_limit per second. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			tickers := args
			if len(tickers) == 0 {
				tickers = app.Config.Tickers
			}
			interval, _ := cmd.Flags().GetDuration("interval")

			src, err := app.priceSource()
			if err != nil {
				return err
			}
			if err := src.Ping(ctx); err != nil {
				return err
			}
			fetcher := pricefeed.NewThrottled(src, app.throttleConfig(), app.Logger)

			p, err := app.publisher(ctx)
			if err != nil {
				return err
			}

			monitor := events.NewMonitor(fetcher, p, tickers, interval, "redis_cache", app.Logger)
			if once, _ := cmd.Flags().GetBool("once"); once {
				n, err := monitor.Poll(ctx)
				if err != nil {
					return err
				}
				NewOutput(cmd).Success("Published %d price event(s)", n)
				return nil
			}
			if err := monitor.Run(ctx); ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().Duration("interval", time.Minute, "polling interval")
	cmd.Flags().Bool("once", false, "poll once and exit")
	return cmd
}
