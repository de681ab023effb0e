// Package cli provides the command-line interface for the paper broker.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"papertrader/internal/broker"
	"papertrader/internal/config"
	"papertrader/internal/errors"
	"papertrader/internal/events"
	"papertrader/internal/journal"
	"papertrader/internal/logging"
	"papertrader/internal/pricefeed"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. The simulator is built on first
// use so that config and version commands never touch state files.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *broker.Registry
	// ConfigErr is the error from loading the default configuration. It is
	// reported by commands that need the configuration unless --config is given.
	ConfigErr error

	sim      broker.Simulator
	journal  *journal.Journal
	prices   *pricefeed.RedisSource
	bus      *events.RedisBus
	noSave   bool
	useRedis bool
}

// NewApp creates an App with the built-in broker registry.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: broker.NewRegistry(),
	}
}

// Simulator returns the shared simulator, creating it from the configuration
// and loading the saved ledger the first time.
func (a *App) Simulator() (broker.Simulator, error) {
	if a.sim != nil {
		return a.sim, nil
	}
	sim, err := a.newSimulator(true)
	if err != nil {
		return nil, err
	}
	a.sim = sim
	return sim, nil
}

// newSimulator builds a simulator from the configuration. With restore set
// the ledger is loaded from the state file when one exists. A ledger that is
// not restored, or runs under --no-save, never writes the state file.
func (a *App) newSimulator(restore bool) (broker.Simulator, error) {
	cfg := a.Config.BrokerConfig()
	logger := a.Logger
	cfg.Logger = &logger
	cfg.AutoSave = cfg.AutoSave && restore && !a.noSave

	if a.useRedis {
		src, err := a.priceSource()
		if err != nil {
			return nil, err
		}
		cfg.PriceProvider = pricefeed.NewThrottled(src, a.throttleConfig(), logger)
	}

	b, err := a.Registry.Create(a.Config.BrokerType(), cfg)
	if err != nil {
		return nil, err
	}
	sim, ok := b.(broker.Simulator)
	if !ok {
		return nil, errors.NewBrokerError(string(a.Config.BrokerType()), "does not support paper trading", errors.ErrUnsupportedOperation)
	}

	if restore {
		stateFile := a.Config.Broker.StateFile
		if stateFile == "" {
			stateFile = broker.DefaultStateFile
		}
		if _, statErr := os.Stat(stateFile); statErr == nil {
			loaded, msg := sim.LoadState(stateFile)
			if !loaded {
				return nil, errors.NewSnapshotError(stateFile, msg, nil)
			}
			a.Logger.Debug().Msg(msg)
		}
	}

	if a.Config.Journal.Enabled {
		j, err := a.Journal()
		if err != nil {
			return nil, err
		}
		sim = broker.NewJournaledBroker(sim, j, a.Logger)
	}

	return broker.NewSyncBroker(sim), nil
}

// throttleConfig applies the feed settings to the default throttle.
func (a *App) throttleConfig() pricefeed.ThrottleConfig {
	throttle := pricefeed.DefaultThrottleConfig()
	throttle.RateLimit = a.Config.Feed.RateLimit
	throttle.Retries = a.Config.Feed.Retries
	throttle.BreakerThreshold = a.Config.Feed.BreakerThreshold
	throttle.BreakerCooldown = a.Config.Feed.BreakerCooldown
	return throttle
}

// priceSource returns the Redis price cache, connecting on first use.
func (a *App) priceSource() (*pricefeed.RedisSource, error) {
	if a.prices != nil {
		return a.prices, nil
	}
	src, err := pricefeed.NewRedisSource(a.Config.Redis.URL, a.Config.Redis.PricePrefix)
	if err != nil {
		return nil, err
	}
	a.prices = src
	return src, nil
}

// Journal returns the order journal, opening it if needed. It is available
// even when journaling of new orders is disabled.
func (a *App) Journal() (*journal.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	j, err := journal.Open(a.Config.Journal.Path)
	if err != nil {
		return nil, err
	}
	a.journal = j
	return j, nil
}

// Save persists the ledger to the configured state file unless --no-save
// was given.
func (a *App) Save() error {
	if a.noSave || a.sim == nil {
		return nil
	}
	return a.sim.SaveState("")
}

// eventBus returns the Redis event bus, connecting on first use.
func (a *App) eventBus() (*events.RedisBus, error) {
	if a.bus != nil {
		return a.bus, nil
	}
	bus, err := events.NewRedisBus(a.Config.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.bus = bus
	return bus, nil
}

// Close releases the journal and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.prices != nil {
		errs = append(errs, a.prices.Close())
	}
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	return errors.Join(errs...)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "papertrader",
		Short: "Paper broker - simulated order execution against a cash and margin ledger",
		Long: `papertrader simulates a brokerage account: market, limit and stop orders,
long and short positions with margin, pending order re-evaluation, and
state that survives restarts.

Prices are set manually, replayed from CSV files, read from a Redis cache,
or delivered as trading events over Redis pub/sub.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("config") {
				path, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
				app.ConfigErr = nil
			}
			if app.ConfigErr != nil && !toleratesConfigError(cmd) {
				return app.ConfigErr
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			app.noSave, _ = cmd.Flags().GetBool("no-save")
			app.useRedis, _ = cmd.Flags().GetBool("redis-prices")
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: search ./config, ./ and "+config.DefaultConfigDir()+")")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-save", false, "do not write the state file after changes")
	rootCmd.PersistentFlags().Bool("redis-prices", false, "fall back to the Redis price cache for unknown prices")

	addCoreCommands(rootCmd, app)
	addOrderCommands(rootCmd, app)
	addAccountCommands(rootCmd, app)
	addPriceCommands(rootCmd, app)
	addJournalCommands(rootCmd, app)
	addReplayCommands(rootCmd, app)
	addEventCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
// toleratesConfigError reports whether cmd can run when the configuration
// failed to load, so a broken file can still be located or regenerated.
func toleratesConfigError(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version":
		return true
	case "path", "init":
		return cmd.Parent() != nil && cmd.Parent().Name() == "config"
	}
	return false
}

func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("papertrader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}
