// Command papertrader runs the paper broker CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"papertrader/internal/cli"
	"papertrader/internal/config"
	"papertrader/internal/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// A broken default config is reported once flags are parsed, since
	// --config may point elsewhere.
	cfg, cfgErr := config.Load("")
	if cfgErr != nil {
		cfg = config.Default()
	}

	logger := logging.NewLoggerWithConfig(cfg.LogConfig())
	app := cli.NewApp(cfg, logger)
	app.ConfigErr = cfgErr

	err := cli.NewRootCmd(app).ExecuteContext(context.Background())
	if closeErr := app.Close(); closeErr != nil {
		logger.Warn().Err(closeErr).Msg("Shutdown incomplete")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
