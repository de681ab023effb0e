package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"papertrader/internal/config"
	"papertrader/pkg/utils"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View, validate and create the trading configuration file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in use and the search order",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"path":   app.Config.Path,
					"search": config.SearchPaths(),
				})
			}
			if app.Config.Path == "" {
				output.Warning("No config file found, using defaults")
			} else {
				output.Println(app.Config.Path)
			}
			output.Dim("Search order: %s", strings.Join(config.SearchPaths(), ", "))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with the default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := filepath.Join(config.DefaultConfigDir(), config.FileName)
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("Wrote %s", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Broker")
	output.Printf("  Type:               %s\n", cfg.Broker.Type)
	output.Printf("  Initial Cash:       %s\n", utils.FormatCurrency(cfg.Broker.InitialCash))
	output.Printf("  Margin Requirement: %.0f%%\n", cfg.Broker.MarginRequirement*100)
	output.Printf("  Slippage:           %.2f%% (max %.2f%%)\n", cfg.Broker.Slippage*100, cfg.Broker.MaxSlippage*100)
	output.Printf("  State File:         %s\n", cfg.Broker.StateFile)
	output.Printf("  Auto Save:          %v\n", cfg.Broker.AutoSave)
	output.Println()

	output.Bold("Events")
	output.Printf("  Redis:              %s\n", cfg.Redis.URL)
	output.Printf("  Channel:            %s\n", cfg.Redis.Channel)
	output.Printf("  Price Prefix:       %s\n", cfg.Redis.PricePrefix)
	output.Printf("  Alert Threshold:    %.1f%%\n", cfg.Producer.AlertThreshold)
	output.Printf("  Min Confidence:     %.0f%%\n", cfg.Consumer.MinConfidence)
	output.Printf("  Dry Run:            %v\n", cfg.Consumer.DryRun)
	output.Println()

	output.Bold("Journal")
	output.Printf("  Enabled:            %v\n", cfg.Journal.Enabled)
	output.Printf("  Path:               %s\n", cfg.Journal.Path)
	output.Println()

	output.Bold("Tickers")
	output.Printf("  %s\n", strings.Join(cfg.Tickers, ", "))
}
