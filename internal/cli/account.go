package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"papertrader/internal/errors"
	"papertrader/internal/models"
	"papertrader/pkg/utils"
)

// addAccountCommands adds ledger inspection commands.
func addAccountCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(&cobra.Command{
		Use:     "positions",
		Aliases: []string{"pos"},
		Short:   "Show open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}
			positions := sortedPositions(sim.GetPositions())
			if output.IsJSON() {
				return output.JSON(positions)
			}
			printPositions(output, positions)
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "account",
		Short: "Show cash, equity and margin",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}
			account := sim.GetAccount()
			if output.IsJSON() {
				return output.JSON(account)
			}
			printAccount(output, account)
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Show the performance summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}
			summary := sim.GetPerformanceSummary()
			if output.IsJSON() {
				return output.JSON(summary)
			}
			printSummary(output, summary)
			return nil
		},
	})

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the initial cash and clear positions, orders and prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("reset discards the whole ledger; pass --yes to confirm")
			}
			sim, err := app.Simulator()
			if err != nil {
				return err
			}
			sim.Reset()
			if err := app.Save(); err != nil {
				return err
			}
			account := sim.GetAccount()
			if output.IsJSON() {
				return output.JSON(account)
			}
			output.Success("Ledger reset to %s", utils.FormatCurrency(account.Cash))
			return nil
		},
	}
	resetCmd.Flags().Bool("yes", false, "confirm the reset")
	rootCmd.AddCommand(resetCmd)
}

// addPriceCommands adds manual price commands.
func addPriceCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Set or show current prices",
	}

	setCmd := &cobra.Command{
		Use:     "set <ticker> <price> [<ticker> <price>...]",
		Short:   "Set manual prices",
		Example: "  papertrader price set AAPL 182.5 MSFT 410",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected ticker/price pairs, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			prices, err := parsePricePairs(args)
			if err != nil {
				return err
			}

			sim, err := app.Simulator()
			if err != nil {
				return err
			}
			sim.SetPrices(prices)

			reevaluate, _ := cmd.Flags().GetBool("reevaluate")
			results := []models.OrderResult{}
			if reevaluate {
				results = append(results, sim.ReevaluatePending()...)
			}
			if err := app.Save(); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"prices": prices, "updated_orders": results})
			}
			for i := 0; i < len(args); i += 2 {
				ticker := strings.TrimSpace(args[i])
				output.Printf("%-8s %s\n", ticker, utils.FormatCurrency(prices[ticker]))
			}
			if len(results) > 0 {
				output.Info("%d pending order(s) updated", len(results))
			}
			return nil
		},
	}
	setCmd.Flags().Bool("reevaluate", true, "re-check pending orders after setting prices")
	cmd.AddCommand(setCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <ticker>...",
		Short: "Show the current price of tickers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}

			prices := make(map[string]*float64, len(args))
			for _, t := range args {
				if p, ok := sim.GetCurrentPrice(t); ok {
					prices[t] = &p
				} else {
					prices[t] = nil
				}
			}
			if output.IsJSON() {
				return output.JSON(prices)
			}
			for _, t := range args {
				output.Printf("%-8s %s\n", t, utils.FormatPrice(prices[t]))
			}
			return nil
		},
	})

	rootCmd.AddCommand(cmd)
}

// parsePricePairs parses alternating ticker and price arguments.
func parsePricePairs(args []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		ticker := strings.TrimSpace(args[i])
		if ticker == "" {
			return nil, errors.NewValidationError("ticker", args[i], "must not be empty")
		}
		p, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil || p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, errors.NewValidationError("price", args[i+1], "must be a positive number")
		}
		prices[ticker] = p
	}
	return prices, nil
}
