package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"papertrader/internal/broker"
	"papertrader/internal/errors"
	"papertrader/internal/models"
	"papertrader/internal/trading"
)

// addOrderCommands adds order entry and order management commands.
func addOrderCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newOrderCmd(app))
	rootCmd.AddCommand(newCancelCmd(app))
	rootCmd.AddCommand(newOrdersCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))
	rootCmd.AddCommand(newCloseAllCmd(app))
	rootCmd.AddCommand(newReevaluateCmd(app))
}

// buildOrder turns an action and the order flags into a validated order.
func buildOrder(cmd *cobra.Command, action trading.Action, ticker string, qty int) (models.Order, error) {
	side, positionSide, ok := action.Sides()
	if !ok {
		return models.Order{}, errors.NewValidationError("action", action, "hold does not place an order")
	}

	opts := []models.OrderOption{models.WithPositionSide(positionSide)}
	if cmd.Flags().Changed("type") {
		s, _ := cmd.Flags().GetString("type")
		t, err := models.ParseOrderType(s)
		if err != nil {
			return models.Order{}, err
		}
		opts = append(opts, models.WithType(t))
	}
	if cmd.Flags().Changed("limit") {
		limit, _ := cmd.Flags().GetFloat64("limit")
		opts = append(opts, models.WithLimitPrice(limit))
	}
	if cmd.Flags().Changed("stop") {
		stop, _ := cmd.Flags().GetFloat64("stop")
		opts = append(opts, models.WithStopPrice(stop))
		if !cmd.Flags().Changed("type") {
			t := models.OrderTypeStop
			if cmd.Flags().Changed("limit") {
				t = models.OrderTypeStopLimit
			}
			opts = append(opts, models.WithType(t))
		}
	}
	if s, _ := cmd.Flags().GetString("tif"); s != "" {
		tif, err := models.ParseTimeInForce(s)
		if err != nil {
			return models.Order{}, err
		}
		opts = append(opts, models.WithTimeInForce(tif))
	}
	if id, _ := cmd.Flags().GetString("client-id"); id != "" {
		opts = append(opts, models.WithClientOrderID(id))
	}

	return models.NewOrder(ticker, side, qty, opts...)
}

func newOrderCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order <buy|sell|short|cover> <ticker> <quantity>",
		Short: "Submit an order",
		Long: `Submit an order to the paper broker.

buy and sell trade the long book; short opens and cover closes a short
position. Without --limit or --stop the order executes at market.`,
		Example: `  papertrader order buy AAPL 10
  papertrader order buy AAPL 10 --limit 180
  papertrader order short TSLA 5 --stop 250
  papertrader order cover TSLA 5`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			action, err := trading.ParseAction(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[2])
			if err != nil {
				return errors.NewValidationError("quantity", args[2], "must be a whole number")
			}
			order, err := buildOrder(cmd, action, args[1], qty)
			if err != nil {
				return err
			}

			sim, err := app.Simulator()
			if err != nil {
				return err
			}
			result := sim.SubmitOrder(order)
			if err := app.Save(); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printResult(output, result)
			return nil
		},
	}

	cmd.Flags().Float64("limit", 0, "limit price")
	cmd.Flags().Float64("stop", 0, "stop price")
	cmd.Flags().String("type", "", "order type (market, limit, stop, stop_limit)")
	cmd.Flags().String("tif", "", "time in force (day, gtc, ioc, fok)")
	cmd.Flags().String("client-id", "", "client order id (default: random)")

	return cmd
}

func newCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}

			if !sim.CancelOrder(args[0]) {
				if _, ok := sim.GetOrder(args[0]); !ok {
					return fmt.Errorf("%w: %s", errors.ErrOrderNotFound, args[0])
				}
				return fmt.Errorf("order %s is not pending", args[0])
			}
			if err := app.Save(); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"order_id": args[0], "cancelled": true})
			}
			output.Success("Cancelled %s", args[0])
			return nil
		},
	}
}

func newOrdersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders [order-id]",
		Short: "List orders, or show one order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				r, ok := sim.GetOrder(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", errors.ErrOrderNotFound, args[0])
				}
				if output.IsJSON() {
					return output.JSON(r)
				}
				printResult(output, r)
				return nil
			}

			status, _ := cmd.Flags().GetString("status")
			filter, err := broker.ParseStatusFilter(status)
			if err != nil {
				return err
			}
			results := sim.GetOrders(filter)
			broker.SortResults(results)
			if output.IsJSON() {
				return output.JSON(results)
			}
			printResults(output, results)
			return nil
		},
	}
	cmd.Flags().String("status", "all", "filter by status (open, closed, all)")
	return cmd
}

func newCloseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close <ticker>",
		Short: "Close the position in a ticker at market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}

			result, ok := broker.ClosePosition(sim, args[0])
			if !ok {
				return fmt.Errorf("no open position in %s", args[0])
			}
			if err := app.Save(); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printResult(output, result)
			return nil
		},
	}
}

func newCloseAllCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close-all",
		Short: "Close every open position at market",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}

			results := broker.CloseAllPositions(sim)
			if err := app.Save(); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(results)
			}
			if len(results) == 0 {
				output.Dim("No open positions")
				return nil
			}
			printResults(output, results)
			return nil
		},
	}
}

func newReevaluateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reevaluate",
		Short: "Re-check pending orders against current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sim, err := app.Simulator()
			if err != nil {
				return err
			}

			results := sim.ReevaluatePending()
			if err := app.Save(); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(results)
			}
			if len(results) == 0 {
				output.Dim("No pending orders changed")
				return nil
			}
			printResults(output, results)
			return nil
		},
	}
}
