package cli

import (
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"papertrader/internal/journal"
	"papertrader/internal/models"
	"papertrader/pkg/utils"
)

// addJournalCommands adds order journal queries.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the order journal",
		Long: `Query the SQLite order journal.

Orders are recorded when journal.enabled is set in the configuration. The
journal keeps the latest state of each order and every update it went through.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			filter, err := journalFilter(cmd)
			if err != nil {
				return err
			}
			j, err := app.Journal()
			if err != nil {
				return err
			}
			results, err := j.Orders(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(results)
			}
			printResults(output, results)
			return nil
		},
	}
	listCmd.Flags().String("ticker", "", "only this ticker")
	listCmd.Flags().StringSlice("status", nil, "only these statuses (repeatable)")
	listCmd.Flags().Duration("since", 0, "only orders submitted within this duration, e.g. 24h")
	listCmd.Flags().Int("limit", 50, "maximum number of orders, 0 for all")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "history <order-id>",
		Short: "Show every recorded update of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			j, err := app.Journal()
			if err != nil {
				return err
			}
			entries, err := j.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Dim("No journal entries for %s", args[0])
				return nil
			}
			table := NewTable(output, "RECORDED", "STATUS", "FILLED", "PRICE", "MESSAGE")
			for _, e := range entries {
				table.AddRow(
					e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
					output.statusText(e.Result.Status),
					strconv.Itoa(e.Result.QuantityFilled)+"/"+strconv.Itoa(e.Result.QuantityRequested),
					utils.FormatPrice(e.Result.AveragePrice),
					e.Result.Message,
				)
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count journaled orders by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			j, err := app.Journal()
			if err != nil {
				return err
			}
			stats, err := j.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(stats)
			}

			statuses := make([]string, 0, len(stats))
			for s := range stats {
				statuses = append(statuses, string(s))
			}
			sort.Strings(statuses)
			table := NewTable(output, "STATUS", "ORDERS")
			for _, s := range statuses {
				table.AddRow(output.statusText(models.OrderStatus(s)), strconv.Itoa(stats[models.OrderStatus(s)]))
			}
			table.Render()
			return nil
		},
	})

	rootCmd.AddCommand(cmd)
}

func journalFilter(cmd *cobra.Command) (journal.Filter, error) {
	var f journal.Filter
	f.Ticker, _ = cmd.Flags().GetString("ticker")
	f.Limit, _ = cmd.Flags().GetInt("limit")

	statuses, _ := cmd.Flags().GetStringSlice("status")
	for _, s := range statuses {
		status, err := models.ParseOrderStatus(s)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, status)
	}

	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		f.Since = time.Now().Add(-since)
	}
	return f, nil
}
