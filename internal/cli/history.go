package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradewatch/internal/app"
)

var (
	historyLimit       int
	historyPruneBefore string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display recent alert trigger events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.HistoryOptions{
			Limit: historyLimit,
		}

		if historyPruneBefore != "" {
			before, err := time.Parse(time.RFC3339, historyPruneBefore)
			if err != nil {
				return fmt.Errorf("invalid --prune-before value: %w", err)
			}
			opts.PruneBefore = &before
		}

		return getApp().History(cmd.Context(), opts)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of events to display")
	historyCmd.Flags().StringVar(&historyPruneBefore, "prune-before", "", "Delete events older than this timestamp (RFC3339) before listing")
}
