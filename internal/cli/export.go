package cli

import (
	"github.com/spf13/cobra"

	"tradewatch/internal/app"
)

var (
	exportSymbol   string
	exportInterval string
	exportLimit    int
	exportPNGPath  string
	exportCSVPath  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export candle history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Symbol:   exportSymbol,
			Interval: exportInterval,
			Limit:    exportLimit,
			PNGPath:  exportPNGPath,
			CSVPath:  exportCSVPath,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSymbol, "symbol", "BTCUSDT", "Trading pair, e.g. BTCUSDT")
	exportCmd.Flags().StringVar(&exportInterval, "interval", "1h", "Candle interval (1m, 5m, 15m, 1h, 4h, 1d, ...)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum candles to export (defaults to config)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
}
