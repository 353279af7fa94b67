package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"tradewatch/internal/app"
)

var (
	testAlertSymbol    string
	testAlertPrice     float64
	testAlertReal      bool
	testAlertCondition string
	testAlertTarget    float64
	testAlertMessage   string
	testAlertVerify    bool
)

var testAlertCmd = &cobra.Command{
	Use:   "test-alert",
	Short: "发送一条测试告警到 Discord",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !testAlertVerify && testAlertPrice <= 0 {
			return errors.New("--price 必须大于 0")
		}

		opts := app.TestAlertOptions{
			Symbol:    testAlertSymbol,
			Price:     testAlertPrice,
			Real:      testAlertReal,
			Condition: testAlertCondition,
			Message:   testAlertMessage,
			Verify:    testAlertVerify,
		}
		if cmd.Flags().Changed("target") {
			target := testAlertTarget
			opts.TargetPrice = &target
		}
		return getApp().TestAlert(cmd.Context(), opts)
	},
}

func init() {
	testAlertCmd.Flags().StringVar(&testAlertSymbol, "symbol", "BTCUSDT", "Trading pair")
	testAlertCmd.Flags().Float64Var(&testAlertPrice, "price", 50000, "Price shown in the message")
	testAlertCmd.Flags().BoolVar(&testAlertReal, "real", false, "Format as a real (red) alert")
	testAlertCmd.Flags().StringVar(&testAlertCondition, "condition", "test", "Condition: above, below or crosses")
	testAlertCmd.Flags().Float64Var(&testAlertTarget, "target", 0, "Target price")
	testAlertCmd.Flags().StringVar(&testAlertMessage, "message", "", "Custom content line")
	testAlertCmd.Flags().BoolVar(&testAlertVerify, "verify", false, "Send the webhook verification message instead")
}
