package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"tradewatch/internal/alerting"
)

// TestAlert 直接向 Discord 发送一条测试告警, 用于验证 webhook 配置。
func (a *App) TestAlert(ctx context.Context, opts TestAlertOptions) error {
	notifier := a.newNotifier()
	if !notifier.Configured() {
		return alerting.ErrWebhookNotConfigured
	}

	var (
		result alerting.Result
		err    error
	)
	if opts.Verify {
		result, err = notifier.Send(ctx, alerting.VerificationMessage(opts.Message, time.Now().UTC().Format(time.RFC3339)))
	} else {
		notice := alerting.TestNotice{
			Symbol:      strings.ToUpper(opts.Symbol),
			Price:       opts.Price,
			Real:        opts.Real,
			Condition:   opts.Condition,
			TargetPrice: opts.TargetPrice,
			Content:     opts.Message,
		}
		result, err = notifier.Send(ctx, notice.Message(time.Now()))
	}
	if err != nil {
		return err
	}

	switch {
	case result.Suppressed:
		fmt.Fprintln(os.Stdout, "duplicate message suppressed")
	default:
		fmt.Fprintf(os.Stdout, "message delivered to %s\n", notifier.MaskedURL())
	}
	return nil
}
