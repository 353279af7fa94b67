package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tradewatch/internal/alerting"
)

// Price prints the current price of symbol with its source.
func (a *App) Price(ctx context.Context, symbol string) error {
	gateway := a.newGateway()
	quote := gateway.CurrentPrice(ctx, strings.ToUpper(strings.TrimSpace(symbol)))

	source := "exchange"
	switch {
	case quote.Fallback:
		source = "simulated"
	case quote.Cached:
		source = "cached"
	}
	fmt.Fprintf(os.Stdout, "%s\t%s\t(%s)\n", quote.Symbol, alerting.FormatPrice(quote.Price), source)
	return nil
}
