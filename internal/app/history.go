package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"tradewatch/internal/alerting"
	"tradewatch/internal/storage"
)

// History prints recent trigger events, optionally pruning old ones first.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show trigger history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.PruneBefore != nil {
		removed, err := store.DeleteEventsBefore(ctx, *opts.PruneBefore)
		if err != nil {
			return err
		}
		a.Logger.Info().Int64("removed", removed).Time("before", *opts.PruneBefore).Msg("pruned trigger events")
	}

	events, err := store.ListRecentEvents(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return printEvents(os.Stdout, events)
}

func printEvents(out io.Writer, events []storage.TriggerEvent) error {
	if len(events) == 0 {
		fmt.Fprintln(out, "no trigger events found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tCondition\tThreshold\tPrice\tNotified\tError")

	for _, event := range events {
		errMsg := ""
		if event.Error != nil {
			errMsg = sanitizeInline(*event.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			event.CreatedAt.UTC().Format(time.RFC3339),
			event.Symbol,
			event.Condition,
			event.Threshold,
			alerting.FormatPrice(event.Price),
			event.Notified,
			errMsg,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
