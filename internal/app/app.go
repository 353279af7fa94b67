package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/alerting"
	"tradewatch/internal/config"
	"tradewatch/internal/exchange"
	"tradewatch/internal/market"
	"tradewatch/internal/simulator"
	"tradewatch/internal/storage"
	"tradewatch/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newGateway() *market.Gateway {
	client := exchange.NewClient(exchange.Options{
		BaseURL:           a.Config.Exchange.BaseURL,
		APIKey:            a.Config.Exchange.APIKey,
		Timeout:           a.Config.Exchange.RequestTimeout,
		UserAgent:         version.UserAgent(),
		RequestsPerSecond: a.Config.Exchange.RequestsPerSecond,
		Burst:             a.Config.Exchange.Burst,
	}, a.Logger)

	sim := simulator.New(simulator.Options{Seed: a.Config.Simulator.Seed})

	return market.NewGateway(client, sim, market.Options{
		BasePrices:         a.Config.BasePrices(),
		DefaultCandleLimit: a.Config.Exchange.DefaultCandleLimit,
		MaxPages:           a.Config.Exchange.MaxPages,
	}, a.Logger)
}

func (a *App) newNotifier() *alerting.DiscordNotifier {
	cfg := a.Config.Discord
	return alerting.NewDiscordNotifier(alerting.DiscordOptions{
		WebhookURL:     cfg.WebhookURL,
		Timeout:        cfg.RequestTimeout,
		SuppressWindow: cfg.SuppressWindow,
		Retention:      cfg.Retention,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// ExportOptions hold parameters for exporting candle history.
type ExportOptions struct {
	Symbol   string
	Interval string
	Limit    int
	PNGPath  string
	CSVPath  string
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit       int
	PruneBefore *time.Time
}

// TestAlertOptions configure a one-off Discord notification.
type TestAlertOptions struct {
	Symbol      string
	Price       float64
	Real        bool
	Condition   string
	TargetPrice *float64
	Message     string
	Verify      bool
}
