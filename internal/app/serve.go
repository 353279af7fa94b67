package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"tradewatch/internal/api"
	"tradewatch/internal/scheduler"
	"tradewatch/internal/service"
	"tradewatch/internal/storage"
	"tradewatch/internal/stream"
)

// Run serves the HTTP API and drives the alert loop until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; trigger history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	gateway := a.newGateway()
	notifier := a.newNotifier()
	if !notifier.Configured() {
		a.Logger.Warn().Msg("discord webhook not configured; notifications will fail until DISCORD_WEBHOOK_URL is set")
	}

	var events storage.EventStore
	if store != nil {
		events = store
	}

	sched := scheduler.New(scheduler.Options{
		Name:     "alerts",
		Interval: a.Config.Alerting.PollInterval,
	}, a.Logger)

	svc := service.New(service.Options{
		Store:     storage.NewMemoryStore(),
		Prices:    gateway,
		Notifier:  notifier,
		Events:    events,
		Scheduler: sched,
	}, a.Logger)

	hub := stream.NewHub(gateway, stream.Options{
		PollInterval: a.Config.Stream.PollInterval,
		ErrorBackoff: a.Config.Stream.ErrorBackoff,
	}, a.Logger)

	if a.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(api.HandlerOptions{
		Market:         gateway,
		Alerts:         svc,
		Webhook:        notifier,
		Streamer:       hub,
		WSWriteTimeout: a.Config.Stream.WriteTimeout,
	}, a.Logger)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: a.Config.Server.AllowedOrigins}, a.Logger)

	srv := &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.Config.Alerting.Enabled {
		g.Go(func() error {
			a.Logger.Info().Dur("poll_interval", a.Config.Alerting.PollInterval).Msg("starting alert engine")
			if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("alert engine: %w", err)
			}
			return nil
		})
	} else {
		a.Logger.Warn().Msg("alerting disabled; alerts will only fire when forced")
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}
