// Package service evaluates user alerts against live prices and dispatches
// notifications when they fire.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradewatch/internal/alerting"
	"tradewatch/internal/market"
	"tradewatch/internal/scheduler"
	"tradewatch/internal/storage"
)

var (
	// ErrInvalidThreshold is returned when a price alert value is not numeric.
	ErrInvalidThreshold = errors.New("alert value must be a number")
	// ErrInvalidSymbol is returned when an alert has a blank symbol.
	ErrInvalidSymbol = errors.New("symbol is required")

	crossProximityRatio = decimal.RequireFromString("0.001")
	crossProximityFloor = decimal.RequireFromString("0.5")
)

// PriceSource resolves the current price of a symbol. It must not fail.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) market.Quote
}

// AlertStore is the in-memory alert collection the engine drives.
type AlertStore interface {
	Create(fields storage.AlertFields) storage.Alert
	List() []storage.Alert
	Active() []storage.Alert
	Get(id string) (storage.Alert, error)
	Update(id string, fields storage.AlertFields) (storage.Alert, error)
	Delete(id string) error
	MarkTriggered(id string) (storage.Alert, bool)
}

// Options wire the engine's collaborators. Events and Scheduler are optional.
type Options struct {
	Store     AlertStore
	Prices    PriceSource
	Notifier  alerting.Notifier
	Events    storage.EventStore
	Scheduler *scheduler.Scheduler
	Now       func() time.Time
}

// Service orchestrates alert evaluation, persistence, and notification.
type Service struct {
	store     AlertStore
	prices    PriceSource
	notifier  alerting.Notifier
	events    storage.EventStore
	scheduler *scheduler.Scheduler
	now       func() time.Time
	logger    zerolog.Logger

	mu         sync.Mutex
	lastPrices map[string]decimal.Decimal
}

// New constructs the alert engine.
func New(opts Options, logger zerolog.Logger) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      opts.Store,
		prices:     opts.Prices,
		notifier:   opts.Notifier,
		events:     opts.Events,
		scheduler:  opts.Scheduler,
		now:        now,
		logger:     logger.With().Str("component", "alert_engine").Logger(),
		lastPrices: make(map[string]decimal.Decimal),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		s.EvaluateOnce(ctx)
		return nil
	})
}

// EvaluateOnce 执行一轮告警检查, 单个告警出错不影响其它告警。
func (s *Service) EvaluateOnce(ctx context.Context) int {
	active := s.store.Active()
	s.pruneLastPrices(active)
	if len(active) == 0 {
		return 0
	}

	quotes := make(map[string]market.Quote)
	fired := 0
	for _, alert := range active {
		if ctx.Err() != nil {
			return fired
		}

		quote, ok := quotes[alert.Symbol]
		if !ok {
			quote = s.prices.CurrentPrice(ctx, alert.Symbol)
			quotes[alert.Symbol] = quote
		}

		triggered, err := s.evaluate(alert, quote.Price)
		if err != nil {
			s.logger.Error().Err(err).Str("alert_id", alert.ID).Str("symbol", alert.Symbol).Msg("alert evaluation failed")
			continue
		}
		if !triggered {
			continue
		}

		current, ok := s.store.MarkTriggered(alert.ID)
		if !ok {
			continue
		}
		fired++
		s.logger.Info().
			Str("alert_id", current.ID).
			Str("symbol", current.Symbol).
			Str("condition", current.Condition).
			Str("value", current.Value).
			Float64("price", quote.Price).
			Bool("fallback", quote.Fallback).
			Msg("alert triggered")

		s.dispatch(ctx, current, quote.Price)
	}
	return fired
}

// evaluate compares price with the alert threshold and records price as the
// alert's previous observation.
func (s *Service) evaluate(alert storage.Alert, price float64) (bool, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return false, fmt.Errorf("non-finite price %v for %s", price, alert.Symbol)
	}
	threshold, err := decimal.NewFromString(strings.TrimSpace(alert.Value))
	if err != nil {
		return false, fmt.Errorf("parse threshold %q: %w", alert.Value, err)
	}

	current := decimal.NewFromFloat(price)
	key := priceKey(alert)

	s.mu.Lock()
	previous, seen := s.lastPrices[key]
	if !seen {
		previous = current
	}
	s.lastPrices[key] = current
	s.mu.Unlock()

	switch alert.Condition {
	case storage.ConditionAbove:
		return current.GreaterThan(threshold), nil
	case storage.ConditionBelow:
		return current.LessThan(threshold), nil
	case storage.ConditionCrosses:
		return crossed(previous, current, threshold), nil
	default:
		return false, fmt.Errorf("unknown condition %q", alert.Condition)
	}
}

// crossed reports a strict crossing in either direction, or a price sitting
// within max(0.1% of threshold, 0.5) of it.
func crossed(previous, current, threshold decimal.Decimal) bool {
	if previous.LessThan(threshold) && current.GreaterThanOrEqual(threshold) {
		return true
	}
	if previous.GreaterThan(threshold) && current.LessThanOrEqual(threshold) {
		return true
	}
	proximity := decimal.Max(threshold.Mul(crossProximityRatio), crossProximityFloor)
	return current.Sub(threshold).Abs().LessThan(proximity)
}

func (s *Service) dispatch(ctx context.Context, alert storage.Alert, price float64) {
	event := storage.TriggerEvent{
		AlertID:   alert.ID,
		Symbol:    alert.Symbol,
		Condition: alert.Condition,
		Threshold: alert.Value,
		Price:     price,
	}

	if alert.NotifyDiscord && s.notifier != nil {
		phrase := alerting.ConditionPhrase(alert.Condition)
		notice := alerting.AlertNotice{
			Symbol:       alert.Symbol,
			AlertType:    alert.Type,
			Condition:    phrase,
			Threshold:    alert.Value,
			CurrentPrice: price,
			Content:      fmt.Sprintf("🚨 Alert triggered: %s has %s %s (Current price: %s)", alert.Symbol, phrase, alert.Value, alerting.FormatPrice(price)),
		}
		if _, err := s.notifier.SendAlert(ctx, notice); err != nil {
			msg := err.Error()
			event.Error = &msg
			s.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("failed to dispatch alert")
		} else {
			event.Notified = true
		}
	}

	s.recordEvent(ctx, event)
}

func (s *Service) recordEvent(ctx context.Context, event storage.TriggerEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.RecordTrigger(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("alert_id", event.AlertID).Msg("failed to persist trigger event")
	}
}

func (s *Service) pruneLastPrices(active []storage.Alert) {
	keep := make(map[string]struct{}, len(active))
	for _, a := range active {
		keep[priceKey(a)] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.lastPrices {
		if _, ok := keep[key]; !ok {
			delete(s.lastPrices, key)
		}
	}
}

func priceKey(a storage.Alert) string {
	return a.Symbol + "_" + a.ID
}
