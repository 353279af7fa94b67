package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradewatch/internal/alerting"
	"tradewatch/internal/storage"
)

// CreateAlert validates and stores a new alert.
func (s *Service) CreateAlert(fields storage.AlertFields) (storage.Alert, error) {
	fields, err := normaliseFields(fields)
	if err != nil {
		return storage.Alert{}, err
	}
	alert := s.store.Create(fields)
	s.logger.Info().Str("alert_id", alert.ID).Str("symbol", alert.Symbol).Str("condition", alert.Condition).Str("value", alert.Value).Msg("alert created")
	return alert, nil
}

// ListAlerts returns every alert in creation order.
func (s *Service) ListAlerts() []storage.Alert {
	return s.store.List()
}

// UpdateAlert replaces the editable fields of an alert.
func (s *Service) UpdateAlert(id string, fields storage.AlertFields) (storage.Alert, error) {
	fields, err := normaliseFields(fields)
	if err != nil {
		return storage.Alert{}, err
	}
	return s.store.Update(id, fields)
}

// DeleteAlert removes an alert.
func (s *Service) DeleteAlert(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.logger.Info().Str("alert_id", id).Msg("alert deleted")
	return nil
}

// ForceTrigger fires an alert regardless of its threshold and notifies with
// the current price.
func (s *Service) ForceTrigger(ctx context.Context, id string) (storage.Alert, alerting.Result, error) {
	alert, err := s.store.Get(id)
	if err != nil {
		return storage.Alert{}, alerting.Result{}, err
	}
	if !s.notifierReady() {
		return alert, alerting.Result{}, alerting.ErrWebhookNotConfigured
	}

	quote := s.prices.CurrentPrice(ctx, alert.Symbol)
	if updated, ok := s.store.MarkTriggered(id); ok {
		alert = updated
	}

	phrase := alerting.ConditionPhrase(alert.Condition)
	result, err := s.notifier.SendAlert(ctx, alerting.AlertNotice{
		Symbol:       alert.Symbol,
		AlertType:    alert.Type,
		Condition:    phrase,
		Threshold:    alert.Value,
		CurrentPrice: quote.Price,
	})

	event := storage.TriggerEvent{
		AlertID:   alert.ID,
		Symbol:    alert.Symbol,
		Condition: alert.Condition,
		Threshold: alert.Value,
		Price:     quote.Price,
		Notified:  err == nil,
	}
	if err != nil {
		msg := err.Error()
		event.Error = &msg
	}
	s.recordEvent(ctx, event)

	if err != nil {
		return alert, alerting.Result{}, fmt.Errorf("force trigger %s: %w", id, err)
	}
	return alert, result, nil
}

// SendTestAlert delivers a manual test or real-style notice directly to the sink.
func (s *Service) SendTestAlert(ctx context.Context, notice alerting.TestNotice) (alerting.Result, error) {
	if s.notifier == nil {
		return alerting.Result{}, alerting.ErrWebhookNotConfigured
	}
	s.logger.Info().Str("symbol", notice.Symbol).Bool("real", notice.Real).Msg("sending test alert")
	return s.notifier.Send(ctx, notice.Message(s.now()))
}

// SendAlertNotice forwards a caller supplied alert notice.
func (s *Service) SendAlertNotice(ctx context.Context, notice alerting.AlertNotice) (alerting.Result, error) {
	if s.notifier == nil {
		return alerting.Result{}, alerting.ErrWebhookNotConfigured
	}
	return s.notifier.SendAlert(ctx, notice)
}

// SendMessage forwards a raw message.
func (s *Service) SendMessage(ctx context.Context, msg alerting.Message) (alerting.Result, error) {
	if s.notifier == nil {
		return alerting.Result{}, alerting.ErrWebhookNotConfigured
	}
	return s.notifier.Send(ctx, msg)
}

// VerifyWebhook sends the connectivity check embed.
func (s *Service) VerifyWebhook(ctx context.Context, testMessage, timestamp string) (alerting.Result, error) {
	if timestamp == "" {
		timestamp = s.now().UTC().Format("2006-01-02T15:04:05Z")
	}
	return s.SendMessage(ctx, alerting.VerificationMessage(testMessage, timestamp))
}

// notifierReady reports whether a send can reach a webhook. Notifiers that
// expose Configured are asked; others are assumed ready.
func (s *Service) notifierReady() bool {
	if s.notifier == nil {
		return false
	}
	if c, ok := s.notifier.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

func normaliseFields(fields storage.AlertFields) (storage.AlertFields, error) {
	fields.Symbol = strings.ToUpper(strings.TrimSpace(fields.Symbol))
	fields.Value = strings.TrimSpace(fields.Value)
	if fields.Symbol == "" {
		return fields, ErrInvalidSymbol
	}
	// 仅 price 类型在入口处校验数值, 其它类型保持原样存储。
	if fields.Type == storage.TypePrice {
		if _, err := decimal.NewFromString(fields.Value); err != nil {
			return fields, ErrInvalidThreshold
		}
	}
	return fields, nil
}
