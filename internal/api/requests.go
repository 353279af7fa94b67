package api

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"tradewatch/internal/alerting"
	"tradewatch/internal/storage"
)

type alertRequest struct {
	Symbol        string `json:"symbol" binding:"required"`
	Type          string `json:"type" binding:"required,oneof=price volume ma_cross"`
	Condition     string `json:"condition" binding:"required,oneof=above below crosses"`
	Value         string `json:"value" binding:"required"`
	NotifyDiscord *bool  `json:"notifyDiscord"`
}

func (r alertRequest) fields() storage.AlertFields {
	notify := true
	if r.NotifyDiscord != nil {
		notify = *r.NotifyDiscord
	}
	return storage.AlertFields{
		Symbol:        normaliseSymbol(r.Symbol),
		Type:          r.Type,
		Condition:     r.Condition,
		Value:         r.Value,
		NotifyDiscord: notify,
	}
}

type testAlertRequest struct {
	Symbol      string   `json:"symbol"`
	Price       *float64 `json:"price"`
	IsRealAlert bool     `json:"isRealAlert"`
	ForceSend   bool     `json:"forceSend"`
	Condition   string   `json:"condition"`
	TargetPrice *float64 `json:"targetPrice"`
	Message     string   `json:"message"`
}

func (r testAlertRequest) notice() alerting.TestNotice {
	symbol := normaliseSymbol(r.Symbol)
	if symbol == "" {
		symbol = "BTCUSDT"
	}
	price := 50000.0
	if r.Price != nil {
		price = *r.Price
	}
	condition := r.Condition
	if condition == "" {
		condition = "test"
	}
	return alerting.TestNotice{
		Symbol:      symbol,
		Price:       price,
		Real:        r.IsRealAlert || r.ForceSend,
		Condition:   condition,
		TargetPrice: r.TargetPrice,
		Content:     r.Message,
	}
}

type verifyRequest struct {
	TestMessage string `json:"testMessage"`
	Timestamp   string `json:"timestamp"`
}

type discordAlertRequest struct {
	AlertID      string  `json:"alertId"`
	Symbol       string  `json:"symbol" binding:"required"`
	Condition    string  `json:"condition" binding:"required"`
	TargetPrice  float64 `json:"targetPrice"`
	CurrentPrice float64 `json:"currentPrice"`
	Message      string  `json:"message"`
}

func (r discordAlertRequest) notice() alerting.AlertNotice {
	symbol := normaliseSymbol(r.Symbol)
	content := r.Message
	if content == "" {
		content = "Price alert triggered for " + symbol + "!"
	}
	return alerting.AlertNotice{
		Symbol:       symbol,
		AlertType:    storage.TypePrice,
		Condition:    alerting.ConditionPhrase(r.Condition),
		Threshold:    alerting.FormatPrice(r.TargetPrice),
		CurrentPrice: r.CurrentPrice,
		Content:      content,
	}
}

// bindOptionalJSON binds a JSON body, treating an empty body as all defaults.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
