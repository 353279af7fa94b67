// Package api exposes market data, alert management and Discord helpers over
// HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradewatch/internal/alerting"
	"tradewatch/internal/market"
	"tradewatch/internal/model"
	"tradewatch/internal/service"
	"tradewatch/internal/storage"
)

const webhookMissingMessage = "Discord webhook URL not configured. Please set the DISCORD_WEBHOOK_URL environment variable."

// MarketData is the gateway surface the handlers need.
type MarketData interface {
	CurrentPrice(ctx context.Context, symbol string) market.Quote
	Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, bool)
	ExchangeInfo(ctx context.Context) (model.ExchangeInfo, bool)
	Degraded() bool
}

// AlertService is the alert engine surface the handlers need.
type AlertService interface {
	CreateAlert(fields storage.AlertFields) (storage.Alert, error)
	ListAlerts() []storage.Alert
	UpdateAlert(id string, fields storage.AlertFields) (storage.Alert, error)
	DeleteAlert(id string) error
	ForceTrigger(ctx context.Context, id string) (storage.Alert, alerting.Result, error)
	SendTestAlert(ctx context.Context, notice alerting.TestNotice) (alerting.Result, error)
	SendAlertNotice(ctx context.Context, notice alerting.AlertNotice) (alerting.Result, error)
	SendMessage(ctx context.Context, msg alerting.Message) (alerting.Result, error)
	VerifyWebhook(ctx context.Context, testMessage, timestamp string) (alerting.Result, error)
}

// WebhookInfo reports the webhook configuration state.
type WebhookInfo interface {
	Configured() bool
	MaskedURL() string
}

// PriceStreamer serves a per-symbol price feed over an upgraded connection.
type PriceStreamer interface {
	Serve(symbol string, ws *websocket.Conn, writeTimeout time.Duration)
}

// Handler groups the HTTP handlers.
type Handler struct {
	market   MarketData
	alerts   AlertService
	webhook  WebhookInfo
	streamer PriceStreamer
	logger   zerolog.Logger

	upgrader       websocket.Upgrader
	wsWriteTimeout time.Duration
}

// HandlerOptions wire the handler dependencies.
type HandlerOptions struct {
	Market         MarketData
	Alerts         AlertService
	Webhook        WebhookInfo
	Streamer       PriceStreamer
	WSWriteTimeout time.Duration
}

// NewHandler constructs the handler set.
func NewHandler(opts HandlerOptions, logger zerolog.Logger) *Handler {
	return &Handler{
		market:   opts.Market,
		alerts:   opts.Alerts,
		webhook:  opts.Webhook,
		streamer: opts.Streamer,
		logger:   logger.With().Str("component", "api").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		wsWriteTimeout: opts.WSWriteTimeout,
	}
}

// GetPrice 返回单个交易对的当前价格。
func (h *Handler) GetPrice(c *gin.Context) {
	symbol := normaliseSymbol(c.Param("symbol"))
	c.JSON(http.StatusOK, h.market.CurrentPrice(c.Request.Context(), symbol))
}

// StreamPrices upgrades to a WebSocket pushing the symbol price every tick.
func (h *Handler) StreamPrices(c *gin.Context) {
	symbol := normaliseSymbol(c.Param("symbol"))
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("symbol", symbol).Msg("websocket upgrade failed")
		return
	}
	h.streamer.Serve(symbol, ws, h.wsWriteTimeout)
}

// GetCandles returns candle history oldest first.
func (h *Handler) GetCandles(c *gin.Context) {
	symbol := normaliseSymbol(c.Query("symbol"))
	if symbol == "" {
		fail(c, http.StatusBadRequest, "symbol is required")
		return
	}
	timeframe := c.DefaultQuery("timeframe", "1h")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	candles, fallback := h.market.Candles(c.Request.Context(), symbol, timeframe, limit)
	if fallback {
		c.Header("X-Data-Source", "simulated")
	}
	c.JSON(http.StatusOK, candles)
}

// GetExchangeInfo returns the tradeable symbol catalog.
func (h *Handler) GetExchangeInfo(c *gin.Context) {
	info, fallback := h.market.ExchangeInfo(c.Request.Context())
	if fallback {
		c.Header("X-Data-Source", "fallback")
	}
	c.JSON(http.StatusOK, info)
}

// ListAlerts returns all alerts.
func (h *Handler) ListAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.alerts.ListAlerts())
}

// CreateAlert stores a new alert.
func (h *Handler) CreateAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := h.alerts.CreateAlert(req.fields())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// UpdateAlert replaces an alert's editable fields.
func (h *Handler) UpdateAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := h.alerts.UpdateAlert(c.Param("id"), req.fields())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// DeleteAlert removes an alert.
func (h *Handler) DeleteAlert(c *gin.Context) {
	if err := h.alerts.DeleteAlert(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert deleted successfully"})
}

// TriggerAlert forces an alert to fire and notify.
func (h *Handler) TriggerAlert(c *gin.Context) {
	alert, result, err := h.alerts.ForceTrigger(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Alert triggered", "alert": alert, "data": result})
}

// TestAlert sends a test or real-style alert message.
func (h *Handler) TestAlert(c *gin.Context) {
	var req testAlertRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.alerts.SendTestAlert(c.Request.Context(), req.notice())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Alert sent to Discord successfully", "data": result})
}

// VerifyDiscord sends the webhook verification message.
func (h *Handler) VerifyDiscord(c *gin.Context) {
	var req verifyRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.alerts.VerifyWebhook(c.Request.Context(), req.TestMessage, req.Timestamp); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Discord webhook verified successfully",
		"webhook": h.webhook.MaskedURL(),
	})
}

// SendDiscord forwards a raw message.
func (h *Handler) SendDiscord(c *gin.Context) {
	var msg alerting.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(msg.Content) == "" && len(msg.Embeds) == 0 {
		fail(c, http.StatusBadRequest, "content or embeds required")
		return
	}
	result, err := h.alerts.SendMessage(c.Request.Context(), msg)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Message sent to Discord successfully", "data": result})
}

// SendDiscordAlert forwards a structured alert embed.
func (h *Handler) SendDiscordAlert(c *gin.Context) {
	var req discordAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.alerts.SendAlertNotice(c.Request.Context(), req.notice())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Alert sent to Discord successfully", "data": result})
}

// DebugEnv reports the webhook configuration with its token masked.
func (h *Handler) DebugEnv(c *gin.Context) {
	webhook := "Not found"
	if h.webhook.Configured() {
		webhook = h.webhook.MaskedURL()
	}
	c.JSON(http.StatusOK, gin.H{
		"DISCORD_WEBHOOK_URL": webhook,
		"env_vars_loaded":     h.webhook.Configured(),
		"dotenv_loaded":       true,
		"degraded":            h.market.Degraded(),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		delivery  *alerting.DeliveryError
		transport *alerting.TransportError
	)
	switch {
	case errors.Is(err, storage.ErrAlertNotFound):
		fail(c, http.StatusNotFound, "Alert not found")
	case errors.Is(err, alerting.ErrWebhookNotConfigured):
		fail(c, http.StatusBadRequest, webhookMissingMessage)
	case errors.Is(err, service.ErrInvalidThreshold), errors.Is(err, service.ErrInvalidSymbol):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &delivery), errors.As(err, &transport):
		h.logger.Warn().Err(err).Str("path", c.FullPath()).Msg("discord delivery failed")
		fail(c, http.StatusBadGateway, "Failed to send message to Discord: "+err.Error())
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
