package alerting

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultSuppressWindow = 5 * time.Second
	defaultRetention      = 30 * time.Second
)

// ErrWebhookNotConfigured 表示未配置 Discord webhook。
var ErrWebhookNotConfigured = errors.New("discord webhook url not configured")

// DeliveryError is a non-success answer from the webhook.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("discord webhook failed with status %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps network failures talking to the webhook.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error when sending to discord: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Result describes the outcome of a send.
type Result struct {
	Delivered  bool            `json:"delivered"`
	Suppressed bool            `json:"suppressed,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Send(ctx context.Context, msg Message) (Result, error)
	SendAlert(ctx context.Context, notice AlertNotice) (Result, error)
}

// DiscordOptions parameterise the webhook sink.
type DiscordOptions struct {
	WebhookURL     string
	Timeout        time.Duration
	SuppressWindow time.Duration
	Retention      time.Duration
	Now            func() time.Time
}

// DiscordNotifier 通过 Discord webhook 推送消息。
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
	now        func() time.Time

	suppress  time.Duration
	retention time.Duration

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewDiscordNotifier 构造 Discord 告警器。
func NewDiscordNotifier(opts DiscordOptions, logger zerolog.Logger) *DiscordNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	suppress := opts.SuppressWindow
	if suppress <= 0 {
		suppress = defaultSuppressWindow
	}
	retention := opts.Retention
	if retention < suppress {
		retention = defaultRetention
		if retention < suppress {
			retention = suppress
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &DiscordNotifier{
		webhookURL: strings.TrimSpace(opts.WebhookURL),
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
		now:        now,
		suppress:   suppress,
		retention:  retention,
		sent:       make(map[string]time.Time),
	}
}

// Configured reports whether a webhook URL is set.
func (n *DiscordNotifier) Configured() bool {
	return n.webhookURL != ""
}

// MaskedURL returns the webhook URL with its token shortened.
func (n *DiscordNotifier) MaskedURL() string {
	if n.webhookURL == "" {
		return ""
	}
	parts := strings.Split(n.webhookURL, "/")
	last := parts[len(parts)-1]
	if len(parts) > 5 && len(last) > 8 {
		parts[len(parts)-1] = last[:5] + "..."
	}
	return strings.Join(parts, "/")
}

// Send 调用 webhook 推送消息, 5 秒内重复的消息会被跳过。
func (n *DiscordNotifier) Send(ctx context.Context, msg Message) (Result, error) {
	if !n.Configured() {
		return Result{}, ErrWebhookNotConfigured
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return Result{}, fmt.Errorf("marshal discord payload: %w", err)
	}

	signature := signatureOf(body)
	if !n.reserve(signature) {
		n.logger.Debug().Str("signature", signature[:12]).Msg("duplicate message suppressed")
		return Result{Suppressed: true}, nil
	}

	result, err := n.post(ctx, body)
	if err != nil {
		n.release(signature)
		return Result{}, err
	}

	n.logger.Info().Str("content", truncate(msg.Content, 50)).Msg("discord message sent")
	return result, nil
}

// SendAlert 推送格式化的告警 embed。
func (n *DiscordNotifier) SendAlert(ctx context.Context, notice AlertNotice) (Result, error) {
	return n.Send(ctx, notice.message(n.now()))
}

func (n *DiscordNotifier) post(ctx context.Context, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &TransportError{Err: err}
	}

	switch resp.StatusCode {
	case http.StatusNoContent:
		return Result{Delivered: true}, nil
	case http.StatusOK:
		trimmed := bytes.TrimSpace(respBody)
		if len(trimmed) == 0 || !json.Valid(trimmed) {
			return Result{Delivered: true}, nil
		}
		return Result{Delivered: true, Response: json.RawMessage(trimmed)}, nil
	default:
		n.logger.Error().Int("status", resp.StatusCode).Str("body", truncate(string(respBody), 200)).Msg("discord webhook failed")
		return Result{}, &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
}

// reserve records signature unless it was sent within the suppression
// window. Stale signatures are purged on every call.
func (n *DiscordNotifier) reserve(signature string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	for sig, at := range n.sent {
		if now.Sub(at) > n.retention {
			delete(n.sent, sig)
		}
	}

	if at, ok := n.sent[signature]; ok && now.Sub(at) < n.suppress {
		return false
	}
	n.sent[signature] = now
	return true
}

func (n *DiscordNotifier) release(signature string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sent, signature)
}

func (n *DiscordNotifier) tracked() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func signatureOf(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ Notifier = (*DiscordNotifier)(nil)
