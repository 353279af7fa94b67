package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time { return c.t }

func newTestNotifier(url string, clock *stepClock) *DiscordNotifier {
	return NewDiscordNotifier(DiscordOptions{WebhookURL: url, Timeout: time.Second, Now: clock.Now}, testLogger())
}

func TestDiscordNotifierNoContent(t *testing.T) {
	var received Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("Content-Type 不正确: %s", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	n := newTestNotifier(srv.URL, clock)
	res, err := n.SendAlert(context.Background(), AlertNotice{
		Symbol:       "BTCUSDT",
		AlertType:    "price",
		Condition:    "risen above",
		Threshold:    "70000",
		CurrentPrice: 71000.5,
	})
	if err != nil {
		t.Fatalf("SendAlert 应成功: %v", err)
	}
	if !res.Delivered || res.Suppressed {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(received.Content, "BTCUSDT") || len(received.Embeds) != 1 {
		t.Fatalf("payload 不正确: %#v", received)
	}
	fields := received.Embeds[0].Fields
	if len(fields) != 4 || fields[0].Value != "Price" || fields[1].Value != "Risen above" || fields[3].Value != "71000.5" {
		t.Fatalf("embed fields 不正确: %#v", fields)
	}
	if received.Embeds[0].Timestamp != "2023-11-14T22:13:20Z" {
		t.Fatalf("timestamp 不正确: %s", received.Embeds[0].Timestamp)
	}
}

func TestDiscordNotifierJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"123"}`))
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL, &stepClock{t: time.Now()})
	res, err := n.Send(context.Background(), Message{Content: "hello"})
	if err != nil {
		t.Fatalf("200 应成功: %v", err)
	}
	if !res.Delivered || string(res.Response) != `{"id":"123"}` {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDiscordNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Cannot send an empty message"}`))
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL, &stepClock{t: time.Now()})
	_, err := n.Send(context.Background(), Message{Content: "x"})
	var delivery *DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("400 应返回 DeliveryError, 实际 %v", err)
	}
	if delivery.StatusCode != http.StatusBadRequest || !strings.Contains(delivery.Body, "empty message") {
		t.Fatalf("DeliveryError 内容不正确: %+v", delivery)
	}
	if n.tracked() != 0 {
		t.Fatal("failed delivery should release its signature")
	}
}

func TestDiscordNotifierTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	n := newTestNotifier(url, &stepClock{t: time.Now()})
	_, err := n.Send(context.Background(), Message{Content: "x"})
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestDiscordNotifierNotConfigured(t *testing.T) {
	n := NewDiscordNotifier(DiscordOptions{}, testLogger())
	if n.Configured() {
		t.Fatal("empty url should not be configured")
	}
	if _, err := n.Send(context.Background(), Message{Content: "x"}); !errors.Is(err, ErrWebhookNotConfigured) {
		t.Fatalf("expected ErrWebhookNotConfigured, got %v", err)
	}
}

func TestDiscordNotifierSuppressesDuplicates(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	n := newTestNotifier(srv.URL, clock)
	msg := Message{Content: "same", Embeds: []Embed{{Title: "t"}}}

	if _, err := n.Send(context.Background(), msg); err != nil {
		t.Fatalf("first send: %v", err)
	}
	clock.t = clock.t.Add(2 * time.Second)
	res, err := n.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if !res.Suppressed || res.Delivered {
		t.Fatalf("5 秒内重复消息应被抑制: %+v", res)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", hits.Load())
	}

	clock.t = clock.t.Add(4 * time.Second)
	if res, _ := n.Send(context.Background(), msg); !res.Delivered {
		t.Fatal("after the window the message should be delivered again")
	}
	if hits.Load() != 2 {
		t.Fatalf("expected two deliveries, got %d", hits.Load())
	}
}

func TestDiscordNotifierPurgesOldSignatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	n := newTestNotifier(srv.URL, clock)
	for _, content := range []string{"a", "b", "c"} {
		if _, err := n.Send(context.Background(), Message{Content: content}); err != nil {
			t.Fatal(err)
		}
	}
	if n.tracked() != 3 {
		t.Fatalf("expected 3 tracked signatures, got %d", n.tracked())
	}

	clock.t = clock.t.Add(31 * time.Second)
	if _, err := n.Send(context.Background(), Message{Content: "d"}); err != nil {
		t.Fatal(err)
	}
	if n.tracked() != 1 {
		t.Fatalf("signatures older than 30s should be purged, got %d", n.tracked())
	}
}

func TestMaskedURL(t *testing.T) {
	n := NewDiscordNotifier(DiscordOptions{WebhookURL: "https://discord.com/api/webhooks/123/abcdefghijkl"}, testLogger())
	if got := n.MaskedURL(); got != "https://discord.com/api/webhooks/123/abcde..." {
		t.Fatalf("unexpected mask %s", got)
	}
}

func TestTestNoticeMessage(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	target := 70000.0

	test := TestNotice{Symbol: "BTCUSDT", Price: 50000}.Message(now)
	if !strings.HasPrefix(test.Content, "🧪 Test Alert: BTCUSDT") || test.Embeds[0].Color != colorBlue {
		t.Fatalf("unexpected test message %#v", test)
	}

	forced := TestNotice{Symbol: "BTCUSDT", Price: 71000, Real: true, Condition: "above", TargetPrice: &target}.Message(now)
	if forced.Content != "🚨 @everyone PRICE ALERT: BTCUSDT has risen above 70000!" {
		t.Fatalf("unexpected real content %q", forced.Content)
	}
	if len(forced.Embeds[0].Fields) != 5 {
		t.Fatalf("real alert should carry 5 fields, got %d", len(forced.Embeds[0].Fields))
	}
}

func TestConditionPhrase(t *testing.T) {
	cases := map[string]string{"above": "risen above", "below": "fallen below", "crosses": "crossed", "": "reached", "test": "test"}
	for in, want := range cases {
		if got := ConditionPhrase(in); got != want {
			t.Fatalf("ConditionPhrase(%q)=%q, want %q", in, got, want)
		}
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFormatPriceNonFinite(t *testing.T) {
	if got := FormatPrice(math.NaN()); got != "NaN" {
		t.Fatalf("FormatPrice(NaN)=%q", got)
	}
	if got := FormatPrice(math.Inf(1)); got != "+Inf" {
		t.Fatalf("FormatPrice(+Inf)=%q", got)
	}
	if got := FormatPrice(71000.5); got != "71000.5" {
		t.Fatalf("FormatPrice(71000.5)=%q", got)
	}
}
