package market

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/exchange"
	"tradewatch/internal/model"
	"tradewatch/internal/simulator"
)

type fakeExchange struct {
	mu sync.Mutex

	tickerPrice float64
	tickerErr   error
	tickerCalls int

	pages      [][]model.Candle
	klinesErr  error
	klineCalls []int64

	info    model.ExchangeInfo
	infoErr error
}

func (f *fakeExchange) Ticker(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickerCalls++
	return f.tickerPrice, f.tickerErr
}

func (f *fakeExchange) Klines(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.klineCalls = append(f.klineCalls, endTime)
	if f.klinesErr != nil {
		return nil, f.klinesErr
	}
	idx := len(f.klineCalls) - 1
	if idx >= len(f.pages) {
		return nil, nil
	}
	return f.pages[idx], nil
}

func (f *fakeExchange) ExchangeInfo(ctx context.Context) (model.ExchangeInfo, error) {
	return f.info, f.infoErr
}

func restrictedErr() error {
	return &exchange.APIError{StatusCode: http.StatusUnavailableForLegalReasons, Message: "restricted"}
}

func newTestGateway(remote Exchange, opts Options) *Gateway {
	sim := simulator.New(simulator.Options{Seed: 3})
	return NewGateway(remote, sim, opts, zerolog.Nop())
}

func TestCurrentPriceReal(t *testing.T) {
	remote := &fakeExchange{tickerPrice: 67000}
	gw := newTestGateway(remote, Options{})

	q := gw.CurrentPrice(context.Background(), "BTCUSDT")
	if q.Price != 67000 || q.Cached || q.Fallback {
		t.Fatalf("期望真实价格, 实际 %+v", q)
	}
	if gw.baseline("BTCUSDT") != 67000 {
		t.Fatal("baseline should follow the real price")
	}
}

func TestCurrentPriceRestrictedIsSticky(t *testing.T) {
	remote := &fakeExchange{tickerErr: restrictedErr()}
	gw := newTestGateway(remote, Options{})

	first := gw.CurrentPrice(context.Background(), "BTCUSDT")
	if !first.Fallback || first.Price != DefaultBasePrices["BTCUSDT"] {
		t.Fatalf("首次降级应返回模拟种子价格, 实际 %+v", first)
	}
	if !gw.Degraded() {
		t.Fatal("451 should set degraded")
	}

	second := gw.CurrentPrice(context.Background(), "BTCUSDT")
	if !second.Fallback {
		t.Fatalf("degraded reads must be simulated, got %+v", second)
	}
	if remote.tickerCalls != 1 {
		t.Fatalf("degraded gateway must not call the exchange again, calls=%d", remote.tickerCalls)
	}

	gw.Candles(context.Background(), "BTCUSDT", "1h", 10)
	gw.ExchangeInfo(context.Background())
	if len(remote.klineCalls) != 0 {
		t.Fatal("degraded gateway must not fetch klines")
	}
}

func TestCurrentPriceUsesCacheOnGenericFailure(t *testing.T) {
	remote := &fakeExchange{tickerPrice: 3600}
	gw := newTestGateway(remote, Options{})
	gw.CurrentPrice(context.Background(), "ETHUSDT")

	remote.tickerErr = &exchange.APIError{StatusCode: http.StatusInternalServerError}
	q := gw.CurrentPrice(context.Background(), "ETHUSDT")
	if !q.Cached || q.Price != 3600 {
		t.Fatalf("期望缓存价格 3600, 实际 %+v", q)
	}
	if gw.Degraded() {
		t.Fatal("500 must not set degraded")
	}
}

func TestCurrentPriceSimulatesWithoutCache(t *testing.T) {
	remote := &fakeExchange{tickerErr: &exchange.NetworkError{Op: "ticker", Err: errors.New("timeout")}}
	gw := newTestGateway(remote, Options{})

	q := gw.CurrentPrice(context.Background(), "NEWUSDT")
	if !q.Fallback || q.Price != defaultBasePrice {
		t.Fatalf("unknown symbol should seed from default base price, got %+v", q)
	}
}

func makePage(startSec int64, n int) []model.Candle {
	page := make([]model.Candle, n)
	for i := range page {
		page[i] = model.Candle{Time: startSec + int64(i)*60, Open: 1, High: 1, Low: 1, Close: 1}
	}
	return page
}

func TestCandlesPaginatesBackward(t *testing.T) {
	// newest page first, as the exchange returns them when walking backward
	remote := &fakeExchange{pages: [][]model.Candle{
		makePage(1_000_000+6*60, 3),
		makePage(1_000_000+3*60, 3),
		makePage(1_000_000, 2),
	}}
	gw := newTestGateway(remote, Options{PageSize: 3})

	candles, fallback := gw.Candles(context.Background(), "BTCUSDT", "1m", 20)
	if fallback {
		t.Fatal("real candles should not be flagged as fallback")
	}
	if len(candles) != 8 {
		t.Fatalf("期望 8 根, 实际 %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Time <= candles[i-1].Time {
			t.Fatalf("candles not ascending at %d", i)
		}
	}
	if len(remote.klineCalls) != 3 {
		t.Fatalf("short page should stop pagination, calls=%d", len(remote.klineCalls))
	}
	if remote.klineCalls[0] != 0 {
		t.Fatal("first page should not carry endTime")
	}
	if want := (1_000_000+6*60)*1000 - 1; remote.klineCalls[1] != int64(want) {
		t.Fatalf("cursor should be oldest open time - 1ms, got %d", remote.klineCalls[1])
	}
}

func TestCandlesTruncatesToLimit(t *testing.T) {
	remote := &fakeExchange{pages: [][]model.Candle{
		makePage(1_000_000+3*60, 3),
		makePage(1_000_000, 3),
	}}
	gw := newTestGateway(remote, Options{PageSize: 3})

	candles, _ := gw.Candles(context.Background(), "BTCUSDT", "1m", 5)
	if len(candles) != 5 {
		t.Fatalf("期望截断到 5 根, 实际 %d", len(candles))
	}
	if candles[len(candles)-1].Time != 1_000_000+5*60 {
		t.Fatal("truncation must drop the oldest rows")
	}
}

func TestCandlesCapsPages(t *testing.T) {
	pages := make([][]model.Candle, 10)
	for i := range pages {
		pages[i] = makePage(int64(10_000_000-i*120), 2)
	}
	remote := &fakeExchange{pages: pages}
	gw := newTestGateway(remote, Options{PageSize: 2, MaxPages: 5})

	candles, _ := gw.Candles(context.Background(), "BTCUSDT", "1m", 100)
	if len(remote.klineCalls) != 5 || len(candles) != 10 {
		t.Fatalf("expected 5 pages/10 rows, got %d/%d", len(remote.klineCalls), len(candles))
	}
}

func TestCandlesFallbackOnError(t *testing.T) {
	remote := &fakeExchange{klinesErr: errors.New("down")}
	gw := newTestGateway(remote, Options{})

	candles, fallback := gw.Candles(context.Background(), "ETHUSDT", "5m", 50)
	if !fallback || len(candles) != 50 {
		t.Fatalf("期望 50 根模拟K线, 实际 %d fallback=%v", len(candles), fallback)
	}
	if candles[1].Time-candles[0].Time != int64((5 * time.Minute).Seconds()) {
		t.Fatal("simulated candles should follow the interval")
	}
}

func TestExchangeInfoFallbackCatalog(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	remote := &fakeExchange{infoErr: errors.New("down")}
	gw := newTestGateway(remote, Options{Now: func() time.Time { return now }})

	info, fallback := gw.ExchangeInfo(context.Background())
	if !fallback {
		t.Fatal("expected fallback catalog")
	}
	if len(info.Symbols) != 10 || info.Timezone != "UTC" || info.ServerTime != now.UnixMilli() {
		t.Fatalf("unexpected catalog %+v", info)
	}
}

func TestExchangeInfoRemote(t *testing.T) {
	remote := &fakeExchange{info: model.ExchangeInfo{Timezone: "UTC", Symbols: []model.SymbolInfo{{Symbol: "BTCUSDT"}}}}
	gw := newTestGateway(remote, Options{})

	info, fallback := gw.ExchangeInfo(context.Background())
	if fallback || len(info.Symbols) != 1 {
		t.Fatalf("expected remote info, got %+v", info)
	}
}
