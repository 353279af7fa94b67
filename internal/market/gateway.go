// Package market serves prices, candles and exchange metadata, falling back
// to simulation when the exchange is unavailable.
package market

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/exchange"
	"tradewatch/internal/model"
	"tradewatch/internal/simulator"
)

const (
	defaultBasePrice   = 100.0
	defaultCandleLimit = 5000
	defaultMaxPages    = 5
	simulatedLogEvery  = 10
)

// DefaultBasePrices seed the simulator for the common pairs.
var DefaultBasePrices = map[string]float64{
	"BTCUSDT":  65000.0,
	"ETHUSDT":  3500.0,
	"SOLUSDT":  140.0,
	"BNBUSDT":  580.0,
	"XRPUSDT":  0.55,
	"DOGEUSDT": 0.12,
	"AVAXUSDT": 28.0,
	"ADAUSDT":  0.45,
	"LTCUSDT":  85.0,
}

// Exchange is the remote data source the gateway wraps.
type Exchange interface {
	Ticker(ctx context.Context, symbol string) (float64, error)
	Klines(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]model.Candle, error)
	ExchangeInfo(ctx context.Context) (model.ExchangeInfo, error)
}

// Quote is a price answer. Cached marks a stale real price, Fallback a
// simulated one.
type Quote struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Cached   bool    `json:"cached,omitempty"`
	Fallback bool    `json:"fallback,omitempty"`
}

// Options tune the gateway.
type Options struct {
	BasePrices         map[string]float64
	DefaultCandleLimit int
	MaxPages           int
	PageSize           int
	Now                func() time.Time
}

// Gateway wraps the exchange with degraded-mode and cache fallbacks.
type Gateway struct {
	remote Exchange
	sim    *simulator.Simulator
	opts   Options
	now    func() time.Time
	logger zerolog.Logger

	degraded     atomic.Bool
	degradedOnce sync.Once

	mu        sync.RWMutex
	baselines map[string]float64
	lastReal  map[string]float64

	simulatedReads atomic.Int64
}

// NewGateway constructs a Gateway.
func NewGateway(remote Exchange, sim *simulator.Simulator, opts Options, logger zerolog.Logger) *Gateway {
	if opts.DefaultCandleLimit <= 0 {
		opts.DefaultCandleLimit = defaultCandleLimit
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.PageSize <= 0 || opts.PageSize > exchange.MaxKlinesPerRequest {
		opts.PageSize = exchange.MaxKlinesPerRequest
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	base := opts.BasePrices
	if len(base) == 0 {
		base = DefaultBasePrices
	}
	baselines := make(map[string]float64, len(base))
	for symbol, price := range base {
		baselines[symbol] = price
	}

	return &Gateway{
		remote:    remote,
		sim:       sim,
		opts:      opts,
		now:       now,
		logger:    logger.With().Str("component", "market_gateway").Logger(),
		baselines: baselines,
		lastReal:  make(map[string]float64),
	}
}

// Degraded reports whether the gateway gave up on the exchange.
func (g *Gateway) Degraded() bool {
	return g.degraded.Load()
}

// CurrentPrice never fails: it returns the real price, the last cached real
// price or a simulated one.
func (g *Gateway) CurrentPrice(ctx context.Context, symbol string) Quote {
	if g.degraded.Load() {
		return g.simulate(symbol)
	}

	price, err := g.remote.Ticker(ctx, symbol)
	if err == nil {
		g.mu.Lock()
		g.baselines[symbol] = price
		g.lastReal[symbol] = price
		g.mu.Unlock()
		g.sim.Observe(symbol, price)
		return Quote{Symbol: symbol, Price: price}
	}

	if g.noteFailure(err) {
		return g.simulate(symbol)
	}

	g.logger.Error().Err(err).Str("symbol", symbol).Msg("fetch price failed")
	g.mu.RLock()
	cached, ok := g.lastReal[symbol]
	g.mu.RUnlock()
	if ok {
		return Quote{Symbol: symbol, Price: cached, Cached: true}
	}
	return g.simulate(symbol)
}

// Candles returns up to limit candles oldest first. The bool reports whether
// the rows were simulated.
func (g *Gateway) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, bool) {
	if limit <= 0 {
		limit = g.opts.DefaultCandleLimit
	}
	if g.degraded.Load() {
		return g.simulateCandles(symbol, interval, limit), true
	}

	candles, err := g.fetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		g.noteFailure(err)
		g.logger.Warn().Err(err).Str("symbol", symbol).Str("interval", interval).Msg("fetch candles failed, generating simulated candles")
		return g.simulateCandles(symbol, interval, limit), true
	}
	return candles, false
}

func (g *Gateway) fetchCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	pageSize := g.opts.PageSize
	if limit < pageSize {
		pageSize = limit
	}
	pages := (limit + pageSize - 1) / pageSize
	if pages > g.opts.MaxPages {
		pages = g.opts.MaxPages
	}

	var all []model.Candle
	var endTime int64
	for i := 0; i < pages; i++ {
		batch, err := g.remote.Klines(ctx, symbol, interval, pageSize, endTime)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(batch, all...)
		if len(batch) < pageSize || len(all) >= limit {
			break
		}
		endTime = batch[0].Time*1000 - 1
	}

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	if all == nil {
		all = []model.Candle{}
	}
	return all, nil
}

// ExchangeInfo returns tradeable symbols, or a fixed catalog on failure. The
// bool reports whether the catalog was used.
func (g *Gateway) ExchangeInfo(ctx context.Context) (model.ExchangeInfo, bool) {
	if g.degraded.Load() {
		return g.fallbackCatalog(), true
	}
	info, err := g.remote.ExchangeInfo(ctx)
	if err != nil {
		g.noteFailure(err)
		g.logger.Warn().Err(err).Msg("fetch exchange info failed, using fallback catalog")
		return g.fallbackCatalog(), true
	}
	return info, false
}

// noteFailure flips the sticky degraded flag on a regional block and reports
// whether it did.
func (g *Gateway) noteFailure(err error) bool {
	if !exchange.IsRestricted(err) {
		return false
	}
	g.degraded.Store(true)
	g.degradedOnce.Do(func() {
		g.logger.Warn().Err(err).Msg("exchange access is geo-restricted, switching to simulation mode")
	})
	return true
}

func (g *Gateway) baseline(symbol string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if price, ok := g.baselines[symbol]; ok {
		return price
	}
	return defaultBasePrice
}

func (g *Gateway) simulate(symbol string) Quote {
	price := g.sim.NextPrice(symbol, g.baseline(symbol))
	if n := g.simulatedReads.Add(1); n%simulatedLogEvery == 0 {
		g.logger.Info().Str("symbol", symbol).Float64("price", price).Msg("using simulated price")
	}
	return Quote{Symbol: symbol, Price: price, Fallback: true}
}

func (g *Gateway) simulateCandles(symbol, interval string, limit int) []model.Candle {
	return g.sim.SyntheticCandles(symbol, simulator.IntervalDuration(interval), limit, g.baseline(symbol))
}

func (g *Gateway) fallbackCatalog() model.ExchangeInfo {
	symbols := make([]model.SymbolInfo, len(fallbackSymbols))
	copy(symbols, fallbackSymbols)
	return model.ExchangeInfo{
		Symbols:    symbols,
		Timezone:   "UTC",
		ServerTime: g.now().UnixMilli(),
	}
}

var fallbackSymbols = []model.SymbolInfo{
	{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT"},
	{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT"},
	{Symbol: "SOLUSDT", BaseAsset: "SOL", QuoteAsset: "USDT"},
	{Symbol: "BNBUSDT", BaseAsset: "BNB", QuoteAsset: "USDT"},
	{Symbol: "XRPUSDT", BaseAsset: "XRP", QuoteAsset: "USDT"},
	{Symbol: "DOGEUSDT", BaseAsset: "DOGE", QuoteAsset: "USDT"},
	{Symbol: "AVAXUSDT", BaseAsset: "AVAX", QuoteAsset: "USDT"},
	{Symbol: "ADAUSDT", BaseAsset: "ADA", QuoteAsset: "USDT"},
	{Symbol: "LTCUSDT", BaseAsset: "LTC", QuoteAsset: "USDT"},
	{Symbol: "DOTUSDT", BaseAsset: "DOT", QuoteAsset: "USDT"},
}

var _ Exchange = (*exchange.Client)(nil)
