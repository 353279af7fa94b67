// Package exchange talks to the Binance spot REST API.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tradewatch/internal/model"
)

const (
	tickerPath       = "/api/v3/ticker/price"
	klinesPath       = "/api/v3/klines"
	exchangeInfoPath = "/api/v3/exchangeInfo"

	// MaxKlinesPerRequest is the page size limit enforced by the exchange.
	MaxKlinesPerRequest = 1000
)

// Options parameterise the REST client.
type Options struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
}

// Client issues rate limited requests against the exchange.
type Client struct {
	opts    Options
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient constructs an exchange client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.With().Str("component", "exchange_client").Logger(),
	}
}

// Ticker returns the latest traded price for symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	payload, err := c.get(ctx, tickerPath, query)
	if err != nil {
		return 0, err
	}

	var res struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(payload, &res); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(res.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", res.Price, err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("invalid ticker price %q", res.Price)
	}
	return price, nil
}

// Klines fetches one page of candles ending at endTime (unix ms, zero for
// latest). Rows come back oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int, endTime int64) ([]model.Candle, error) {
	if limit <= 0 || limit > MaxKlinesPerRequest {
		limit = MaxKlinesPerRequest
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	query.Set("limit", strconv.Itoa(limit))
	if endTime > 0 {
		query.Set("endTime", strconv.FormatInt(endTime, 10))
	}

	payload, err := c.get(ctx, klinesPath, query)
	if err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("kline row %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// ExchangeInfo returns metadata for symbols currently trading.
func (c *Client) ExchangeInfo(ctx context.Context) (model.ExchangeInfo, error) {
	payload, err := c.get(ctx, exchangeInfoPath, nil)
	if err != nil {
		return model.ExchangeInfo{}, err
	}

	var res struct {
		Timezone   string `json:"timezone"`
		ServerTime int64  `json:"serverTime"`
		Symbols    []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(payload, &res); err != nil {
		return model.ExchangeInfo{}, fmt.Errorf("decode exchange info: %w", err)
	}

	info := model.ExchangeInfo{
		Timezone:   res.Timezone,
		ServerTime: res.ServerTime,
		Symbols:    make([]model.SymbolInfo, 0, len(res.Symbols)),
	}
	for _, s := range res.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		info.Symbols = append(info.Symbols, model.SymbolInfo{
			Symbol:     s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		})
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: path, Err: err}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "tradewatch/1.0")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, payload)
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("exchange request rejected")
		return nil, apiErr
	}
	return payload, nil
}

func parseKline(row []json.RawMessage) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, errors.New("expected at least 6 columns")
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return model.Candle{}, fmt.Errorf("open time: %w", err)
	}

	fields := make([]float64, 5)
	for i := range fields {
		var raw string
		if err := json.Unmarshal(row[i+1], &raw); err != nil {
			return model.Candle{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		fields[i] = v
	}

	return model.Candle{
		Time:   openTime / 1000,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}
