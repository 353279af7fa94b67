// Package model holds the market data shapes shared by the exchange client,
// the simulator and the gateway.
package model

// Candle is one OHLCV bucket. Time is the bucket open time in unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// SymbolInfo describes a tradeable pair.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// ExchangeInfo is the filtered exchange metadata returned to callers.
type ExchangeInfo struct {
	Symbols    []SymbolInfo `json:"symbols"`
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
}
