package simulator

import (
	"math"
	"time"

	"tradewatch/internal/model"
)

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// IntervalDuration maps an exchange interval string to its width. Unknown
// intervals fall back to one hour.
func IntervalDuration(interval string) time.Duration {
	if d, ok := intervalDurations[interval]; ok {
		return d
	}
	return time.Hour
}

// volatility per candle by market tier.
func volatility(symbol string) float64 {
	switch symbol {
	case "BTCUSDT", "ETHUSDT":
		return 0.02
	case "SOLUSDT", "BNBUSDT", "AVAXUSDT":
		return 0.03
	default:
		return 0.04
	}
}

// SyntheticCandles builds count candles of the given width ending at now,
// ordered oldest first.
func (s *Simulator) SyntheticCandles(symbol string, interval time.Duration, count int, baseline float64) []model.Candle {
	if count <= 0 {
		return []model.Candle{}
	}
	step := int64(interval / time.Second)
	if step <= 0 {
		step = int64(time.Hour / time.Second)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vol := volatility(symbol)
	marketTrend := s.sign()
	trendStrength := s.uniform(0.1, 0.3)

	current := s.now().Unix() - step*int64(count)
	price := baseline * s.uniform(0.8, 1.2)

	candles := make([]model.Candle, 0, count)
	for i := 0; i < count; i++ {
		trendFactor := marketTrend * trendStrength * s.uniform(0.5, 1.5) * 0.01
		randomFactor := s.uniform(-vol, vol)
		cycleFactor := 0.005 * math.Sin(2*math.Pi*float64(i%20)/20)

		change := price * (trendFactor + randomFactor + cycleFactor)
		open := price
		closePrice := price + change

		spread := math.Abs(change) * s.uniform(1.2, 2.0)
		var high, low float64
		if open > closePrice {
			high = open + spread*s.uniform(0.1, 0.4)
			low = closePrice - spread*s.uniform(0.6, 0.9)
		} else {
			high = closePrice + spread*s.uniform(0.6, 0.9)
			low = open - spread*s.uniform(0.1, 0.4)
		}

		volume := baseline * s.uniform(10, 100) * (1 + math.Abs(change/price)*s.uniform(5, 15))

		candles = append(candles, model.Candle{
			Time:   current,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})

		current += step
		price = closePrice

		if s.rng.Float64() < 0.05 {
			marketTrend = -marketTrend
		}
		if s.rng.Float64() < 0.1 {
			trendStrength = s.uniform(0.1, 0.3)
		}
	}
	return candles
}
