// Package simulator generates plausible prices and candles when the exchange
// cannot be reached.
package simulator

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Options parameterise the simulator.
type Options struct {
	// Seed fixes the random source. Zero picks a time based seed.
	Seed uint64
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

type trend struct {
	direction          float64
	strength           float64
	durationBudget     int
	updatesSinceChange int
}

type priceState struct {
	lastPrice      float64
	lastUpdateTime time.Time
	trend          trend
}

// Simulator keeps per-symbol price state and a shared random source.
type Simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	now    func() time.Time
	states map[string]*priceState
}

// New constructs a Simulator.
func New(opts Options) *Simulator {
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:    now,
		states: make(map[string]*priceState),
	}
}

// NextPrice advances the symbol's simulated price. The first call for a
// symbol seeds it with baseline and returns baseline unchanged.
func (s *Simulator) NextPrice(symbol string, baseline float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st, ok := s.states[symbol]
	if !ok {
		s.states[symbol] = &priceState{
			lastPrice:      baseline,
			lastUpdateTime: now,
			trend:          s.newTrend(),
		}
		return baseline
	}

	s.mutateTrend(&st.trend)

	trendFactor := st.trend.direction * st.trend.strength * 0.001
	noiseFactor := s.uniform(-0.002, 0.002)

	elapsed := now.Sub(st.lastUpdateTime).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	timeFactor := math.Min(elapsed/10, 0.01) * s.uniform(0.5, 1.5)

	cyclePos := math.Mod(float64(now.Unix()), 3600) / 3600
	cyclical := 0.0005 * math.Sin(2*math.Pi*cyclePos)

	delta := (trendFactor + noiseFactor + cyclical) * valueScale(st.lastPrice) * timeFactor
	next := st.lastPrice * (1 + delta)

	st.lastPrice = next
	st.lastUpdateTime = now
	return next
}

// Observe records a real price so the next simulated tick continues from it.
func (s *Simulator) Observe(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[symbol]
	if !ok {
		st = &priceState{trend: s.newTrend()}
		s.states[symbol] = st
	}
	st.lastPrice = price
	st.lastUpdateTime = s.now()
}

// LastPrice returns the most recent price known to the simulator.
func (s *Simulator) LastPrice(symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	if !ok {
		return 0, false
	}
	return st.lastPrice, true
}

func (s *Simulator) newTrend() trend {
	return trend{
		direction:      s.sign(),
		strength:       s.uniform(0.3, 1.0),
		durationBudget: 10 + s.rng.IntN(21),
	}
}

func (s *Simulator) mutateTrend(t *trend) {
	t.updatesSinceChange++
	if t.updatesSinceChange < t.durationBudget {
		return
	}
	if s.rng.Float64() < 0.3 {
		t.direction = -t.direction
	}
	t.strength = s.uniform(0.3, 1.0)
	t.durationBudget = 10 + s.rng.IntN(21)
	t.updatesSinceChange = 0
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Simulator) sign() float64 {
	if s.rng.IntN(2) == 0 {
		return -1
	}
	return 1
}

func valueScale(price float64) float64 {
	switch {
	case price > 1000:
		return 1.2
	case price > 100:
		return 1.0
	case price < 1:
		return 0.8
	default:
		return 1.0
	}
}
