// Package stream fans out periodic price snapshots to WebSocket subscribers,
// one shared poller per symbol.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/market"
	"tradewatch/internal/scheduler"
)

const (
	defaultPollInterval = time.Second
	defaultErrorBackoff = 5 * time.Second
)

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("price stream hub closed")

// Conn is a subscriber endpoint.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// PriceSource resolves the current price of a symbol.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) market.Quote
}

// Options tune the pollers.
type Options struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// Hub owns the per-symbol subscriber groups.
type Hub struct {
	prices PriceSource
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	groups map[string]*group
}

type group struct {
	members map[Conn]struct{}
	cancel  context.CancelFunc
}

// NewHub constructs a Hub. Close stops every poller.
func NewHub(prices PriceSource, opts Options, logger zerolog.Logger) *Hub {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaultErrorBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		prices: prices,
		opts:   opts,
		logger: logger.With().Str("component", "price_stream").Logger(),
		ctx:    ctx,
		cancel: cancel,
		groups: make(map[string]*group),
	}
}

// Subscribe adds conn to the symbol's group, starting its poller if needed.
func (h *Hub) Subscribe(symbol string, conn Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	g, ok := h.groups[symbol]
	if !ok {
		ctx, cancel := context.WithCancel(h.ctx)
		g = &group{members: make(map[Conn]struct{}), cancel: cancel}
		h.groups[symbol] = g
		h.startPoller(ctx, symbol)
	}
	g.members[conn] = struct{}{}
	h.logger.Debug().Str("symbol", symbol).Int("members", len(g.members)).Msg("subscriber joined")
	return nil
}

// Unsubscribe removes conn. The last member leaving stops the poller.
func (h *Hub) Unsubscribe(symbol string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(symbol, conn)
}

func (h *Hub) removeLocked(symbol string, conn Conn) {
	g, ok := h.groups[symbol]
	if !ok {
		return
	}
	if _, member := g.members[conn]; !member {
		return
	}
	delete(g.members, conn)
	if len(g.members) == 0 {
		g.cancel()
		delete(h.groups, symbol)
		h.logger.Debug().Str("symbol", symbol).Msg("last subscriber left, poller stopped")
	}
}

// Members reports the subscriber count for symbol.
func (h *Hub) Members(symbol string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[symbol]; ok {
		return len(g.members)
	}
	return 0
}

// Close stops all pollers and closes remaining subscribers. Pollers are only
// started under mu while the hub is open, so Wait never races an Add.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	groups := h.groups
	h.groups = make(map[string]*group)
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()

	for _, g := range groups {
		for conn := range g.members {
			_ = conn.Close()
		}
	}
}

func (h *Hub) startPoller(ctx context.Context, symbol string) {
	sched := scheduler.New(scheduler.Options{
		Name:         "stream:" + symbol,
		Interval:     h.opts.PollInterval,
		Immediate:    true,
		ErrorBackoff: h.opts.ErrorBackoff,
	}, h.logger)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
			return h.Publish(ctx, symbol)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error().Err(err).Str("symbol", symbol).Msg("price poller stopped")
		}
	}()
}

// Publish fetches one snapshot and broadcasts it to the symbol's group.
// Members whose write fails are closed and pruned after the broadcast.
func (h *Hub) Publish(ctx context.Context, symbol string) error {
	members := h.snapshot(symbol)
	if len(members) == 0 {
		return nil
	}

	quote := h.prices.CurrentPrice(ctx, symbol)

	var failed []Conn
	for _, conn := range members {
		if err := conn.WriteJSON(quote); err != nil {
			h.logger.Debug().Err(err).Str("symbol", symbol).Msg("subscriber write failed")
			failed = append(failed, conn)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	h.mu.Lock()
	for _, conn := range failed {
		h.removeLocked(symbol, conn)
	}
	h.mu.Unlock()
	for _, conn := range failed {
		_ = conn.Close()
	}
	return fmt.Errorf("%d of %d subscribers dropped for %s", len(failed), len(members), symbol)
}

func (h *Hub) snapshot(symbol string) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[symbol]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(g.members))
	for conn := range g.members {
		out = append(out, conn)
	}
	return out
}
