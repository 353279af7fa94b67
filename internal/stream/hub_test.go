package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradewatch/internal/market"
)

type staticPrices struct {
	price    float64
	fallback bool
}

func (s staticPrices) CurrentPrice(ctx context.Context, symbol string) market.Quote {
	return market.Quote{Symbol: symbol, Price: s.price, Fallback: s.fallback}
}

type fakeConn struct {
	mu     sync.Mutex
	writes []any
	fail   bool
	closed bool
	got    chan struct{}
}

func newFakeConn(fail bool) *fakeConn {
	return &fakeConn{fail: fail, got: make(chan struct{}, 16)}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.writes = append(c.writes, v)
	select {
	case c.got <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) first() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[0]
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestHub() *Hub {
	// 轮询间隔设得很长, 测试里手动 Publish。
	return NewHub(staticPrices{price: 65000, fallback: true}, Options{PollInterval: time.Hour}, zerolog.Nop())
}

func TestPublishPrunesFailedMembersOnly(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	good := newFakeConn(false)
	bad := newFakeConn(true)
	hub.Subscribe("BTCUSDT", good)
	hub.Subscribe("BTCUSDT", bad)

	// the poller may already have pruned bad on its immediate tick
	_ = hub.Publish(context.Background(), "BTCUSDT")
	if hub.Members("BTCUSDT") != 1 {
		t.Fatalf("期望剩余 1 个订阅者, 实际 %d", hub.Members("BTCUSDT"))
	}
	if !bad.isClosed() || good.isClosed() {
		t.Fatal("only the failing subscriber should be closed")
	}

	if err := hub.Publish(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("healthy group should publish cleanly: %v", err)
	}
	if good.count() < 2 {
		t.Fatalf("good subscriber should keep receiving, got %d", good.count())
	}
	quote, ok := good.first().(market.Quote)
	if !ok || quote.Symbol != "BTCUSDT" || quote.Price != 65000 || !quote.Fallback {
		t.Fatalf("unexpected payload %#v", good.first())
	}
}

func TestGroupsAreIndependent(t *testing.T) {
	hub := newTestHub()
	defer hub.Close()

	btc := newFakeConn(false)
	eth := newFakeConn(false)
	hub.Subscribe("BTCUSDT", btc)
	hub.Subscribe("ETHUSDT", eth)
	<-btc.got
	<-eth.got

	hub.Unsubscribe("BTCUSDT", btc)
	if hub.Members("BTCUSDT") != 0 || hub.Members("ETHUSDT") != 1 {
		t.Fatal("leaving one group must not affect another")
	}
	if err := hub.Publish(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("publishing to an empty group is a no-op: %v", err)
	}
}

func TestPollerBroadcastsPeriodically(t *testing.T) {
	hub := NewHub(staticPrices{price: 1}, Options{PollInterval: 10 * time.Millisecond}, zerolog.Nop())
	defer hub.Close()

	conn := newFakeConn(false)
	hub.Subscribe("SOLUSDT", conn)
	deadline := time.After(2 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case <-conn.got:
		case <-deadline:
			t.Fatalf("expected periodic snapshots, got %d", conn.count())
		}
	}
}

func TestServeOverWebSocket(t *testing.T) {
	hub := NewHub(staticPrices{price: 3500}, Options{PollInterval: 20 * time.Millisecond}, zerolog.Nop())
	defer hub.Close()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve("ETHUSDT", ws, time.Second)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var quote market.Quote
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&quote); err != nil {
		t.Fatalf("read: %v", err)
	}
	if quote.Symbol != "ETHUSDT" || quote.Price != 3500 {
		t.Fatalf("unexpected quote %+v", quote)
	}

	client.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Members("ETHUSDT") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("disconnected client should be removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubscribeAfterCloseIsRejected(t *testing.T) {
	hub := newTestHub()
	member := newFakeConn(false)
	if err := hub.Subscribe("BTCUSDT", member); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	hub.Close()
	if !member.isClosed() {
		t.Fatal("Close 应关闭已有订阅者")
	}

	late := newFakeConn(false)
	if err := hub.Subscribe("BTCUSDT", late); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
	if hub.Members("BTCUSDT") != 0 {
		t.Fatal("closed hub must not keep new members")
	}
	hub.Close()
}

func TestConcurrentSubscribeAndClose(t *testing.T) {
	hub := newTestHub()
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	conns := make([]*fakeConn, 20)
	rejected := make([]bool, len(conns))

	var wg sync.WaitGroup
	for i := range conns {
		conns[i] = newFakeConn(false)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rejected[i] = errors.Is(hub.Subscribe(symbols[i%len(symbols)], conns[i]), ErrHubClosed)
		}(i)
	}
	hub.Close()
	wg.Wait()

	for i, c := range conns {
		if !rejected[i] && !c.isClosed() {
			t.Fatalf("subscriber %d joined before Close but was never closed", i)
		}
	}
	for _, symbol := range symbols {
		if n := hub.Members(symbol); n != 0 {
			t.Fatalf("%s still has %d members after Close", symbol, n)
		}
	}
}
