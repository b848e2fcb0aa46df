package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/internal/events"
	"signal-engine/internal/order"
	"signal-engine/internal/signal"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/db"
)

type staticUsers []db.ActiveUser

func (u staticUsers) FindActiveUsers(context.Context, time.Time) ([]db.ActiveUser, error) {
	return u, nil
}

type mockBuilder struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func (b *mockBuilder) Build(_ context.Context, market string) (signal.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[market]++
	if b.fail[market] {
		return signal.Snapshot{}, errors.New("candles unavailable")
	}
	return signal.Snapshot{Market: market, Ready: true, Price: 100, At: time.Now()}, nil
}

// triggerBuy reports a buy reversal on every market.
type triggerBuy struct{}

func (triggerBuy) Evaluate(_ context.Context, snap signal.Snapshot) (signal.Evaluation, error) {
	return signal.Evaluation{
		Snapshot: snap,
		Up:       signal.Result{Triggered: true, Strength: 0.65, Count: 10},
	}, nil
}

type captureOrders struct {
	mu        sync.Mutex
	decisions []string
	below     bool
}

func (c *captureOrders) Execute(_ context.Context, u db.ActiveUser, d strategy.Decision, price float64) (db.Trade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, fmt.Sprintf("%s/%s/%s/%.2f", u.User.ID, d.Market, d.Strategy, d.Strength))
	if c.below {
		return db.Trade{}, fmt.Errorf("%w: 10 < 5000", order.ErrBelowMinimum)
	}
	return db.Trade{ID: "t"}, nil
}

type flatPrice struct{}

func (flatPrice) CurrentPrice(context.Context, string) (float64, error) { return 100, nil }

func activeUser(id, buy string, markets ...string) db.ActiveUser {
	return db.ActiveUser{
		User:    db.User{ID: id},
		Setting: db.BotSetting{UserID: id, BuyStrategy: buy, SellStrategy: string(strategy.TripleConservative), Markets: markets},
	}
}

func newPass(users staticUsers, b *mockBuilder, orders *captureOrders) *SignalPass {
	return &SignalPass{
		Users:      users,
		Builder:    b,
		Detector:   triggerBuy{},
		Strategies: strategy.NewRegistry(),
		Orders:     orders,
		Prices:     flatPrice{},
		Workers:    4,
		Log:        zerolog.Nop(),
	}
}

func TestSignalPassEvaluatesEachMarketOnce(t *testing.T) {
	users := staticUsers{
		activeUser("u1", "EXTREME_FLIP", "KRW-BTC", "KRW-ETH"),
		activeUser("u2", "EXTREME_FLIP", "KRW-BTC"),
	}
	b := &mockBuilder{calls: map[string]int{}}
	orders := &captureOrders{}
	bus := events.NewBus()
	triggered, unsub := bus.Subscribe(events.EventSignalTriggered, 10)
	defer unsub()

	p := newPass(users, b, orders)
	p.Bus = bus
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if b.calls["KRW-BTC"] != 1 || b.calls["KRW-ETH"] != 1 {
		t.Errorf("builder calls = %v, want one per market", b.calls)
	}
	if n := len(triggered); n != 2 {
		t.Errorf("trigger events = %d, want 2", n)
	}
	// 2 markets + 3 (user, market) pairs
	if report.Total != 5 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(orders.decisions) != 3 {
		t.Fatalf("decisions = %v", orders.decisions)
	}
	for _, d := range orders.decisions {
		if d[len(d)-4:] != "0.65" {
			t.Errorf("decision %s should carry detector strength", d)
		}
	}
}

func TestSignalPassFallsBackOnUnknownStrategy(t *testing.T) {
	users := staticUsers{activeUser("u1", "NOT_A_STRATEGY", "KRW-BTC")}
	b := &mockBuilder{calls: map[string]int{}}
	orders := &captureOrders{}

	report, err := newPass(users, b, orders).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 0 {
		t.Errorf("unknown strategy must not fail the item: %+v", report)
	}
	// The moderate fallback needs two agreeing indicators; the bare snapshot has none.
	if len(orders.decisions) != 0 {
		t.Errorf("decisions = %v", orders.decisions)
	}
}

func TestSignalPassIsolatesMarketFailures(t *testing.T) {
	users := staticUsers{activeUser("u1", "EXTREME_FLIP", "KRW-BTC", "KRW-XRP")}
	b := &mockBuilder{calls: map[string]int{}, fail: map[string]bool{"KRW-XRP": true}}
	orders := &captureOrders{below: true}

	report, err := newPass(users, b, orders).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// XRP fails in phase one and is not decided; BTC is decided and the
	// below-minimum skip is not a failure.
	if report.Failed != 1 || report.Succeeded != 2 {
		t.Errorf("report = %+v", report)
	}
	if len(orders.decisions) != 1 || orders.decisions[0] != "u1/KRW-BTC/EXTREME_FLIP/0.65" {
		t.Errorf("decisions = %v", orders.decisions)
	}
}

func TestDistinctMarkets(t *testing.T) {
	got := distinctMarkets([]db.ActiveUser{
		activeUser("a", "", "KRW-ETH", "KRW-BTC"),
		activeUser("b", "", "KRW-BTC"),
	})
	if len(got) != 2 || got[0] != "KRW-BTC" || got[1] != "KRW-ETH" {
		t.Errorf("markets = %v", got)
	}
}
