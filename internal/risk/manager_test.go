package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signal-engine/internal/events"
	"signal-engine/internal/gateway"
	"signal-engine/internal/order"
	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
)

type staticPool struct{ gw exchange.Gateway }

func (p staticPool) Get(context.Context, string) (exchange.Gateway, error) { return p.gw, nil }

type fixedPrices map[string]float64

func (p fixedPrices) CurrentPrice(_ context.Context, market string) (float64, error) {
	px, ok := p[market]
	if !ok {
		return 0, errors.New("no quote")
	}
	return px, nil
}

type capturingSubmitter struct{ intents []order.Intent }

func (s *capturingSubmitter) Submit(_ context.Context, in order.Intent) (db.Trade, error) {
	s.intents = append(s.intents, in)
	return db.Trade{ID: "trade-" + in.Market, UserID: in.UserID, Market: in.Market}, nil
}

type countingResetter struct{ markets []string }

func (r *countingResetter) ResetReversalUp(_ context.Context, market string) error {
	r.markets = append(r.markets, market)
	return nil
}

type fixture struct {
	mgr      *Manager
	store    *db.Database
	orders   *capturingSubmitter
	counters *countingResetter
	bus      *events.Bus
	prices   fixedPrices
}

// newFixture holds 0.5 BTC bought at 100,000 KRW on a simulated account.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	sim := gateway.NewSimulator(gateway.SimulatorConfig{})
	_, err = sim.PlaceOrder(context.Background(), exchange.OrderRequest{
		Market: "KRW-BTC", Side: exchange.SideBid, Type: exchange.OrderTypeLimit,
		Volume: decimal.RequireFromString("0.5"), Price: decimal.NewFromInt(100000),
	})
	if err != nil {
		t.Fatalf("seed position: %v", err)
	}

	f := &fixture{
		store:    store,
		orders:   &capturingSubmitter{},
		counters: &countingResetter{},
		bus:      events.NewBus(),
		prices:   fixedPrices{},
	}
	f.mgr = NewManager(staticPool{sim}, f.prices, store, f.orders, f.counters, f.bus, nil, 0, zerolog.Nop())
	return f
}

func riskUser() db.ActiveUser {
	return db.ActiveUser{
		User: db.User{ID: "u1", Username: "alice"},
		Setting: db.BotSetting{
			UserID:                 "u1",
			Markets:                []string{"KRW-BTC", "KRW-ETH"},
			SellBaseAmount:         5000,
			SellMaxAmount:          50000,
			LossThreshold:          0.01,
			ProfitThreshold:        0.02,
			LossSellRatio:          0.5,
			ProfitSellRatio:        0.3,
			LossManagementActive:   true,
			ProfitTakingActive:     true,
			TimeoutSellMinutes:     30,
			TimeoutSellProfitRatio: 0.001,
		},
	}
}

func TestLossSellsAndResetsCounter(t *testing.T) {
	f := newFixture(t)
	f.prices["KRW-BTC"] = 98900
	exitsCh, unsub := f.bus.Subscribe(events.EventForcedExit, 1)
	defer unsub()

	exits, err := f.mgr.CheckUser(context.Background(), riskUser())
	if err != nil {
		t.Fatalf("CheckUser: %v", err)
	}
	if len(exits) != 1 || exits[0].Reason != ReasonLossManagement {
		t.Fatalf("exits = %+v", exits)
	}
	if !exits[0].Return.Equal(decimal.RequireFromString("-0.011")) {
		t.Errorf("return = %s", exits[0].Return)
	}

	if len(f.orders.intents) != 1 {
		t.Fatalf("intents = %+v", f.orders.intents)
	}
	in := f.orders.intents[0]
	if in.Side != exchange.SideAsk || !in.Volume.Equal(decimal.RequireFromString("0.25")) || in.Strategy != ReasonLossManagement {
		t.Errorf("intent = %+v", in)
	}
	if len(f.counters.markets) != 1 || f.counters.markets[0] != "KRW-BTC" {
		t.Errorf("reset markets = %v", f.counters.markets)
	}

	select {
	case ev := <-exitsCh:
		if e := ev.(events.ForcedExit); e.TradeID != "trade-KRW-BTC" || e.Reason != ReasonLossManagement {
			t.Errorf("event = %+v", e)
		}
	default:
		t.Error("no forced exit event")
	}
}

func TestRules(t *testing.T) {
	tests := []struct {
		name       string
		price      float64
		setup      func(*testing.T, *fixture, *db.ActiveUser)
		wantReason string
		wantVolume string
	}{
		{name: "hold inside band", price: 100500},
		{name: "profit taking", price: 102000, wantReason: ReasonProfitTaking, wantVolume: "0.15"},
		{
			name:  "loss management disabled",
			price: 98900,
			setup: func(_ *testing.T, _ *fixture, u *db.ActiveUser) { u.Setting.LossManagementActive = false },
		},
		{
			name:  "timeout after stale bid",
			price: 100050,
			setup: func(t *testing.T, f *fixture, u *db.ActiveUser) {
				u.Setting.TimeoutSellActive = true
				seedBid(t, f, time.Now().Add(-40*time.Minute))
			},
			wantReason: ReasonTimeoutSell,
			wantVolume: "0.15",
		},
		{
			name:  "timeout waits for recent bid",
			price: 100050,
			setup: func(t *testing.T, f *fixture, u *db.ActiveUser) {
				u.Setting.TimeoutSellActive = true
				seedBid(t, f, time.Now().Add(-10*time.Minute))
			},
		},
		{
			name:  "timeout without any bid holds",
			price: 100050,
			setup: func(_ *testing.T, _ *fixture, u *db.ActiveUser) { u.Setting.TimeoutSellActive = true },
		},
		{
			name:  "loss wins over timeout",
			price: 98000,
			setup: func(t *testing.T, f *fixture, u *db.ActiveUser) {
				u.Setting.TimeoutSellActive = true
				seedBid(t, f, time.Now().Add(-time.Hour))
			},
			wantReason: ReasonLossManagement,
			wantVolume: "0.25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.prices["KRW-BTC"] = tt.price
			u := riskUser()
			if tt.setup != nil {
				tt.setup(t, f, &u)
			}

			exits, err := f.mgr.CheckUser(context.Background(), u)
			if err != nil {
				t.Fatalf("CheckUser: %v", err)
			}
			if tt.wantReason == "" {
				if len(exits) != 0 || len(f.orders.intents) != 0 {
					t.Fatalf("expected hold, got %+v", exits)
				}
				return
			}
			if len(exits) != 1 || exits[0].Reason != tt.wantReason {
				t.Fatalf("exits = %+v", exits)
			}
			if !exits[0].Volume.Equal(decimal.RequireFromString(tt.wantVolume)) {
				t.Errorf("volume = %s, want %s", exits[0].Volume, tt.wantVolume)
			}
		})
	}
}

func TestPriceFailureIsReported(t *testing.T) {
	f := newFixture(t)
	// no quote for KRW-BTC; KRW-ETH holds nothing and is skipped
	exits, err := f.mgr.CheckUser(context.Background(), riskUser())
	if err == nil {
		t.Fatal("expected price error")
	}
	if len(exits) != 0 || len(f.orders.intents) != 0 {
		t.Errorf("no sell expected, got %+v", exits)
	}
}

func seedBid(t *testing.T, f *fixture, at time.Time) {
	t.Helper()
	err := f.store.CreateTrade(context.Background(), db.Trade{
		ID: "bid-" + at.Format("150405"), UserID: "u1", Market: "KRW-BTC", Type: db.TradeBid, OrderID: "o1",
		Price: decimal.NewFromInt(100000), Amount: decimal.RequireFromString("0.5"),
		TotalPrice: decimal.NewFromInt(50000), Strategy: "EXTREME_FLIP", ExecutedAt: at,
	})
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}
}
