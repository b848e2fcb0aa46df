package order

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signal-engine/internal/events"
	"signal-engine/internal/gateway"
	"signal-engine/internal/signal"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
)

type fakePool struct {
	gw       exchange.Gateway
	failures int
}

func (p *fakePool) Get(context.Context, string) (exchange.Gateway, error) { return p.gw, nil }
func (p *fakePool) RecordFailure(string) { p.failures++ }
func (p *fakePool) RecordSuccess(string) {}

type rejectingGateway struct{ *gateway.Simulator }

func (rejectingGateway) PlaceOrder(context.Context, exchange.OrderRequest) (exchange.Order, error) {
	return exchange.Order{}, errors.New("insufficient_funds_bid")
}

func newTestStore(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func activeUser() db.ActiveUser {
	return db.ActiveUser{
		User: db.User{ID: "u1", Username: "alice"},
		Setting: db.BotSetting{
			UserID: "u1", BuyBaseAmount: 10000, BuyMaxAmount: 50000,
			SellBaseAmount: 5000, SellMaxAmount: 50000,
		},
	}
}

func TestExecuteBuyRecordsWaitTrade(t *testing.T) {
	store := newTestStore(t)
	bus := events.NewBus()
	placed, unsub := bus.Subscribe(events.EventOrderPlaced, 1)
	defer unsub()

	pool := &fakePool{gw: gateway.NewSimulator(gateway.SimulatorConfig{})}
	c := NewCoordinator(pool, store, bus, nil, 0, zerolog.Nop())

	dec := strategy.Decision{Strategy: strategy.ExtremeFlip, Market: "KRW-BTC", Side: signal.Buy, Act: true, Strength: 0.5}
	trade, err := c.Execute(context.Background(), activeUser(), dec, 50_000_000)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !trade.Amount.Equal(decimal.RequireFromString("0.0006")) {
		t.Errorf("amount = %s, want 0.0006", trade.Amount)
	}
	if !trade.TotalPrice.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("total = %s, want 30000", trade.TotalPrice)
	}

	got, err := store.GetTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if got.Status != db.TradeWait || got.Type != db.TradeBid || got.OrderID == "" || got.Strategy != "EXTREME_FLIP" {
		t.Errorf("trade = %+v", got)
	}

	select {
	case ev := <-placed:
		if ev.(events.OrderPlaced).TradeID != trade.ID {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no order placed event")
	}
}

func TestExecuteSellWithoutHoldingsIsSkipped(t *testing.T) {
	store := newTestStore(t)
	pool := &fakePool{gw: gateway.NewSimulator(gateway.SimulatorConfig{})}
	c := NewCoordinator(pool, store, nil, nil, 0, zerolog.Nop())

	dec := strategy.Decision{Strategy: strategy.TripleModerate, Market: "KRW-BTC", Side: signal.Sell, Act: true, Strength: 1}
	_, err := c.Execute(context.Background(), activeUser(), dec, 50_000_000)
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
	trades, _ := store.ListTradesByStatus(context.Background(), db.TradeWait)
	if len(trades) != 0 {
		t.Errorf("no trade should be recorded, got %d", len(trades))
	}
}

func TestSubmitFailurePublishesAndCounts(t *testing.T) {
	store := newTestStore(t)
	bus := events.NewBus()
	failed, unsub := bus.Subscribe(events.EventOrderFailed, 1)
	defer unsub()

	pool := &fakePool{gw: rejectingGateway{gateway.NewSimulator(gateway.SimulatorConfig{})}}
	c := NewCoordinator(pool, store, bus, nil, 0, zerolog.Nop())

	_, err := c.Submit(context.Background(), Intent{
		UserID: "u1", Market: "KRW-BTC", Side: exchange.SideAsk,
		Volume: decimal.RequireFromString("0.1"), Price: decimal.NewFromInt(100), Strategy: "LOSS_MANAGEMENT",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if pool.failures != 1 {
		t.Errorf("failures = %d, want 1", pool.failures)
	}
	select {
	case ev := <-failed:
		if ev.(events.OrderFailed).Market != "KRW-BTC" {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no order failed event")
	}
	trades, _ := store.ListTradesByStatus(context.Background(), db.TradeWait)
	if len(trades) != 0 {
		t.Errorf("failed order must not be recorded")
	}
}
