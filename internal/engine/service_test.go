package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signal-engine/internal/events"
	"signal-engine/internal/gateway"
	"signal-engine/internal/signal"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/db"
)

type fixedStats gateway.PoolStats

func (s fixedStats) Stats() gateway.PoolStats { return gateway.PoolStats(s) }

func TestImplReadSide(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	ctx := context.Background()

	err = database.CreateTrade(ctx, db.Trade{
		ID: "t1", UserID: "u1", Market: "KRW-BTC", Type: db.TradeBid, OrderID: "o1",
		Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(1), TotalPrice: decimal.NewFromInt(100),
		Strategy: "EXTREME_FLIP", ExecutedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}
	_, err = database.UpdateMarketSignal(ctx, "KRW-BTC", func(m *db.MarketSignal) error {
		m.DropCount = 4
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateMarketSignal: %v", err)
	}

	impl := NewImpl(Config{
		Detector:   signal.NewDetector(database, nil, signal.Config{}, zerolog.Nop()),
		Store:      database,
		Strategies: strategy.NewRegistry(),
		Gateways:   fixedStats{TotalGateways: 2, MaxSize: 10},
		Bus:        events.NewBus(),
		Meta:       SystemStatus{Venue: "upbit", DryRun: true},
	})

	t.Run("strategies", func(t *testing.T) {
		list := impl.ListStrategies(ctx)
		if len(list) != 8 {
			t.Fatalf("strategies = %+v", list)
		}
		for _, s := range list {
			if s.Label == "" || s.Label == s.ID {
				t.Errorf("strategy %s has no label", s.ID)
			}
		}
	})

	t.Run("market state", func(t *testing.T) {
		st, err := impl.MarketState(ctx, "KRW-BTC")
		if err != nil {
			t.Fatalf("MarketState: %v", err)
		}
		if st.DropCount != 4 {
			t.Errorf("state = %+v", st)
		}
		empty, err := impl.MarketState(ctx, "KRW-NEW")
		if err != nil || empty.Market != "KRW-NEW" || empty.DropCount != 0 {
			t.Errorf("unseen market = %+v, %v", empty, err)
		}
		all, err := impl.ListMarketStates(ctx)
		if err != nil || len(all) != 1 {
			t.Errorf("all states = %+v, %v", all, err)
		}
	})

	t.Run("pending trades", func(t *testing.T) {
		pending, err := impl.PendingTrades(ctx)
		if err != nil {
			t.Fatalf("PendingTrades: %v", err)
		}
		if len(pending) != 1 || pending[0].Status != "WAIT" || pending[0].Type != "BID" {
			t.Errorf("pending = %+v", pending)
		}
	})

	t.Run("status", func(t *testing.T) {
		st := impl.SystemStatus(ctx)
		if !st.DryRun || st.Gateways.TotalGateways != 2 || st.StartedAt.IsZero() || st.ServerTime.IsZero() {
			t.Errorf("status = %+v", st)
		}
		if impl.TriggerJob(ctx, JobSignal) {
			t.Error("no scheduler configured, trigger must report false")
		}
	})
}
