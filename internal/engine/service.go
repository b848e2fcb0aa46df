// Package engine composes the decision pipeline into scheduled passes and
// exposes a read-side view of it to the status API.
package engine

import (
	"context"
	"fmt"
	"time"

	"signal-engine/internal/events"
	"signal-engine/internal/gateway"
	"signal-engine/internal/monitor"
	"signal-engine/internal/signal"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/db"
)

// Service is what the API layer may ask of the engine.
type Service interface {
	ListStrategies(ctx context.Context) []StrategyInfo
	MarketState(ctx context.Context, market string) (MarketState, error)
	ListMarketStates(ctx context.Context) ([]MarketState, error)
	PendingTrades(ctx context.Context) ([]Trade, error)
	UserTrades(ctx context.Context, userID string, limit int) ([]Trade, error)
	TriggerJob(ctx context.Context, name string) bool
	SystemStatus(ctx context.Context) SystemStatus
	RefreshGauges()
}

// StateReader reads detector state (signal.Detector).
type StateReader interface {
	State(ctx context.Context, market string) (signal.State, error)
}

// Store is the read side of the repository.
type Store interface {
	ListMarketSignals(ctx context.Context) ([]db.MarketSignal, error)
	ListTradesByStatus(ctx context.Context, status db.TradeStatus) ([]db.Trade, error)
	ListTradesByUser(ctx context.Context, userID string, limit int) ([]db.Trade, error)
}

// JobTrigger runs a named job out of schedule (scheduler.Scheduler).
type JobTrigger interface {
	Trigger(ctx context.Context, name string) bool
}

// PoolStatter reports gateway cache health (gateway.Manager).
type PoolStatter interface {
	Stats() gateway.PoolStats
}

// Config holds the collaborators of Impl. Optional fields may be nil.
type Config struct {
	Detector   StateReader
	Store      Store
	Strategies *strategy.Registry
	Jobs       JobTrigger
	Gateways   PoolStatter
	Bus        *events.Bus
	Metrics    *monitor.Metrics
	Meta       SystemStatus
}

// Impl implements Service by composing the engine modules.
type Impl struct {
	cfg Config
}

var _ Service = (*Impl)(nil)

func NewImpl(cfg Config) *Impl {
	if cfg.Meta.StartedAt.IsZero() {
		cfg.Meta.StartedAt = time.Now().UTC()
	}
	return &Impl{cfg: cfg}
}

func (e *Impl) ListStrategies(context.Context) []StrategyInfo {
	if e.cfg.Strategies == nil {
		return nil
	}
	list := e.cfg.Strategies.List()
	out := make([]StrategyInfo, 0, len(list))
	for _, s := range list {
		out = append(out, StrategyInfo{ID: string(s.ID), Label: s.Label()})
	}
	return out
}

func (e *Impl) MarketState(ctx context.Context, market string) (MarketState, error) {
	if e.cfg.Detector == nil {
		return MarketState{}, fmt.Errorf("detector not available")
	}
	st, err := e.cfg.Detector.State(ctx, market)
	if err != nil {
		return MarketState{}, fmt.Errorf("market state %s: %w", market, err)
	}
	return marketStateFrom(st), nil
}

func (e *Impl) ListMarketStates(ctx context.Context) ([]MarketState, error) {
	list, err := e.cfg.Store.ListMarketSignals(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MarketState, 0, len(list))
	for _, s := range list {
		out = append(out, marketStateFrom(s))
	}
	return out, nil
}

func (e *Impl) PendingTrades(ctx context.Context) ([]Trade, error) {
	list, err := e.cfg.Store.ListTradesByStatus(ctx, db.TradeWait)
	if err != nil {
		return nil, err
	}
	return tradesFrom(list), nil
}

func (e *Impl) UserTrades(ctx context.Context, userID string, limit int) ([]Trade, error) {
	list, err := e.cfg.Store.ListTradesByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return tradesFrom(list), nil
}

func (e *Impl) TriggerJob(ctx context.Context, name string) bool {
	if e.cfg.Jobs == nil {
		return false
	}
	return e.cfg.Jobs.Trigger(ctx, name)
}

func (e *Impl) SystemStatus(context.Context) SystemStatus {
	status := e.cfg.Meta
	status.ServerTime = time.Now().UTC()
	if e.cfg.Gateways != nil {
		status.Gateways = e.cfg.Gateways.Stats()
	}
	if e.cfg.Bus != nil {
		status.BusDropped = e.cfg.Bus.Dropped()
	}
	return status
}

// RefreshGauges publishes point-in-time gauges before a metrics scrape.
func (e *Impl) RefreshGauges() {
	if e.cfg.Gateways != nil {
		e.cfg.Metrics.SetGatewayPool(e.cfg.Gateways.Stats())
	}
}

func tradesFrom(list []db.Trade) []Trade {
	out := make([]Trade, 0, len(list))
	for _, t := range list {
		out = append(out, tradeFrom(t))
	}
	return out
}
