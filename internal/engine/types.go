package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"signal-engine/internal/gateway"
	"signal-engine/internal/signal"
	"signal-engine/pkg/db"
)

// StrategyInfo describes a registered strategy.
type StrategyInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// MarketState is the detector state of one market.
type MarketState struct {
	Market         string     `json:"market"`
	DropCount      int        `json:"consecutive_drop_count"`
	PopCount       int        `json:"consecutive_pop_count"`
	LastDropAt     *time.Time `json:"last_drop_at,omitempty"`
	LastPopAt      *time.Time `json:"last_pop_at,omitempty"`
	LastFlipUpAt   *time.Time `json:"last_flip_up_at,omitempty"`
	LastFlipDownAt *time.Time `json:"last_flip_down_at,omitempty"`
	PreviousATR    *float64   `json:"previous_atr,omitempty"`
}

func marketStateFrom(s signal.State) MarketState {
	return MarketState{
		Market:         s.Market,
		DropCount:      s.DropCount,
		PopCount:       s.PopCount,
		LastDropAt:     s.LastDropAt,
		LastPopAt:      s.LastPopAt,
		LastFlipUpAt:   s.LastFlipUpAt,
		LastFlipDownAt: s.LastFlipDownAt,
		PreviousATR:    s.PreviousATR,
	}
}

// Trade is the API view of a recorded trade.
type Trade struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Market       string          `json:"market"`
	Type         string          `json:"type"`
	OrderID      string          `json:"order_id"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Status       string          `json:"status"`
	Strategy     string          `json:"strategy"`
	SignalOrigin string          `json:"signal_origin"`
	ExecutedAt   time.Time       `json:"executed_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func tradeFrom(t db.Trade) Trade {
	return Trade{
		ID:           t.ID,
		UserID:       t.UserID,
		Market:       t.Market,
		Type:         string(t.Type),
		OrderID:      t.OrderID,
		Price:        t.Price,
		Amount:       t.Amount,
		TotalPrice:   t.TotalPrice,
		Status:       string(t.Status),
		Strategy:     t.Strategy,
		SignalOrigin: t.SignalOrigin,
		ExecutedAt:   t.ExecutedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// SystemStatus represents the system runtime status.
type SystemStatus struct {
	InstanceID string            `json:"instance_id"`
	DryRun     bool              `json:"dry_run"`
	Venue      string            `json:"venue"`
	Version    string            `json:"version"`
	StartedAt  time.Time         `json:"started_at"`
	ServerTime time.Time         `json:"server_time"`
	Gateways   gateway.PoolStats `json:"gateways"`
	BusDropped int64             `json:"bus_dropped"`
}
