package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event enumerates the topics published by the engine.
type Event string

const (
	EventSignalTriggered Event = "signal.triggered"
	EventOrderPlaced     Event = "order.placed"
	EventOrderFailed     Event = "order.failed"
	EventForcedExit      Event = "risk.forced_exit"
	EventTradeResolved   Event = "trade.resolved"
	EventReconciled      Event = "reconcile.report"
)

// SignalTriggered is published when a detector family fires.
type SignalTriggered struct {
	Market   string
	Side     string
	Strength float64
	At       time.Time
}

// OrderPlaced carries the trade recorded for an accepted order.
type OrderPlaced struct {
	TradeID  string
	UserID   string
	Market   string
	Side     string
	Price    decimal.Decimal
	Volume   decimal.Decimal
	Strategy string
}

// OrderFailed describes an order the exchange or sizing rejected.
type OrderFailed struct {
	UserID string
	Market string
	Side   string
	Err    error
}

// ForcedExit is a risk-driven sell.
type ForcedExit struct {
	UserID  string
	Market  string
	Reason  string
	Volume  decimal.Decimal
	Return  float64
	TradeID string
}

// TradeResolved reports a WAIT trade moving to a terminal status.
type TradeResolved struct {
	TradeID string
	UserID  string
	Market  string
	Status  string
}

// Reconciled summarizes one reconciliation pass.
type Reconciled struct {
	Checked   int
	Done      int
	Cancelled int
	Failed    int
	Skipped   int
}
