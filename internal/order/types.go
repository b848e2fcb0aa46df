package order

import (
	"errors"

	"github.com/shopspring/decimal"

	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
)

var (
	// ErrBelowMinimum marks an order skipped because its notional is under
	// the exchange minimum. It is not a failure.
	ErrBelowMinimum = errors.New("order below exchange minimum total")
	ErrInvalidPrice = errors.New("price must be positive")
)

// Intent is a fully sized limit order ready to submit.
type Intent struct {
	UserID   string
	Market   string
	Side     exchange.Side
	Volume   decimal.Decimal
	Price    decimal.Decimal
	Strategy string // strategy id or risk reason recorded on the trade
	Origin   string // what produced the intent: signal, risk
}

// TradeType maps an exchange side to the recorded trade type.
func TradeType(side exchange.Side) db.TradeType {
	if side == exchange.SideAsk {
		return db.TradeAsk
	}
	return db.TradeBid
}
