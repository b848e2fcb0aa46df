package order

import (
	"github.com/shopspring/decimal"
)

// Scale is the decimal precision of notionals and quantities.
const Scale = 8

// Notional interpolates between base and max by strength, rounded half up
// to 8 places. Strength is clamped to [0,1].
func Notional(base, max decimal.Decimal, strength float64) decimal.Decimal {
	switch {
	case strength < 0:
		strength = 0
	case strength > 1:
		strength = 1
	}
	s := decimal.NewFromFloat(strength)
	return base.Add(max.Sub(base).Mul(s)).Round(Scale)
}

// Quantity is notional/price rounded down to 8 places, so the order never
// spends more than the notional.
func Quantity(notional, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return notional.DivRound(price, Scale+4).RoundFloor(Scale)
}

// CapNotional limits notional to what the account can afford. For buys
// available is quote balance and fee is reserved on top; for sells
// available is the base balance valued at price.
func CapNotional(notional, available, price, fee decimal.Decimal, buy bool) decimal.Decimal {
	var limit decimal.Decimal
	if buy {
		limit = available.Div(decimal.NewFromInt(1).Add(fee)).RoundFloor(Scale)
	} else {
		limit = available.Mul(price).RoundFloor(Scale)
	}
	if notional.GreaterThan(limit) {
		return limit
	}
	return notional
}
