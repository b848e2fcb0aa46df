package risk

import "github.com/shopspring/decimal"

const scale = 8

// PartialSellQuantity sizes a forced sell of ratio of balance at price.
// The quantity is raised to the minimum notional when the ratio share is
// too small, and becomes the whole balance when what would remain is
// worth less than the minimum.
func PartialSellQuantity(balance, ratio, price, minNotional decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	qty := balance.Mul(ratio).Round(scale)
	if qty.Mul(price).LessThan(minNotional) {
		qty = minNotional.DivRound(price, scale)
	}
	if qty.GreaterThan(balance) || balance.Sub(qty).Mul(price).LessThan(minNotional) {
		return balance
	}
	return qty
}

// Return is (current-avg)/avg rounded half up to 4 places.
func Return(avg, current decimal.Decimal) decimal.Decimal {
	if !avg.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(avg).DivRound(avg, 4)
}
