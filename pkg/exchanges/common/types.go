package common

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order side in exchange terms.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// OrderType selects how price and volume are interpreted.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypePrice  OrderType = "price"  // market buy by total
	OrderTypeMarket OrderType = "market" // market sell by volume
)

// OrderState is the exchange-side order lifecycle.
type OrderState string

const (
	StateWait   OrderState = "wait"
	StateWatch  OrderState = "watch"
	StateDone   OrderState = "done"
	StateCancel OrderState = "cancel"
)

// Account is one currency balance of a user.
type Account struct {
	Currency     string          `json:"currency"`
	Balance      decimal.Decimal `json:"balance"`
	Locked       decimal.Decimal `json:"locked"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	UnitCurrency string          `json:"unit_currency"`
}

// Market returns the market code this balance trades on, e.g. KRW-BTC.
func (a Account) Market() string {
	return a.UnitCurrency + "-" + a.Currency
}

// OrderChance describes what a user can currently order on a market.
type OrderChance struct {
	Market      string
	BidFee      decimal.Decimal
	AskFee      decimal.Decimal
	BidMinTotal decimal.Decimal
	AskMinTotal decimal.Decimal
	BidAccount  Account // quote currency balance (KRW)
	AskAccount  Account // base currency balance
}

// OrderRequest is an order intent sent to the exchange.
type OrderRequest struct {
	Market     string
	Side       Side
	Type       OrderType
	Volume     decimal.Decimal
	Price      decimal.Decimal
	Identifier string // client-side idempotency key
}

// Order is the exchange view of a submitted order.
type Order struct {
	UUID            string
	Market          string
	Side            Side
	Type            OrderType
	State           OrderState
	Price           decimal.Decimal
	Volume          decimal.Decimal
	RemainingVolume decimal.Decimal
	ExecutedVolume  decimal.Decimal
	CreatedAt       time.Time
}

// CurrencyOf extracts the base currency of a market code (KRW-BTC -> BTC).
func CurrencyOf(market string) string {
	if i := strings.IndexByte(market, '-'); i >= 0 {
		return market[i+1:]
	}
	return market
}

// QuoteOf extracts the quote currency of a market code (KRW-BTC -> KRW).
func QuoteOf(market string) string {
	if i := strings.IndexByte(market, '-'); i >= 0 {
		return market[:i]
	}
	return ""
}
