package upbit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"signal-engine/pkg/exchanges/common"
)

// APIError is an error response from the exchange.
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upbit: status %d %s: %s", e.Status, e.Name, e.Message)
}

// Retryable reports whether the call may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

type errorEnvelope struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

type accountResponse struct {
	Currency     string          `json:"currency"`
	Balance      decimal.Decimal `json:"balance"`
	Locked       decimal.Decimal `json:"locked"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	UnitCurrency string          `json:"unit_currency"`
}

func (a accountResponse) toAccount() common.Account {
	return common.Account{
		Currency:     a.Currency,
		Balance:      a.Balance,
		Locked:       a.Locked,
		AvgBuyPrice:  a.AvgBuyPrice,
		UnitCurrency: a.UnitCurrency,
	}
}

type orderChanceResponse struct {
	BidFee decimal.Decimal `json:"bid_fee"`
	AskFee decimal.Decimal `json:"ask_fee"`
	Market struct {
		ID  string `json:"id"`
		Bid struct {
			Currency string          `json:"currency"`
			MinTotal decimal.Decimal `json:"min_total"`
		} `json:"bid"`
		Ask struct {
			Currency string          `json:"currency"`
			MinTotal decimal.Decimal `json:"min_total"`
		} `json:"ask"`
	} `json:"market"`
	BidAccount accountResponse `json:"bid_account"`
	AskAccount accountResponse `json:"ask_account"`
}

type orderResponse struct {
	UUID            string              `json:"uuid"`
	Side            string              `json:"side"`
	OrdType         string              `json:"ord_type"`
	Price           decimal.NullDecimal `json:"price"`
	State           string              `json:"state"`
	Market          string              `json:"market"`
	CreatedAt       time.Time           `json:"created_at"`
	Volume          decimal.NullDecimal `json:"volume"`
	RemainingVolume decimal.NullDecimal `json:"remaining_volume"`
	ExecutedVolume  decimal.NullDecimal `json:"executed_volume"`
}

func (o orderResponse) toOrder() common.Order {
	return common.Order{
		UUID:            o.UUID,
		Market:          o.Market,
		Side:            common.Side(o.Side),
		Type:            common.OrderType(o.OrdType),
		State:           common.OrderState(o.State),
		Price:           o.Price.Decimal,
		Volume:          o.Volume.Decimal,
		RemainingVolume: o.RemainingVolume.Decimal,
		ExecutedVolume:  o.ExecutedVolume.Decimal,
		CreatedAt:       o.CreatedAt,
	}
}

// orderBody keeps the field order used for the query hash.
type orderBody struct {
	Market     string `json:"market"`
	Side       string `json:"side"`
	Volume     string `json:"volume,omitempty"`
	Price      string `json:"price,omitempty"`
	OrdType    string `json:"ord_type"`
	Identifier string `json:"identifier,omitempty"`
}
