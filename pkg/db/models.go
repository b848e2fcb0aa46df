package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUserIDRequired    = errors.New("user_id is required")
	ErrInvalidTransition = errors.New("trade is not in WAIT status")
	ErrInvalidSetting    = errors.New("invalid bot setting")
)

// User is an account whose bot may trade. Keys are stored encrypted.
type User struct {
	ID        string
	Username  string
	AccessKey string
	SecretKey string
}

// BotSetting is the per-user trading configuration.
type BotSetting struct {
	UserID       string
	BuyStrategy  string
	SellStrategy string
	Markets      []string

	BuyBaseAmount  float64
	BuyMaxAmount   float64
	SellBaseAmount float64
	SellMaxAmount  float64

	LossThreshold   float64
	ProfitThreshold float64
	LossSellRatio   float64
	ProfitSellRatio float64

	TimeoutSellMinutes     int
	TimeoutSellProfitRatio float64

	LossManagementActive bool
	ProfitTakingActive   bool
	TimeoutSellActive    bool

	Active    bool
	StartTime time.Time
	EndTime   time.Time // zero means no end
}

// Validate reports settings the engine cannot act on.
func (s BotSetting) Validate() error {
	switch {
	case s.UserID == "":
		return ErrUserIDRequired
	case s.BuyStrategy == "" || s.SellStrategy == "":
		return fmt.Errorf("%w: buy and sell strategy are required", ErrInvalidSetting)
	case len(s.Markets) == 0:
		return fmt.Errorf("%w: no markets configured", ErrInvalidSetting)
	case s.BuyBaseAmount <= 0 || s.BuyMaxAmount < s.BuyBaseAmount:
		return fmt.Errorf("%w: buy amounts base=%v max=%v", ErrInvalidSetting, s.BuyBaseAmount, s.BuyMaxAmount)
	case s.SellBaseAmount <= 0 || s.SellMaxAmount < s.SellBaseAmount:
		return fmt.Errorf("%w: sell amounts base=%v max=%v", ErrInvalidSetting, s.SellBaseAmount, s.SellMaxAmount)
	case s.LossSellRatio < 0 || s.LossSellRatio > 1 || s.ProfitSellRatio < 0 || s.ProfitSellRatio > 1:
		return fmt.Errorf("%w: sell ratios must be within [0,1]", ErrInvalidSetting)
	case s.LossThreshold < 0 || s.ProfitThreshold < 0:
		return fmt.Errorf("%w: thresholds must not be negative", ErrInvalidSetting)
	case s.TimeoutSellActive && s.TimeoutSellMinutes <= 0:
		return fmt.Errorf("%w: timeout sell minutes must be positive", ErrInvalidSetting)
	}
	return nil
}

// RunningAt reports whether the bot window covers t.
func (s BotSetting) RunningAt(t time.Time) bool {
	if !s.Active {
		return false
	}
	if !s.StartTime.IsZero() && t.Before(s.StartTime) {
		return false
	}
	if !s.EndTime.IsZero() && !t.Before(s.EndTime) {
		return false
	}
	return true
}

// ActiveUser pairs a user with the bot setting that makes them active.
type ActiveUser struct {
	User    User
	Setting BotSetting
}

// TradeStatus is the local lifecycle of an exchange order.
type TradeStatus string

const (
	TradeWait   TradeStatus = "WAIT"
	TradeWatch  TradeStatus = "WATCH" // reserved
	TradeDone   TradeStatus = "DONE"
	TradeCancel TradeStatus = "CANCEL"
)

// Terminal reports whether no further transition is allowed.
func (s TradeStatus) Terminal() bool {
	return s == TradeDone || s == TradeCancel
}

// TradeType is the order side in exchange terms.
type TradeType string

const (
	TradeBid TradeType = "BID"
	TradeAsk TradeType = "ASK"
)

// Trade records one order placed by the engine.
type Trade struct {
	ID           string
	UserID       string
	Market       string
	Type         TradeType
	OrderID      string
	Price        decimal.Decimal
	Amount       decimal.Decimal
	TotalPrice   decimal.Decimal
	Status       TradeStatus
	Strategy     string
	SignalOrigin string
	ExecutedAt   time.Time
	UpdatedAt    time.Time
}

// MarketSignal is the persisted reversal evidence for one market.
type MarketSignal struct {
	Market         string
	DropCount      int
	PopCount       int
	LastDropAt     *time.Time
	LastPopAt      *time.Time
	LastFlipUpAt   *time.Time
	LastFlipDownAt *time.Time
	PreviousATR    *float64
}
