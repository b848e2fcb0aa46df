package market

import "time"

// Candle is one OHLCV bar.
type Candle struct {
	Market string
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Ticker is the latest trade summary of a market.
type Ticker struct {
	Market    string
	Price     float64
	Volume24h float64
	Timestamp time.Time
}

type candleResponse struct {
	Market       string  `json:"market"`
	DateTimeUTC  string  `json:"candle_date_time_utc"`
	OpeningPrice float64 `json:"opening_price"`
	HighPrice    float64 `json:"high_price"`
	LowPrice     float64 `json:"low_price"`
	TradePrice   float64 `json:"trade_price"`
	Volume       float64 `json:"candle_acc_trade_volume"`
}

type tickerResponse struct {
	Market      string  `json:"market"`
	Code        string  `json:"code"` // websocket field name
	TradePrice  float64 `json:"trade_price"`
	AccVolume24 float64 `json:"acc_trade_volume_24h"`
	Timestamp   int64   `json:"timestamp"`
}

func (t tickerResponse) toTicker() Ticker {
	m := t.Market
	if m == "" {
		m = t.Code
	}
	ts := time.Now()
	if t.Timestamp > 0 {
		ts = time.UnixMilli(t.Timestamp)
	}
	return Ticker{
		Market:    m,
		Price:     t.TradePrice,
		Volume24h: t.AccVolume24,
		Timestamp: ts,
	}
}

// ValidMinuteUnit reports whether the exchange serves minute candles of unit.
func ValidMinuteUnit(unit int) bool {
	switch unit {
	case 1, 3, 5, 10, 15, 30, 60, 240:
		return true
	}
	return false
}
