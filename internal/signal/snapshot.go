// Package signal turns candle series into per-market snapshots and runs the
// stateful reversal detector over them.
package signal

import (
	"time"

	"signal-engine/internal/indicators"
)

const (
	RSIOversold   = 30.0
	RSIOverbought = 70.0

	bbLowerTolerance = 1.02 // buy within 2% above the lower band
	bbUpperTolerance = 0.98 // sell within 2% below the upper band
)

// Side selects a detection family.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Snapshot is the immutable view of one market at one evaluation.
type Snapshot struct {
	Market string
	At     time.Time
	Price  float64
	Volume float64

	// Ready is false when the series was too short; every signal is then off.
	Ready bool
	Ind   indicators.Values

	BBBuy    bool
	BBSell   bool
	RSIBuy   bool
	RSISell  bool
	MACDBuy  bool
	MACDSell bool
}

// NewSnapshot computes indicators over series and derives the
// per-indicator signals.
func NewSnapshot(market string, series indicators.Series, at time.Time) Snapshot {
	snap := Snapshot{Market: market, At: at}
	last, ok := series.Last()
	if !ok {
		return snap
	}
	snap.Price = last.Close
	snap.Volume = last.Volume
	snap.Ind = indicators.Compute(series)
	snap.Ready = series.Ready()
	if !snap.Ready {
		return snap
	}

	v := snap.Ind
	p := snap.Price

	bbBuy := v.BBLower > 0 && p <= v.BBLower*bbLowerTolerance && p < v.BBMiddle
	bbSell := v.BBUpper > 0 && p >= v.BBUpper*bbUpperTolerance && p > v.BBMiddle
	snap.BBBuy, snap.BBSell = resolve(bbBuy, bbSell, p > v.BBMiddle)

	snap.RSIBuy, snap.RSISell = resolve(v.RSI < RSIOversold, v.RSI > RSIOverbought, v.RSI > 50)

	prevHist := v.PrevMACD - v.PrevMACDSignal
	crossUp := v.PrevMACD < v.PrevMACDSignal && v.MACD > v.MACDSignal
	crossDown := v.PrevMACD > v.PrevMACDSignal && v.MACD < v.MACDSignal
	macdBuy := crossUp || (v.MACDHist > prevHist && v.MACD > 0)
	macdSell := crossDown || (v.MACDHist < prevHist && v.MACD < 0)
	snap.MACDBuy, snap.MACDSell = resolve(macdBuy, macdSell, v.MACD < 0)

	return snap
}

// resolve keeps at most one of buy/sell; sellWins decides a conflict.
func resolve(buy, sell, sellWins bool) (bool, bool) {
	if buy && sell {
		return !sellWins, sellWins
	}
	return buy, sell
}

// Signals returns the (BB, RSI, MACD) flags for side.
func (s Snapshot) Signals(side Side) (bb, rsi, macd bool) {
	if side == Sell {
		return s.BBSell, s.RSISell, s.MACDSell
	}
	return s.BBBuy, s.RSIBuy, s.MACDBuy
}

// AgreeCount is how many of the three indicators signal side.
func (s Snapshot) AgreeCount(side Side) int {
	bb, rsi, macd := s.Signals(side)
	n := 0
	for _, b := range []bool{bb, rsi, macd} {
		if b {
			n++
		}
	}
	return n
}
