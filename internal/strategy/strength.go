package strategy

import (
	"math"

	"signal-engine/internal/signal"
)

// DetailedStrength averages the per-indicator strengths over the
// indicators that currently signal side. No active indicator scores 0.
func DetailedStrength(snap signal.Snapshot, side signal.Side) float64 {
	bb, rsi, macd := snap.Signals(side)
	total, n := 0.0, 0
	if bb {
		total += bandStrength(snap, side)
		n++
	}
	if rsi {
		total += rsiStrength(snap.Ind.RSI, side)
		n++
	}
	if macd {
		total += macdStrength(snap.Ind.MACD, snap.Ind.MACDHist)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// blendedStrength mixes agreement count with detailed strength.
func blendedStrength(e signal.Evaluation, side signal.Side) float64 {
	base := float64(e.Snapshot.AgreeCount(side)) / 3
	return (base + DetailedStrength(e.Snapshot, side)) / 2
}

// bandStrength measures how far price broke through the band, relative to
// the half band width.
func bandStrength(snap signal.Snapshot, side signal.Side) float64 {
	v, p := snap.Ind, snap.Price
	if side == signal.Buy {
		width := v.BBMiddle - v.BBLower
		if p >= v.BBLower || width <= 0 {
			return 0
		}
		return math.Min((v.BBLower-p)/width, 1)
	}
	width := v.BBUpper - v.BBMiddle
	if p <= v.BBUpper || width <= 0 {
		return 0
	}
	return math.Min((p-v.BBUpper)/width, 1)
}

func rsiStrength(rsi float64, side signal.Side) float64 {
	if side == signal.Buy {
		if rsi < signal.RSIOversold {
			return (signal.RSIOversold - rsi) / signal.RSIOversold
		}
		return 0
	}
	if rsi > signal.RSIOverbought {
		return (rsi - signal.RSIOverbought) / (100 - signal.RSIOverbought)
	}
	return 0
}

func macdStrength(macd, hist float64) float64 {
	if macd == 0 {
		return 0.5
	}
	return math.Min(math.Abs(hist)/(math.Abs(macd)*0.01), 1)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
