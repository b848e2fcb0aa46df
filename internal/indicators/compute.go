package indicators

import (
	"github.com/markcheno/go-talib"
)

const (
	RSIPeriod        = 14
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignalPeriod = 9
	BBPeriod         = 20
	BBDeviation      = 2.0
	ADXPeriod        = 14
	ATRPeriod        = 14
	StochFastK       = 14
	StochSlowK       = 3
	StochSlowD       = 3
	VolumeLookback   = 20
	ExtremeLookback  = 20
)

// Values holds the latest value of every indicator. A field is zero when
// the series is too short for it.
type Values struct {
	RSI     float64
	PrevRSI float64

	MACD           float64
	MACDSignal     float64
	MACDHist       float64
	PrevMACD       float64
	PrevMACDSignal float64

	BBUpper  float64
	BBMiddle float64
	BBLower  float64

	ADX     float64
	PlusDI  float64
	MinusDI float64

	ATR        float64
	ATRAverage float64 // mean high-low range over ATRPeriod bars

	StochK float64
	StochD float64

	EMA20  float64
	EMA50  float64
	EMA60  float64
	EMA120 float64
	EMA200 float64

	VolumeAverage float64 // excludes the current bar

	// Reference points over the ExtremeLookback bars before the current one.
	// Zero until RSI covers that whole window.
	LowestClose  float64
	HighestClose float64
	RSIAtLowest  float64
	RSIAtHighest float64
}

// Compute derives all indicator values from s. It never panics on short
// input; missing values stay zero.
func Compute(s Series) Values {
	var v Values
	n := s.Len()
	if n == 0 {
		return v
	}
	closes := s.Closes()
	highs := s.Highs()
	lows := s.Lows()
	volumes := s.Volumes()

	var rsi []float64
	if n > RSIPeriod {
		rsi = talib.Rsi(closes, RSIPeriod)
		v.RSI = rsi[n-1]
		if n > RSIPeriod+1 {
			v.PrevRSI = rsi[n-2]
		}
	}

	if n >= MACDSlow+MACDSignalPeriod {
		macd, signal, hist := talib.Macd(closes, MACDFast, MACDSlow, MACDSignalPeriod)
		v.MACD, v.MACDSignal, v.MACDHist = macd[n-1], signal[n-1], hist[n-1]
		v.PrevMACD, v.PrevMACDSignal = macd[n-2], signal[n-2]
	}

	if n >= BBPeriod {
		upper, middle, lower := talib.BBands(closes, BBPeriod, BBDeviation, BBDeviation, talib.SMA)
		v.BBUpper, v.BBMiddle, v.BBLower = upper[n-1], middle[n-1], lower[n-1]
	}

	if n >= 2*ADXPeriod+1 {
		v.ADX = talib.Adx(highs, lows, closes, ADXPeriod)[n-1]
		v.PlusDI = talib.PlusDI(highs, lows, closes, ADXPeriod)[n-1]
		v.MinusDI = talib.MinusDI(highs, lows, closes, ADXPeriod)[n-1]
	}

	if n > ATRPeriod {
		v.ATR = talib.Atr(highs, lows, closes, ATRPeriod)[n-1]
	}
	if n >= ATRPeriod {
		v.ATRAverage = meanRange(highs[n-ATRPeriod:], lows[n-ATRPeriod:])
	}

	if n >= StochFastK+StochSlowK+StochSlowD {
		k, d := talib.Stoch(highs, lows, closes, StochFastK, StochSlowK, talib.SMA, StochSlowD, talib.SMA)
		v.StochK, v.StochD = k[n-1], d[n-1]
	}

	v.EMA20 = lastEMA(closes, 20)
	v.EMA50 = lastEMA(closes, 50)
	v.EMA60 = lastEMA(closes, 60)
	v.EMA120 = lastEMA(closes, 120)
	v.EMA200 = lastEMA(closes, 200)

	if n > VolumeLookback {
		v.VolumeAverage = mean(volumes[n-1-VolumeLookback : n-1])
	}

	// References need a computed RSI at every bar of the window.
	if rsi != nil && n-1-ExtremeLookback >= RSIPeriod {
		lo, hi := n-1-ExtremeLookback, n-1
		minIdx, maxIdx := lo, lo
		for i := lo; i < hi; i++ {
			if closes[i] < closes[minIdx] {
				minIdx = i
			}
			if closes[i] > closes[maxIdx] {
				maxIdx = i
			}
		}
		v.LowestClose, v.HighestClose = closes[minIdx], closes[maxIdx]
		v.RSIAtLowest, v.RSIAtHighest = rsi[minIdx], rsi[maxIdx]
	}
	return v
}

func lastEMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	return talib.Ema(closes, period)[len(closes)-1]
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanRange(highs, lows []float64) float64 {
	sum := 0.0
	for i := range highs {
		sum += highs[i] - lows[i]
	}
	return sum / float64(len(highs))
}
