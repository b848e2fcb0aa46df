// Package indicators computes technical indicators over candle series.
package indicators

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// MinBars is the shortest series the engine considers ready.
const MinBars = 30

var ErrDuplicateBar = errors.New("duplicate bar start time")

// Bar is one OHLCV candle.
type Bar struct {
	Start  time.Time
	End    time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is an immutable, strictly time-ordered run of bars.
type Series struct {
	bars []Bar
}

// NewSeries sorts bars by start time and rejects duplicates. The input
// slice is not modified.
func NewSeries(bars []Bar) (Series, error) {
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Start.Before(cp[j].Start) })
	for i := 1; i < len(cp); i++ {
		if !cp[i].Start.After(cp[i-1].Start) {
			return Series{}, fmt.Errorf("%w: %s", ErrDuplicateBar, cp[i].Start.Format(time.RFC3339))
		}
	}
	return Series{bars: cp}, nil
}

func (s Series) Len() int { return len(s.bars) }

// Ready reports whether the series is long enough for indicators.
func (s Series) Ready() bool { return len(s.bars) >= MinBars }

// Last returns the most recent bar.
func (s Series) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

func (s Series) column(f func(Bar) float64) []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = f(b)
	}
	return out
}

func (s Series) Closes() []float64  { return s.column(func(b Bar) float64 { return b.Close }) }
func (s Series) Highs() []float64   { return s.column(func(b Bar) float64 { return b.High }) }
func (s Series) Lows() []float64    { return s.column(func(b Bar) float64 { return b.Low }) }
func (s Series) Volumes() []float64 { return s.column(func(b Bar) float64 { return b.Volume }) }
