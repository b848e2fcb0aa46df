package signal

import (
	"context"
	"fmt"
	"time"

	"signal-engine/internal/indicators"
	market "signal-engine/pkg/market/upbit"
)

// CandleSource supplies minute candles, oldest first.
type CandleSource interface {
	GetMinuteCandles(ctx context.Context, market string, unit, count int) ([]market.Candle, error)
}

// Builder fetches candles and assembles snapshots.
type Builder struct {
	candles CandleSource
	unit    int
	count   int
	now     func() time.Time
}

func NewBuilder(candles CandleSource, unit, count int) *Builder {
	if unit <= 0 {
		unit = 1
	}
	if count <= 0 {
		count = 200
	}
	return &Builder{candles: candles, unit: unit, count: count, now: time.Now}
}

// Build returns the snapshot of mkt at the current time. A short series
// yields a snapshot with Ready=false, not an error.
func (b *Builder) Build(ctx context.Context, mkt string) (Snapshot, error) {
	candles, err := b.candles.GetMinuteCandles(ctx, mkt, b.unit, b.count)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch candles: %w", err)
	}
	interval := time.Duration(b.unit) * time.Minute
	bars := make([]indicators.Bar, 0, len(candles))
	for _, c := range candles {
		bars = append(bars, indicators.Bar{
			Start:  c.Start,
			End:    c.Start.Add(interval),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	series, err := indicators.NewSeries(bars)
	if err != nil {
		return Snapshot{}, fmt.Errorf("series %s: %w", mkt, err)
	}
	return NewSnapshot(mkt, series, b.now()), nil
}
