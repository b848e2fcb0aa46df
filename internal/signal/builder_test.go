package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	market "signal-engine/pkg/market/upbit"
)

type stubCandles struct {
	candles []market.Candle
	err     error
	unit    int
	count   int
}

func (s *stubCandles) GetMinuteCandles(_ context.Context, _ string, unit, count int) ([]market.Candle, error) {
	s.unit, s.count = unit, count
	return s.candles, s.err
}

func rising(n int) []market.Candle {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = market.Candle{
			Market: "KRW-BTC",
			Start:  start.Add(time.Duration(i) * 3 * time.Minute),
			Open:   p, High: p + 1, Low: p - 1, Close: p, Volume: 10,
		}
	}
	return out
}

func TestBuilderBuild(t *testing.T) {
	tests := []struct {
		name      string
		candles   int
		wantReady bool
	}{
		{"full lookback", 60, true},
		{"short history", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubCandles{candles: rising(tt.candles)}
			snap, err := NewBuilder(src, 3, 60).Build(context.Background(), "KRW-BTC")
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if src.unit != 3 || src.count != 60 {
				t.Errorf("requested unit=%d count=%d", src.unit, src.count)
			}
			if snap.Market != "KRW-BTC" || snap.Ready != tt.wantReady {
				t.Errorf("snapshot market=%s ready=%v", snap.Market, snap.Ready)
			}
			if want := 100 + float64(tt.candles-1); snap.Price != want {
				t.Errorf("price = %v, want %v", snap.Price, want)
			}
		})
	}
}

func TestBuilderPropagatesFetchError(t *testing.T) {
	boom := errors.New("429 too many requests")
	_, err := NewBuilder(&stubCandles{err: boom}, 1, 200).Build(context.Background(), "KRW-ETH")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped fetch error", err)
	}
}

func TestNewBuilderDefaults(t *testing.T) {
	b := NewBuilder(&stubCandles{}, 0, 0)
	if b.unit != 1 || b.count != 200 {
		t.Errorf("defaults unit=%d count=%d", b.unit, b.count)
	}
}
