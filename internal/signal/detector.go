package signal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/internal/indicators"
	"signal-engine/pkg/cache"
	"signal-engine/pkg/db"
)

// State is the persisted reversal evidence of one market. DropCount feeds
// the buy family, PopCount the sell family.
type State = db.MarketSignal

// Store persists market state with read-modify-write semantics.
type Store interface {
	GetMarketSignal(ctx context.Context, market string) (db.MarketSignal, error)
	UpdateMarketSignal(ctx context.Context, market string, fn func(*db.MarketSignal) error) (db.MarketSignal, error)
}

// Config tunes the detector. Zero fields take defaults.
type Config struct {
	Window         time.Duration // counters expire after this long without an event
	MinCount       int           // counter needed to arm a trigger
	ADXThreshold   float64
	ATRContraction float64 // gate passes when ATR <= prev * ATRContraction
	VolumeSurge    float64
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 10 * time.Minute
	}
	if c.MinCount <= 0 {
		c.MinCount = 10
	}
	if c.ADXThreshold <= 0 {
		c.ADXThreshold = 25
	}
	if c.ATRContraction <= 0 {
		c.ATRContraction = 0.95
	}
	if c.VolumeSurge <= 0 {
		c.VolumeSurge = 1.3
	}
	return c
}

// Result is the outcome of one detection family for one evaluation.
type Result struct {
	Triggered   bool
	Strength    float64
	Count       int // counter after this evaluation
	Vetoed      bool
	Confirmed   bool // oscillator stage passed
	VolumeSurge bool
	Divergence  bool
}

// Evaluation bundles a snapshot with both family results.
type Evaluation struct {
	Snapshot Snapshot
	Up       Result
	Down     Result
	ATRGate  bool
}

// Result returns the family result for side.
func (e Evaluation) Result(side Side) Result {
	if side == Sell {
		return e.Down
	}
	return e.Up
}

// Detector runs the two mirrored reversal pipelines. All state changes of a
// market happen under that market's lock inside one store transaction.
type Detector struct {
	store Store
	locks *cache.KeyedMutex
	cfg   Config
	now   func() time.Time
	log   zerolog.Logger

	// HigherTimeframe can veto a trigger; nil passes.
	HigherTimeframe func(ctx context.Context, snap Snapshot, side Side) bool
}

func NewDetector(store Store, locks *cache.KeyedMutex, cfg Config, log zerolog.Logger) *Detector {
	if locks == nil {
		locks = cache.NewKeyedMutex()
	}
	return &Detector{
		store: store,
		locks: locks,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		log:   log.With().Str("component", "detector").Logger(),
	}
}

// Evaluate advances the state of snap.Market and returns both results.
func (d *Detector) Evaluate(ctx context.Context, snap Snapshot) (Evaluation, error) {
	if snap.Market == "" {
		return Evaluation{}, errors.New("snapshot has no market")
	}
	unlock := d.locks.Lock(snap.Market)
	defer unlock()

	eval := Evaluation{Snapshot: snap}
	now := d.now()
	_, err := d.store.UpdateMarketSignal(ctx, snap.Market, func(st *State) error {
		d.sweep(st, now)
		if !snap.Ready {
			eval.Up.Count, eval.Down.Count = st.DropCount, st.PopCount
			return nil
		}

		atr := snap.Ind.ATR
		gate, contraction := d.atrGate(st.PreviousATR, atr)
		eval.ATRGate = gate

		eval.Up = d.family(ctx, snap, Buy, st, now, gate, contraction)
		eval.Down = d.family(ctx, snap, Sell, st, now, gate, contraction)

		if atr > 0 {
			st.PreviousATR = &atr
		}
		return nil
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", snap.Market, err)
	}

	for _, r := range []struct {
		side Side
		res  Result
	}{{Buy, eval.Up}, {Sell, eval.Down}} {
		if r.res.Triggered {
			d.log.Info().Str("market", snap.Market).Stringer("side", r.side).
				Float64("strength", r.res.Strength).Bool("divergence", r.res.Divergence).
				Bool("volume_surge", r.res.VolumeSurge).Msg("reversal triggered")
		}
	}
	return eval, nil
}

// sweep resets any counter whose last event is older than the window.
func (d *Detector) sweep(st *State, now time.Time) {
	if st.LastDropAt != nil && now.Sub(*st.LastDropAt) > d.cfg.Window {
		st.DropCount, st.LastDropAt = 0, nil
	}
	if st.LastPopAt != nil && now.Sub(*st.LastPopAt) > d.cfg.Window {
		st.PopCount, st.LastPopAt = 0, nil
	}
}

// atrGate reports whether volatility contracted enough, and by how much.
// The first observation passes; an uncomputed ATR skips the gate.
func (d *Detector) atrGate(prev *float64, atr float64) (bool, float64) {
	if atr <= 0 || prev == nil || *prev <= 0 {
		return true, 0
	}
	if atr > *prev*d.cfg.ATRContraction {
		return false, 0
	}
	return true, (*prev - atr) / *prev
}

func (d *Detector) family(ctx context.Context, snap Snapshot, side Side, st *State, now time.Time, gate bool, contraction float64) Result {
	count, last := &st.DropCount, &st.LastDropAt
	flip := &st.LastFlipUpAt
	if side == Sell {
		count, last = &st.PopCount, &st.LastPopAt
		flip = &st.LastFlipDownAt
	}

	res := Result{Count: *count}
	if d.trendVeto(snap.Ind, side) {
		res.Vetoed = true
		return res
	}
	if !gate {
		return res
	}

	v := snap.Ind
	res.Confirmed = oscillatorConfirmed(snap, side)
	res.VolumeSurge = v.VolumeAverage > 0 && snap.Volume >= v.VolumeAverage*d.cfg.VolumeSurge
	res.Divergence = divergence(snap, side)

	if res.Confirmed {
		inc := 1
		if res.VolumeSurge {
			inc = 2
		}
		*count += inc
		t := now
		*last = &t
	}
	res.Count = *count

	armed := *count >= d.cfg.MinCount && *last != nil && now.Sub(**last) <= d.cfg.Window
	if !armed {
		return res
	}
	extra := rsiCrossBack(v.PrevRSI, v.RSI, side) || res.Divergence ||
		(stochExtreme(v.StochK, v.StochD, side) && res.VolumeSurge)
	if !extra {
		return res
	}
	if d.HigherTimeframe != nil && !d.HigherTimeframe(ctx, snap, side) {
		return res
	}

	strength := 0.3 * CountStrength(*count, 1, d.cfg.MinCount)
	if res.Divergence {
		strength += 0.3
	}
	if res.VolumeSurge {
		strength += 0.2
	}
	if res.Confirmed {
		strength += 0.15
	}
	strength += math.Min(0.05, contraction*0.5)

	*count = d.cfg.MinCount
	t := now
	*flip = &t

	res.Triggered = true
	res.Strength = clamp01(strength)
	res.Count = *count
	return res
}

// trendVeto reports a strong trend against the reversal direction.
func (d *Detector) trendVeto(v indicators.Values, side Side) bool {
	if side == Buy {
		if v.ADX > d.cfg.ADXThreshold && v.MinusDI > v.PlusDI {
			return true
		}
		return emaComputed(v) && v.EMA20 < v.EMA60 && v.EMA60 < v.EMA120
	}
	if v.ADX > d.cfg.ADXThreshold && v.PlusDI > v.MinusDI {
		return true
	}
	return emaComputed(v) && v.EMA20 > v.EMA60 && v.EMA60 > v.EMA120
}

func emaComputed(v indicators.Values) bool {
	return v.EMA20 > 0 && v.EMA60 > 0 && v.EMA120 > 0
}

// adjustedRSI widens the RSI threshold in high volatility and tightens it
// in low volatility.
func adjustedRSI(v indicators.Values, side Side) float64 {
	buy, sell := RSIOversold, RSIOverbought
	if v.ATRAverage > 0 && v.ATR > 0 {
		switch {
		case v.ATR >= 1.5*v.ATRAverage:
			buy, sell = 35, 65
		case v.ATR <= 0.7*v.ATRAverage:
			buy, sell = 25, 75
		}
	}
	if side == Sell {
		return sell
	}
	return buy
}

func oscillatorConfirmed(snap Snapshot, side Side) bool {
	v := snap.Ind
	threshold := adjustedRSI(v, side)
	if side == Buy {
		return (snap.RSIBuy && snap.BBBuy) || (v.RSI < threshold && stochExtreme(v.StochK, v.StochD, Buy))
	}
	return (snap.RSISell && snap.BBSell) || (v.RSI > threshold && stochExtreme(v.StochK, v.StochD, Sell))
}

func stochExtreme(k, d float64, side Side) bool {
	if side == Buy {
		return k < 20 && d < 20
	}
	return k > 80 && d > 80
}

func rsiCrossBack(prev, cur float64, side Side) bool {
	if side == Buy {
		return prev < RSIOversold && cur >= RSIOversold
	}
	return prev > RSIOverbought && cur <= RSIOverbought
}

// divergence: price breaks the prior 20-bar extreme while RSI does not.
func divergence(snap Snapshot, side Side) bool {
	v := snap.Ind
	if side == Buy {
		return v.LowestClose > 0 && snap.Price < v.LowestClose && v.RSI > v.RSIAtLowest
	}
	return v.HighestClose > 0 && snap.Price > v.HighestClose && v.RSI < v.RSIAtHighest
}

// ResetReversalUp clears the buy-family counter of market.
func (d *Detector) ResetReversalUp(ctx context.Context, market string) error {
	unlock := d.locks.Lock(market)
	defer unlock()
	_, err := d.store.UpdateMarketSignal(ctx, market, func(st *State) error {
		st.DropCount, st.LastDropAt = 0, nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset reversal up %s: %w", market, err)
	}
	return nil
}

// State returns the stored state of market, empty if never evaluated.
func (d *Detector) State(ctx context.Context, market string) (State, error) {
	st, err := d.store.GetMarketSignal(ctx, market)
	if errors.Is(err, db.ErrNotFound) {
		return State{Market: market}, nil
	}
	return st, err
}
