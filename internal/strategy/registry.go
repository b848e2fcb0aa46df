package strategy

import (
	"fmt"
	"sort"
	"sync"

	"signal-engine/internal/signal"
)

// Registry maps strategy ids to their rules.
type Registry struct {
	mu         sync.RWMutex
	strategies map[ID]Strategy
}

// NewRegistry returns a registry holding every built-in strategy.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[ID]Strategy)}
	for _, s := range builtins() {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID] = s
}

// Lookup returns the strategy registered under id.
func (r *Registry) Lookup(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[ID(id)]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
	return s, nil
}

// Resolve is Lookup with the moderate fallback. When id is unknown the
// fallback is returned together with an error wrapping ErrUnknownStrategy,
// so callers can log it and carry on.
func (r *Registry) Resolve(id string) (Strategy, error) {
	s, err := r.Lookup(id)
	if err == nil {
		return s, nil
	}
	fb, ferr := r.Lookup(string(Fallback))
	if ferr != nil {
		return Strategy{}, ferr
	}
	return fb, err
}

// List returns every registered strategy sorted by id.
func (r *Registry) List() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Decide applies s to one side of the evaluation. An unready snapshot never
// acts.
func Decide(s Strategy, e signal.Evaluation, side signal.Side) Decision {
	d := Decision{Strategy: s.ID, Market: e.Snapshot.Market, Side: side}
	if !e.Snapshot.Ready || !s.Decide(e, side) {
		return d
	}
	d.Act = true
	d.Strength = clamp01(s.Strength(e, side))
	return d
}

func builtins() []Strategy {
	return []Strategy{
		{
			ID:       ExtremeFlip,
			LabelKey: "StrategyExtremeFlip",
			Decide:   func(e signal.Evaluation, side signal.Side) bool { return e.Result(side).Triggered },
			Strength: func(e signal.Evaluation, side signal.Side) float64 { return e.Result(side).Strength },
		},
		{
			ID:       DropNFlip,
			LabelKey: "StrategyDropNFlip",
			Decide:   func(e signal.Evaluation, side signal.Side) bool { return e.Result(side).Triggered },
			// Counter only; the composite bonuses are ignored.
			Strength: func(e signal.Evaluation, side signal.Side) float64 {
				return signal.CountStrength(e.Result(side).Count, 1, dropNFlipMaxCount)
			},
		},
		combo(BBRSICombo, "StrategyBBRSI", func(bb, rsi, _ bool) bool { return bb && rsi }),
		combo(RSIMACDCombo, "StrategyRSIMACD", func(_, rsi, macd bool) bool { return rsi && macd }),
		combo(BBMACDCombo, "StrategyBBMACD", func(bb, _, macd bool) bool { return bb && macd }),
		{
			ID:       TripleConservative,
			LabelKey: "StrategyConservative",
			Decide:   agreeAtLeast(3),
			Strength: func(e signal.Evaluation, side signal.Side) float64 {
				if e.Snapshot.AgreeCount(side) == 3 {
					return 1
				}
				return 0
			},
		},
		{
			ID:       TripleModerate,
			LabelKey: "StrategyModerate",
			Decide:   agreeAtLeast(2),
			Strength: blendedStrength,
		},
		{
			ID:       TripleAggressive,
			LabelKey: "StrategyAggressive",
			Decide:   agreeAtLeast(1),
			Strength: blendedStrength,
		},
	}
}

func combo(id ID, label string, rule func(bb, rsi, macd bool) bool) Strategy {
	return Strategy{
		ID:       id,
		LabelKey: label,
		Decide: func(e signal.Evaluation, side signal.Side) bool {
			return rule(e.Snapshot.Signals(side))
		},
		Strength: func(e signal.Evaluation, side signal.Side) float64 {
			return DetailedStrength(e.Snapshot, side)
		},
	}
}

func agreeAtLeast(n int) func(signal.Evaluation, signal.Side) bool {
	return func(e signal.Evaluation, side signal.Side) bool {
		return e.Snapshot.AgreeCount(side) >= n
	}
}

const dropNFlipMaxCount = 7
