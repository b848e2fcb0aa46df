package strategy

import (
	"errors"

	"signal-engine/internal/signal"
	"signal-engine/pkg/i18n"
)

// ID names a strategy in bot settings.
type ID string

const (
	ExtremeFlip        ID = "EXTREME_FLIP"
	DropNFlip          ID = "DROP_N_FLIP"
	BBRSICombo         ID = "BB_RSI_COMBO"
	RSIMACDCombo       ID = "RSI_MACD_COMBO"
	BBMACDCombo        ID = "BB_MACD_COMBO"
	TripleConservative ID = "TRIPLE_INDICATOR_CONSERVATIVE"
	TripleModerate     ID = "TRIPLE_INDICATOR_MODERATE"
	TripleAggressive   ID = "TRIPLE_INDICATOR_AGGRESSIVE"

	// Fallback serves ids the registry does not know.
	Fallback = TripleModerate
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy decides one side of a trade from a detector evaluation and
// scores it in [0,1].
type Strategy struct {
	ID       ID
	LabelKey string // i18n message key

	Decide   func(e signal.Evaluation, side signal.Side) bool
	Strength func(e signal.Evaluation, side signal.Side) float64
}

// Label returns the localized display name.
func (s Strategy) Label() string {
	return i18n.Get(s.LabelKey)
}

// Decision is the outcome of applying a strategy to one side of a market.
type Decision struct {
	Strategy ID
	Market   string
	Side     signal.Side
	Act      bool
	Strength float64
}
