package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/internal/events"
	"signal-engine/internal/monitor"
	"signal-engine/internal/order"
	"signal-engine/internal/scheduler"
	"signal-engine/internal/signal"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/db"
)

type UserSource interface {
	FindActiveUsers(ctx context.Context, now time.Time) ([]db.ActiveUser, error)
}

type SnapshotBuilder interface {
	Build(ctx context.Context, market string) (signal.Snapshot, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, snap signal.Snapshot) (signal.Evaluation, error)
}

// Executor sizes and submits a decision (order.Coordinator).
type Executor interface {
	Execute(ctx context.Context, user db.ActiveUser, d strategy.Decision, price float64) (db.Trade, error)
}

type PriceSource interface {
	CurrentPrice(ctx context.Context, market string) (float64, error)
}

// Recorder receives every evaluation; the InfluxDB recorder implements it.
type Recorder interface {
	Record(e signal.Evaluation)
}

// SignalPass evaluates every traded market once, then lets each user's
// strategies act on the shared evaluations.
type SignalPass struct {
	Users      UserSource
	Builder    SnapshotBuilder
	Detector   Evaluator
	Strategies *strategy.Registry
	Orders     Executor
	Prices     PriceSource
	Recorder   Recorder
	Bus        *events.Bus
	Metrics    *monitor.Metrics
	Workers    int
	Timeout    time.Duration
	Log        zerolog.Logger

	now func() time.Time
}

type pair struct {
	user   db.ActiveUser
	market string
}

// Run performs one pass. The returned report merges both phases.
func (p *SignalPass) Run(ctx context.Context) (scheduler.Report, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	users, err := p.Users.FindActiveUsers(ctx, now())
	if err != nil {
		return scheduler.Report{}, fmt.Errorf("active users: %w", err)
	}
	markets := distinctMarkets(users)
	if len(markets) == 0 {
		return scheduler.Report{}, nil
	}

	var (
		mu    sync.Mutex
		evals = make(map[string]signal.Evaluation, len(markets))
	)
	report := scheduler.Run(ctx, p.Workers, markets, func(ctx context.Context, m string) error {
		e, err := p.evaluate(ctx, m)
		if err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		mu.Lock()
		evals[m] = e
		mu.Unlock()
		return nil
	})

	var pairs []pair
	for _, u := range users {
		for _, m := range u.Setting.Markets {
			if _, ok := evals[m]; ok {
				pairs = append(pairs, pair{user: u, market: m})
			}
		}
	}
	report.Merge(scheduler.Run(ctx, p.Workers, pairs, func(ctx context.Context, it pair) error {
		return p.decide(ctx, it.user, evals[it.market])
	}))
	return report, nil
}

func (p *SignalPass) evaluate(ctx context.Context, m string) (signal.Evaluation, error) {
	cctx, cancel := p.withTimeout(ctx)
	snap, err := p.Builder.Build(cctx, m)
	cancel()
	if err != nil {
		return signal.Evaluation{}, err
	}
	e, err := p.Detector.Evaluate(ctx, snap)
	if err != nil {
		return signal.Evaluation{}, err
	}
	if p.Recorder != nil {
		p.Recorder.Record(e)
	}
	for _, side := range []signal.Side{signal.Buy, signal.Sell} {
		r := e.Result(side)
		if !r.Triggered {
			continue
		}
		p.Metrics.SignalTriggered(side.String())
		if p.Bus != nil {
			p.Bus.Publish(events.EventSignalTriggered, events.SignalTriggered{
				Market:   m,
				Side:     side.String(),
				Strength: r.Strength,
				At:       snap.At,
			})
		}
	}
	return e, nil
}

// decide runs the user's buy and sell strategies on e. Orders skipped for
// being under the exchange minimum are not failures.
func (p *SignalPass) decide(ctx context.Context, u db.ActiveUser, e signal.Evaluation) error {
	var errs []error
	for _, side := range []signal.Side{signal.Buy, signal.Sell} {
		id := u.Setting.BuyStrategy
		if side == signal.Sell {
			id = u.Setting.SellStrategy
		}
		s, err := p.Strategies.Resolve(id)
		if s.Decide == nil {
			errs = append(errs, fmt.Errorf("strategy %q: %w", id, err))
			continue
		}
		if err != nil {
			p.Log.Warn().Err(err).Str("user", u.User.ID).Str("fallback", string(s.ID)).Msg("unknown strategy")
		}

		d := strategy.Decide(s, e, side)
		if !d.Act {
			continue
		}
		cctx, cancel := p.withTimeout(ctx)
		price, err := p.Prices.CurrentPrice(cctx, d.Market)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("price %s: %w", d.Market, err))
			continue
		}
		if _, err := p.Orders.Execute(ctx, u, d, price); err != nil && !errors.Is(err, order.ErrBelowMinimum) {
			errs = append(errs, fmt.Errorf("%s %s for %s: %w", d.Strategy, side, u.User.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *SignalPass) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

func distinctMarkets(users []db.ActiveUser) []string {
	seen := make(map[string]struct{})
	for _, u := range users {
		for _, m := range u.Setting.Markets {
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
