package engine

import (
	"context"
	"fmt"
	"time"

	"signal-engine/internal/reconciliation"
	"signal-engine/internal/risk"
	"signal-engine/internal/scheduler"
	"signal-engine/pkg/db"
)

// Job names, in their start-up order.
const (
	JobReconcile = "reconcile"
	JobRisk      = "risk"
	JobSignal    = "signal"
)

// PositionChecker is satisfied by risk.Manager.
type PositionChecker interface {
	CheckUser(ctx context.Context, u db.ActiveUser) ([]risk.Exit, error)
}

// Reconciler is satisfied by reconciliation.Service.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconciliation.Report, error)
}

// RiskPass checks every active user's positions.
type RiskPass struct {
	Users   UserSource
	Risk    PositionChecker
	Workers int
}

func (p *RiskPass) Run(ctx context.Context) (scheduler.Report, error) {
	users, err := p.Users.FindActiveUsers(ctx, time.Now())
	if err != nil {
		return scheduler.Report{}, fmt.Errorf("active users: %w", err)
	}
	return scheduler.Run(ctx, p.Workers, users, func(ctx context.Context, u db.ActiveUser) error {
		_, err := p.Risk.CheckUser(ctx, u)
		return err
	}), nil
}

// Intervals configures the job tickers.
type Intervals struct {
	Reconcile time.Duration
	Risk      time.Duration
	Signal    time.Duration
}

// Jobs returns the scheduler jobs in start-up order: reconcile, risk, signal.
func Jobs(iv Intervals, recon Reconciler, riskPass *RiskPass, signalPass *SignalPass) []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     JobReconcile,
			Interval: iv.Reconcile,
			Run: func(ctx context.Context) (scheduler.Report, error) {
				r, err := recon.Reconcile(ctx)
				return r.Pool, err
			},
		},
		{Name: JobRisk, Interval: iv.Risk, Run: riskPass.Run},
		{Name: JobSignal, Interval: iv.Signal, Run: signalPass.Run},
	}
}
