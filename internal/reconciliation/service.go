// Package reconciliation settles WAIT trades against the exchange view of
// their orders.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/internal/events"
	"signal-engine/internal/monitor"
	"signal-engine/internal/scheduler"
	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
)

// TradeStore lists pending trades and applies WAIT-guarded transitions.
type TradeStore interface {
	ListTradesByStatus(ctx context.Context, status db.TradeStatus) ([]db.Trade, error)
	ResolveTrade(ctx context.Context, id string, to db.TradeStatus) error
}

type GatewayPool interface {
	Get(ctx context.Context, userID string) (exchange.Gateway, error)
	RecordFailure(userID string)
	RecordSuccess(userID string)
}

// Report counts the outcome of one pass.
type Report struct {
	Timestamp time.Time
	Checked   int
	Done      int
	Cancelled int
	Failed    int
	Skipped   int // no transition: order still watching, or trade resolved elsewhere
	Pool      scheduler.Report
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDone
	outcomeCancelled
)

// Service reconciles WAIT trades. An order still open on the exchange is
// cancelled; the next signal pass decides afresh.
type Service struct {
	trades   TradeStore
	gateways GatewayPool
	bus      *events.Bus
	metrics  *monitor.Metrics
	log      zerolog.Logger
	workers  int
	timeout  time.Duration

	mu sync.Mutex
}

func NewService(trades TradeStore, gateways GatewayPool, bus *events.Bus, metrics *monitor.Metrics, workers int, timeout time.Duration, log zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		trades:   trades,
		gateways: gateways,
		bus:      bus,
		metrics:  metrics,
		log:      log.With().Str("component", "reconciliation").Logger(),
		workers:  workers,
		timeout:  timeout,
	}
}

// Reconcile performs one pass over every WAIT trade.
func (s *Service) Reconcile(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{Timestamp: time.Now()}
	pending, err := s.trades.ListTradesByStatus(ctx, db.TradeWait)
	if err != nil {
		return report, fmt.Errorf("list wait trades: %w", err)
	}
	report.Checked = len(pending)

	var countMu sync.Mutex
	report.Pool = scheduler.Run(ctx, s.workers, pending, func(ctx context.Context, t db.Trade) error {
		out, err := s.settle(ctx, t)
		if err != nil {
			return fmt.Errorf("trade %s: %w", t.ID, err)
		}
		countMu.Lock()
		defer countMu.Unlock()
		switch out {
		case outcomeDone:
			report.Done++
		case outcomeCancelled:
			report.Cancelled++
		default:
			report.Skipped++
		}
		return nil
	})
	report.Failed = report.Pool.Failed

	s.log.Info().Int("checked", report.Checked).Int("done", report.Done).Int("cancelled", report.Cancelled).
		Int("failed", report.Failed).Int("skipped", report.Skipped).Msg("reconciliation finished")
	if s.bus != nil {
		s.bus.Publish(events.EventReconciled, events.Reconciled{
			Checked:   report.Checked,
			Done:      report.Done,
			Cancelled: report.Cancelled,
			Failed:    report.Failed,
			Skipped:   report.Skipped,
		})
	}
	return report, nil
}

func (s *Service) settle(ctx context.Context, t db.Trade) (outcome, error) {
	gw, err := s.gateways.Get(ctx, t.UserID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("gateway: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	o, err := gw.GetOrder(cctx, t.OrderID)
	cancel()
	if err != nil {
		s.gateways.RecordFailure(t.UserID)
		return outcomeSkipped, fmt.Errorf("get order %s: %w", t.OrderID, err)
	}
	s.gateways.RecordSuccess(t.UserID)

	switch o.State {
	case exchange.StateWait:
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		_, err := gw.CancelOrder(cctx, t.OrderID)
		cancel()
		if err != nil {
			s.gateways.RecordFailure(t.UserID)
			return outcomeSkipped, fmt.Errorf("cancel order %s: %w", t.OrderID, err)
		}
		return s.resolve(ctx, t, db.TradeCancel)
	case exchange.StateDone:
		return s.resolve(ctx, t, db.TradeDone)
	case exchange.StateCancel:
		return s.resolve(ctx, t, db.TradeCancel)
	default:
		return outcomeSkipped, nil
	}
}

func (s *Service) resolve(ctx context.Context, t db.Trade, to db.TradeStatus) (outcome, error) {
	err := s.trades.ResolveTrade(ctx, t.ID, to)
	if errors.Is(err, db.ErrInvalidTransition) {
		s.log.Debug().Str("trade_id", t.ID).Msg("trade already resolved")
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, err
	}

	s.metrics.TradeResolved(string(to))
	s.log.Info().Str("trade_id", t.ID).Str("user", t.UserID).Str("market", t.Market).
		Str("order_id", t.OrderID).Str("status", string(to)).Msg("trade resolved")
	if s.bus != nil {
		s.bus.Publish(events.EventTradeResolved, events.TradeResolved{
			TradeID: t.ID,
			UserID:  t.UserID,
			Market:  t.Market,
			Status:  string(to),
		})
	}
	if to == db.TradeDone {
		return outcomeDone, nil
	}
	return outcomeCancelled, nil
}
