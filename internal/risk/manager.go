// Package risk enforces loss, timeout and profit exits on open positions.
package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signal-engine/internal/events"
	"signal-engine/internal/monitor"
	"signal-engine/internal/order"
	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
)

// Exit reasons recorded as the trade strategy.
const (
	ReasonLossManagement = "LOSS_MANAGEMENT"
	ReasonTimeoutSell    = "TIMEOUT_SELL"
	ReasonProfitTaking   = "PROFIT_TAKING"
)

type GatewayPool interface {
	Get(ctx context.Context, userID string) (exchange.Gateway, error)
}

type PriceSource interface {
	CurrentPrice(ctx context.Context, market string) (float64, error)
}

type TradeStore interface {
	FindLastTrade(ctx context.Context, userID, market string, typ db.TradeType) (db.Trade, error)
}

// Submitter places sized orders (order.Coordinator).
type Submitter interface {
	Submit(ctx context.Context, in order.Intent) (db.Trade, error)
}

// CounterResetter clears the buy-side reversal counter of a market
// (signal.Detector).
type CounterResetter interface {
	ResetReversalUp(ctx context.Context, market string) error
}

// Exit is one forced sell placed by the manager.
type Exit struct {
	Market  string
	Reason  string
	Return  decimal.Decimal
	Volume  decimal.Decimal
	TradeID string
}

// Manager checks the positions of one user at a time.
type Manager struct {
	gateways GatewayPool
	prices   PriceSource
	trades   TradeStore
	orders   Submitter
	counters CounterResetter
	bus      *events.Bus
	metrics  *monitor.Metrics
	log      zerolog.Logger
	timeout  time.Duration
	now      func() time.Time
}

func NewManager(gateways GatewayPool, prices PriceSource, trades TradeStore, orders Submitter,
	counters CounterResetter, bus *events.Bus, metrics *monitor.Metrics, timeout time.Duration, log zerolog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		gateways: gateways,
		prices:   prices,
		trades:   trades,
		orders:   orders,
		counters: counters,
		bus:      bus,
		metrics:  metrics,
		log:      log.With().Str("component", "risk").Logger(),
		timeout:  timeout,
		now:      time.Now,
	}
}

type position struct {
	market  string
	balance decimal.Decimal
	avg     decimal.Decimal
}

// CheckUser evaluates every configured market of u that holds a position
// and places at most one forced sell per market. Per-market failures are
// joined into the returned error; the other markets still run.
func (m *Manager) CheckUser(ctx context.Context, u db.ActiveUser) ([]Exit, error) {
	gw, err := m.gateways.Get(ctx, u.User.ID)
	if err != nil {
		return nil, fmt.Errorf("gateway for %s: %w", u.User.ID, err)
	}
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	accounts, err := gw.GetAccounts(cctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("accounts for %s: %w", u.User.ID, err)
	}

	var (
		exits []Exit
		errs  []error
	)
	for _, p := range positions(u.Setting.Markets, accounts) {
		exit, err := m.checkPosition(ctx, u, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.market, err))
			continue
		}
		if exit != nil {
			exits = append(exits, *exit)
		}
	}
	return exits, errors.Join(errs...)
}

// positions matches accounts to markets by base currency, skipping empty
// balances and unknown average prices.
func positions(markets []string, accounts []exchange.Account) []position {
	byCurrency := make(map[string]exchange.Account, len(accounts))
	for _, a := range accounts {
		byCurrency[a.Currency] = a
	}
	var out []position
	for _, market := range markets {
		a, ok := byCurrency[exchange.CurrencyOf(market)]
		if !ok || !a.Balance.IsPositive() || !a.AvgBuyPrice.IsPositive() {
			continue
		}
		out = append(out, position{market: market, balance: a.Balance, avg: a.AvgBuyPrice})
	}
	return out
}

func (m *Manager) checkPosition(ctx context.Context, u db.ActiveUser, p position) (*Exit, error) {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	price, err := m.prices.CurrentPrice(cctx, p.market)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	if price <= 0 {
		return nil, order.ErrInvalidPrice
	}
	px := decimal.NewFromFloat(price)
	ret := Return(p.avg, px)

	reason, ratio, err := m.rule(ctx, u, p.market, ret)
	if err != nil || reason == "" {
		return nil, err
	}

	qty := PartialSellQuantity(p.balance, decimal.NewFromFloat(ratio), px, decimal.NewFromFloat(u.Setting.SellBaseAmount))
	trade, err := m.orders.Submit(ctx, order.Intent{
		UserID:   u.User.ID,
		Market:   p.market,
		Side:     exchange.SideAsk,
		Volume:   qty,
		Price:    px,
		Strategy: reason,
		Origin:   "risk",
	})
	if err != nil {
		return nil, fmt.Errorf("%s sell: %w", reason, err)
	}

	r, _ := ret.Float64()
	m.metrics.ForcedExit(reason)
	m.log.Info().Str("user", u.User.ID).Str("market", p.market).Str("reason", reason).
		Str("return", ret.String()).Str("volume", qty.String()).Msg("forced exit")
	if m.bus != nil {
		m.bus.Publish(events.EventForcedExit, events.ForcedExit{
			UserID:  u.User.ID,
			Market:  p.market,
			Reason:  reason,
			Volume:  qty,
			Return:  r,
			TradeID: trade.ID,
		})
	}
	return &Exit{Market: p.market, Reason: reason, Return: ret, Volume: qty, TradeID: trade.ID}, nil
}

// rule picks the first matching exit in the order loss, timeout, profit.
// An empty reason means hold.
func (m *Manager) rule(ctx context.Context, u db.ActiveUser, market string, ret decimal.Decimal) (string, float64, error) {
	s := u.Setting
	if s.LossManagementActive && ret.LessThanOrEqual(decimal.NewFromFloat(-s.LossThreshold)) {
		if m.counters != nil {
			if err := m.counters.ResetReversalUp(ctx, market); err != nil {
				m.log.Warn().Err(err).Str("market", market).Msg("reset reversal counter")
			}
		}
		return ReasonLossManagement, s.LossSellRatio, nil
	}

	if s.TimeoutSellActive && s.TimeoutSellMinutes > 0 && ret.LessThan(decimal.NewFromFloat(s.TimeoutSellProfitRatio)) {
		last, err := m.trades.FindLastTrade(ctx, u.User.ID, market, db.TradeBid)
		switch {
		case errors.Is(err, db.ErrNotFound):
		case err != nil:
			return "", 0, fmt.Errorf("last bid: %w", err)
		case m.now().Sub(last.UpdatedAt) >= time.Duration(s.TimeoutSellMinutes)*time.Minute:
			return ReasonTimeoutSell, s.ProfitSellRatio, nil
		}
	}

	if s.ProfitTakingActive && ret.GreaterThanOrEqual(decimal.NewFromFloat(s.ProfitThreshold)) {
		return ReasonProfitTaking, s.ProfitSellRatio, nil
	}
	return "", 0, nil
}
