// Package order sizes strategy decisions into exchange orders, submits them
// and records the resulting trades.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signal-engine/internal/events"
	"signal-engine/internal/monitor"
	"signal-engine/internal/signal"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
)

// GatewayPool provides per-user gateways (typically backed by gateway.Manager).
type GatewayPool interface {
	Get(ctx context.Context, userID string) (exchange.Gateway, error)
	RecordFailure(userID string)
	RecordSuccess(userID string)
}

// TradeStore records submitted orders.
type TradeStore interface {
	CreateTrade(ctx context.Context, t db.Trade) error
}

// Coordinator turns decisions into orders. One call handles one item and
// never retries; the next pass sees fresh state.
type Coordinator struct {
	gateways GatewayPool
	trades   TradeStore
	bus      *events.Bus
	metrics  *monitor.Metrics
	log      zerolog.Logger
	timeout  time.Duration
	newID    func() string
}

func NewCoordinator(gateways GatewayPool, trades TradeStore, bus *events.Bus, metrics *monitor.Metrics, timeout time.Duration, log zerolog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		gateways: gateways,
		trades:   trades,
		bus:      bus,
		metrics:  metrics,
		log:      log.With().Str("component", "order").Logger(),
		timeout:  timeout,
		newID:    uuid.NewString,
	}
}

// Execute sizes d for user at price and submits it. ErrBelowMinimum is
// returned, wrapped, when the capped notional is too small to order.
func (c *Coordinator) Execute(ctx context.Context, user db.ActiveUser, d strategy.Decision, price float64) (db.Trade, error) {
	if !d.Act {
		return db.Trade{}, fmt.Errorf("decision for %s does not act", d.Market)
	}
	if price <= 0 {
		return db.Trade{}, ErrInvalidPrice
	}
	side := exchange.SideBid
	base, max := user.Setting.BuyBaseAmount, user.Setting.BuyMaxAmount
	if d.Side == signal.Sell {
		side = exchange.SideAsk
		base, max = user.Setting.SellBaseAmount, user.Setting.SellMaxAmount
	}

	gw, err := c.gateways.Get(ctx, user.User.ID)
	if err != nil {
		return db.Trade{}, c.fail(user.User.ID, d.Market, side, fmt.Errorf("gateway: %w", err))
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	chance, err := gw.GetOrderChance(cctx, d.Market)
	cancel()
	if err != nil {
		c.gateways.RecordFailure(user.User.ID)
		return db.Trade{}, c.fail(user.User.ID, d.Market, side, fmt.Errorf("order chance: %w", err))
	}

	px := decimal.NewFromFloat(price)
	notional := Notional(decimal.NewFromFloat(base), decimal.NewFromFloat(max), d.Strength)
	minTotal := chance.BidMinTotal
	if side == exchange.SideBid {
		notional = CapNotional(notional, chance.BidAccount.Balance, px, chance.BidFee, true)
	} else {
		notional = CapNotional(notional, chance.AskAccount.Balance, px, chance.AskFee, false)
		minTotal = chance.AskMinTotal
	}
	if notional.LessThan(minTotal) || !notional.IsPositive() {
		c.log.Debug().Str("user", user.User.ID).Str("market", d.Market).Str("side", string(side)).
			Str("notional", notional.String()).Str("min_total", minTotal.String()).Msg("order skipped below minimum")
		return db.Trade{}, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, notional, minTotal)
	}

	return c.Submit(ctx, Intent{
		UserID:   user.User.ID,
		Market:   d.Market,
		Side:     side,
		Volume:   Quantity(notional, px),
		Price:    px,
		Strategy: string(d.Strategy),
		Origin:   "signal",
	})
}

// Submit places a limit order for in and records it as a WAIT trade.
func (c *Coordinator) Submit(ctx context.Context, in Intent) (db.Trade, error) {
	if !in.Volume.IsPositive() {
		return db.Trade{}, c.fail(in.UserID, in.Market, in.Side, fmt.Errorf("non-positive volume %s", in.Volume))
	}
	gw, err := c.gateways.Get(ctx, in.UserID)
	if err != nil {
		return db.Trade{}, c.fail(in.UserID, in.Market, in.Side, fmt.Errorf("gateway: %w", err))
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	placed, err := gw.PlaceOrder(cctx, exchange.OrderRequest{
		Market:     in.Market,
		Side:       in.Side,
		Type:       exchange.OrderTypeLimit,
		Volume:     in.Volume,
		Price:      in.Price,
		Identifier: c.newID(),
	})
	cancel()
	if err != nil {
		c.gateways.RecordFailure(in.UserID)
		return db.Trade{}, c.fail(in.UserID, in.Market, in.Side, fmt.Errorf("place order: %w", err))
	}
	c.gateways.RecordSuccess(in.UserID)

	trade := db.Trade{
		ID:           c.newID(),
		UserID:       in.UserID,
		Market:       in.Market,
		Type:         TradeType(in.Side),
		OrderID:      placed.UUID,
		Price:        in.Price,
		Amount:       in.Volume,
		TotalPrice:   in.Price.Mul(in.Volume).Round(Scale),
		Status:       db.TradeWait,
		Strategy:     in.Strategy,
		SignalOrigin: in.Origin,
	}
	if err := c.trades.CreateTrade(ctx, trade); err != nil {
		// The order is live on the exchange; only the local record is missing.
		c.log.Error().Err(err).Str("user", in.UserID).Str("market", in.Market).
			Str("order_id", placed.UUID).Msg("order placed but trade not recorded")
		return db.Trade{}, fmt.Errorf("record trade for order %s: %w", placed.UUID, err)
	}

	c.metrics.OrderPlaced(string(in.Side), in.Strategy)
	c.log.Info().Str("user", in.UserID).Str("market", in.Market).Str("side", string(in.Side)).
		Str("volume", in.Volume.String()).Str("price", in.Price.String()).
		Str("trade_id", trade.ID).Str("strategy", in.Strategy).Msg("order placed")
	if c.bus != nil {
		c.bus.Publish(events.EventOrderPlaced, events.OrderPlaced{
			TradeID:  trade.ID,
			UserID:   in.UserID,
			Market:   in.Market,
			Side:     string(in.Side),
			Price:    in.Price,
			Volume:   in.Volume,
			Strategy: in.Strategy,
		})
	}
	return trade, nil
}

func (c *Coordinator) fail(userID, market string, side exchange.Side, err error) error {
	c.metrics.OrderFailed(string(side))
	c.log.Warn().Err(err).Str("user", userID).Str("market", market).Str("side", string(side)).Msg("order failed")
	if c.bus != nil {
		c.bus.Publish(events.EventOrderFailed, events.OrderFailed{UserID: userID, Market: market, Side: string(side), Err: err})
	}
	return err
}
