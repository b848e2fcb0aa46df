package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	exchange "signal-engine/pkg/exchanges/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderClosed       = errors.New("order is already closed")
)

// SimulatorConfig funds and prices a paper account.
type SimulatorConfig struct {
	InitialKRW decimal.Decimal
	FeeRate    decimal.Decimal
	MinTotal   decimal.Decimal
}

// Simulator is an in-memory exchange account for dry runs. Limit orders
// fill immediately at their price.
type Simulator struct {
	mu       sync.Mutex
	cfg      SimulatorConfig
	balances map[string]*exchange.Account
	orders   map[string]exchange.Order
	now      func() time.Time
}

var _ exchange.Gateway = (*Simulator)(nil)

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.InitialKRW.IsZero() {
		cfg.InitialKRW = decimal.NewFromInt(1_000_000)
	}
	if cfg.FeeRate.IsZero() {
		cfg.FeeRate = decimal.RequireFromString("0.0005")
	}
	if cfg.MinTotal.IsZero() {
		cfg.MinTotal = decimal.NewFromInt(5000)
	}
	s := &Simulator{
		cfg:      cfg,
		balances: make(map[string]*exchange.Account),
		orders:   make(map[string]exchange.Order),
		now:      time.Now,
	}
	s.account("KRW").Balance = cfg.InitialKRW
	return s
}

func (s *Simulator) account(currency string) *exchange.Account {
	a, ok := s.balances[currency]
	if !ok {
		a = &exchange.Account{Currency: currency, UnitCurrency: "KRW"}
		s.balances[currency] = a
	}
	return a
}

func (s *Simulator) GetAccounts(context.Context) ([]exchange.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]exchange.Account, 0, len(s.balances))
	for _, a := range s.balances {
		if a.Currency != "KRW" && a.Balance.IsZero() {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (s *Simulator) GetOrderChance(_ context.Context, market string) (exchange.OrderChance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return exchange.OrderChance{
		Market:      market,
		BidFee:      s.cfg.FeeRate,
		AskFee:      s.cfg.FeeRate,
		BidMinTotal: s.cfg.MinTotal,
		AskMinTotal: s.cfg.MinTotal,
		BidAccount:  *s.account(exchange.QuoteOf(market)),
		AskAccount:  *s.account(exchange.CurrencyOf(market)),
	}, nil
}

func (s *Simulator) PlaceOrder(_ context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	if req.Type != exchange.OrderTypeLimit {
		return exchange.Order{}, fmt.Errorf("simulator supports limit orders only, got %s", req.Type)
	}
	if !req.Volume.IsPositive() || !req.Price.IsPositive() {
		return exchange.Order{}, fmt.Errorf("invalid order volume=%s price=%s", req.Volume, req.Price)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	total := req.Price.Mul(req.Volume)
	fee := total.Mul(s.cfg.FeeRate)
	quote := s.account(exchange.QuoteOf(req.Market))
	base := s.account(exchange.CurrencyOf(req.Market))

	switch req.Side {
	case exchange.SideBid:
		if quote.Balance.LessThan(total.Add(fee)) {
			return exchange.Order{}, fmt.Errorf("%w: need %s have %s", ErrInsufficientFunds, total.Add(fee), quote.Balance)
		}
		quote.Balance = quote.Balance.Sub(total.Add(fee))
		held := base.Balance.Mul(base.AvgBuyPrice)
		base.Balance = base.Balance.Add(req.Volume)
		base.AvgBuyPrice = held.Add(total).Div(base.Balance)
	case exchange.SideAsk:
		if base.Balance.LessThan(req.Volume) {
			return exchange.Order{}, fmt.Errorf("%w: need %s have %s", ErrInsufficientFunds, req.Volume, base.Balance)
		}
		base.Balance = base.Balance.Sub(req.Volume)
		if base.Balance.IsZero() {
			base.AvgBuyPrice = decimal.Zero
		}
		quote.Balance = quote.Balance.Add(total.Sub(fee))
	default:
		return exchange.Order{}, fmt.Errorf("unknown side %q", req.Side)
	}

	o := exchange.Order{
		UUID:            uuid.NewString(),
		Market:          req.Market,
		Side:            req.Side,
		Type:            req.Type,
		State:           exchange.StateDone,
		Price:           req.Price,
		Volume:          req.Volume,
		RemainingVolume: decimal.Zero,
		ExecutedVolume:  req.Volume,
		CreatedAt:       s.now(),
	}
	s.orders[o.UUID] = o
	return o, nil
}

func (s *Simulator) GetOrder(_ context.Context, id string) (exchange.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return exchange.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, nil
}

func (s *Simulator) CancelOrder(_ context.Context, id string) (exchange.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return exchange.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if o.State != exchange.StateWait {
		return exchange.Order{}, fmt.Errorf("%w: %s is %s", ErrOrderClosed, id, o.State)
	}
	o.State = exchange.StateCancel
	s.orders[id] = o
	return o, nil
}
