package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signal-engine/pkg/crypto"
	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
	"signal-engine/pkg/exchanges/upbit"
)

type fakeUsers map[string]db.User

func (f fakeUsers) GetUser(_ context.Context, id string) (db.User, error) {
	u, ok := f[id]
	if !ok {
		return db.User{}, db.ErrNotFound
	}
	return u, nil
}

func testKeyring(t *testing.T) *crypto.Keyring {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	kr, err := crypto.NewKeyring(map[int]string{1: key}, false)
	if err != nil {
		t.Fatal(err)
	}
	return kr
}

func TestManagerDecryptsAndCaches(t *testing.T) {
	kr := testKeyring(t)
	access, _ := kr.Seal("ak")
	secret, _ := kr.Seal("sk")
	users := fakeUsers{"u1": {ID: "u1", AccessKey: access, SecretKey: secret}}

	builds := 0
	factory := func(u db.User, a, s string) (exchange.Gateway, error) {
		builds++
		if a != "ak" || s != "sk" {
			t.Errorf("keys = %q/%q", a, s)
		}
		return NewSimulator(SimulatorConfig{}), nil
	}
	m := NewManager(users, kr, factory, Config{})

	ctx := context.Background()
	g1, err := m.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	g2, _ := m.Get(ctx, "u1")
	if g1 != g2 || builds != 1 {
		t.Errorf("expected cached gateway, builds=%d", builds)
	}

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerCircuitAndIdle(t *testing.T) {
	users := fakeUsers{"u1": {ID: "u1"}, "u2": {ID: "u2"}}
	m := NewManager(users, nil, SimulatorFactory(SimulatorConfig{}), Config{MaxSize: 1, FailureThreshold: 2, IdleTimeout: time.Minute})
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := m.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	m.RecordFailure("u1")
	m.RecordFailure("u1")
	if _, err := m.Get(ctx, "u1"); !errors.Is(err, ErrGatewayUnhealthy) {
		t.Errorf("expected ErrGatewayUnhealthy, got %v", err)
	}
	if m.Stats().UnhealthyCount != 1 {
		t.Errorf("stats = %+v", m.Stats())
	}
	m.RecordSuccess("u1")
	if _, err := m.Get(ctx, "u1"); err != nil {
		t.Errorf("circuit should close after success: %v", err)
	}

	// MaxSize 1 evicts u1.
	if _, err := m.Get(ctx, "u2"); err != nil {
		t.Fatalf("Get u2: %v", err)
	}
	if s := m.Stats(); s.TotalGateways != 1 {
		t.Errorf("total = %d", s.TotalGateways)
	}

	now = now.Add(2 * time.Minute)
	m.cleanupIdle()
	if s := m.Stats(); s.TotalGateways != 0 {
		t.Errorf("idle gateway not removed: %+v", s)
	}
}

func TestUpbitFactoryRequiresCredentials(t *testing.T) {
	f := UpbitFactory(upbit.Config{}, zerolog.Nop())
	if _, err := f(db.User{ID: "u1"}, "", ""); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	gw, err := f(db.User{ID: "u1"}, "ak", "sk")
	if err != nil || gw == nil {
		t.Fatalf("factory = %v, %v", gw, err)
	}
}

func TestSimulatorRoundTrip(t *testing.T) {
	s := NewSimulator(SimulatorConfig{InitialKRW: decimal.NewFromInt(100000), FeeRate: decimal.RequireFromString("0.001")})
	ctx := context.Background()
	price := decimal.NewFromInt(50000)

	buy, err := s.PlaceOrder(ctx, exchange.OrderRequest{
		Market: "KRW-BTC", Side: exchange.SideBid, Type: exchange.OrderTypeLimit,
		Volume: decimal.RequireFromString("1"), Price: price,
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.State != exchange.StateDone {
		t.Errorf("state = %s", buy.State)
	}

	chance, _ := s.GetOrderChance(ctx, "KRW-BTC")
	if !chance.BidAccount.Balance.Equal(decimal.NewFromInt(49950)) {
		t.Errorf("krw = %s, want 49950", chance.BidAccount.Balance)
	}
	if !chance.AskAccount.AvgBuyPrice.Equal(price) {
		t.Errorf("avg = %s", chance.AskAccount.AvgBuyPrice)
	}

	if _, err := s.PlaceOrder(ctx, exchange.OrderRequest{
		Market: "KRW-BTC", Side: exchange.SideAsk, Type: exchange.OrderTypeLimit,
		Volume: decimal.NewFromInt(2), Price: price,
	}); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	if _, err := s.CancelOrder(ctx, buy.UUID); !errors.Is(err, ErrOrderClosed) {
		t.Errorf("expected ErrOrderClosed, got %v", err)
	}
	accounts, _ := s.GetAccounts(ctx)
	if len(accounts) != 2 || accounts[0].Currency != "BTC" {
		t.Errorf("accounts = %+v", accounts)
	}
}
