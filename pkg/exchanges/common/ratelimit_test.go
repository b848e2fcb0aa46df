package common

import (
	"testing"
	"time"
)

func TestParseRemainingReq(t *testing.T) {
	tests := []struct {
		in        string
		group     string
		min, sec  int
		wantValid bool
	}{
		{"group=default; min=1800; sec=29", "default", 1800, 29, true},
		{"group=order; sec=7", "order", -1, 7, true},
		{"", "", 0, 0, false},
		{"min=10; sec=2", "", 0, 0, false},
		{"group=market", "", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			group, min, sec, ok := ParseRemainingReq(tt.in)
			if ok != tt.wantValid {
				t.Fatalf("ok = %v, want %v", ok, tt.wantValid)
			}
			if !ok {
				return
			}
			if group != tt.group || min != tt.min || sec != tt.sec {
				t.Errorf("got (%s, %d, %d)", group, min, sec)
			}
		})
	}
}

func TestRateLimiterDelay(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if d := rl.Delay("order"); d != 0 {
		t.Errorf("unknown group delay = %v", d)
	}
	rl.UpdateFromHeader("group=order; min=100; sec=3")
	if d := rl.Delay("order"); d != 0 {
		t.Errorf("delay with budget = %v", d)
	}
	rl.UpdateFromHeader("group=order; min=99; sec=0")
	now = now.Add(400 * time.Millisecond)
	if d := rl.Delay("order"); d != 600*time.Millisecond {
		t.Errorf("delay = %v, want 600ms", d)
	}
	now = now.Add(time.Second)
	if d := rl.Delay("order"); d != 0 {
		t.Errorf("delay after refill = %v", d)
	}
}

func TestMarketCodes(t *testing.T) {
	if got := CurrencyOf("KRW-BTC"); got != "BTC" {
		t.Errorf("CurrencyOf = %s", got)
	}
	if got := QuoteOf("KRW-BTC"); got != "KRW" {
		t.Errorf("QuoteOf = %s", got)
	}
	if got := (Account{Currency: "ETH", UnitCurrency: "KRW"}).Market(); got != "KRW-ETH" {
		t.Errorf("Market = %s", got)
	}
}
