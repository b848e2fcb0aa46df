package market

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"signal-engine/pkg/cache"
)

func TestGetMinuteCandlesOrdersOldestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/candles/minutes/1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("market") != "KRW-BTC" || r.URL.Query().Get("count") != "3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		io.WriteString(w, `[
			{"market":"KRW-BTC","candle_date_time_utc":"2025-01-01T00:02:00","opening_price":3,"high_price":4,"low_price":2,"trade_price":3.5,"candle_acc_trade_volume":10},
			{"market":"KRW-BTC","candle_date_time_utc":"2025-01-01T00:01:00","opening_price":2,"high_price":3,"low_price":1,"trade_price":3,"candle_acc_trade_volume":11},
			{"market":"KRW-BTC","candle_date_time_utc":"2025-01-01T00:00:00","opening_price":1,"high_price":2,"low_price":1,"trade_price":2,"candle_acc_trade_volume":12}
		]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 100)
	candles, err := c.GetMinuteCandles(context.Background(), "KRW-BTC", 1, 3)
	if err != nil {
		t.Fatalf("GetMinuteCandles: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("len = %d", len(candles))
	}
	if candles[0].Close != 2 || candles[2].Close != 3.5 {
		t.Errorf("candles not ordered oldest first: %+v", candles)
	}
	if !candles[0].Start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", candles[0].Start)
	}
}

func TestGetMinuteCandlesRejectsUnit(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100)
	if _, err := c.GetMinuteCandles(context.Background(), "KRW-BTC", 2, 10); err == nil {
		t.Fatal("expected error for unit 2")
	}
}

func TestGetTickersRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `[{"market":"KRW-BTC","trade_price":50000000,"acc_trade_volume_24h":123.4,"timestamp":1735689600000}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 100)
	tickers, err := c.GetTickers(context.Background(), []string{"KRW-BTC"})
	if err != nil {
		t.Fatalf("GetTickers: %v", err)
	}
	if len(tickers) != 1 || tickers[0].Price != 50000000 {
		t.Errorf("tickers = %+v", tickers)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestPriceSourcePrefersFreshCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, `[{"market":"KRW-ETH","trade_price":4000000,"acc_trade_volume_24h":1}]`)
	}))
	defer srv.Close()

	pc := cache.NewPriceCache()
	pc.Set("KRW-BTC", cache.Quote{Price: 100})
	src := NewPriceSource(NewClient(srv.URL, 100), nil, pc, time.Minute, zerolog.Nop())

	price, err := src.CurrentPrice(context.Background(), "KRW-BTC")
	if err != nil || price != 100 {
		t.Fatalf("cached price = %v, %v", price, err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("REST called for fresh quote")
	}

	price, err = src.CurrentPrice(context.Background(), "KRW-ETH")
	if err != nil || price != 4000000 {
		t.Fatalf("fallback price = %v, %v", price, err)
	}
	if _, ok := pc.Get("KRW-ETH"); !ok {
		t.Error("fallback did not populate cache")
	}
}

func TestSubscribeTicker(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var frames []map[string]any
		if err := conn.ReadJSON(&frames); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if len(frames) != 2 || frames[1]["type"] != "ticker" {
			t.Errorf("frames = %v", frames)
		}
		msg, _ := json.Marshal(map[string]any{
			"type": "ticker", "code": "KRW-BTC", "trade_price": 51000000.0,
			"acc_trade_volume_24h": 10.0, "timestamp": time.Now().UnixMilli(),
		})
		conn.WriteMessage(websocket.BinaryMessage, msg)
		// Hold the connection until the client closes it.
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sc := NewStreamClient("ws"+strings.TrimPrefix(srv.URL, "http"), zerolog.Nop())
	ch, stop, err := sc.SubscribeTicker(ctx, []string{"KRW-BTC"})
	if err != nil {
		t.Fatalf("SubscribeTicker: %v", err)
	}
	defer stop()

	select {
	case tk := <-ch:
		if tk.Market != "KRW-BTC" || tk.Price != 51000000 {
			t.Errorf("ticker = %+v", tk)
		}
	case <-ctx.Done():
		t.Fatal("no ticker received")
	}
}
