package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_PATH", "./data/test.db")
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("SIGNAL_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "./data/test.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.WorkerCount != 10 {
		t.Errorf("WorkerCount = %d, want 10", cfg.WorkerCount)
	}
	if cfg.SignalInterval != time.Minute {
		t.Errorf("SignalInterval = %v, want 1m", cfg.SignalInterval)
	}
	if cfg.CandleCount != 200 {
		t.Errorf("CandleCount = %d, want 200", cfg.CandleCount)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("RISK_INTERVAL", "30s")
	t.Setenv("UPBIT_API_URL", "http://localhost:9999/")
	t.Setenv("CANDLE_UNIT", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", cfg.WorkerCount)
	}
	if cfg.RiskInterval != 30*time.Second {
		t.Errorf("RiskInterval = %v, want 30s", cfg.RiskInterval)
	}
	if cfg.UpbitAPIURL != "http://localhost:9999" {
		t.Errorf("UpbitAPIURL = %q, trailing slash should be trimmed", cfg.UpbitAPIURL)
	}
	if cfg.CandleUnit != 5 {
		t.Errorf("CandleUnit = %d, want 5", cfg.CandleUnit)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WorkerCount:       10,
			ExchangeTimeout:   time.Second,
			ReconcileInterval: time.Minute,
			RiskInterval:      time.Minute,
			SignalInterval:    time.Minute,
			CandleUnit:        1,
			CandleCount:       200,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }, true},
		{"bad candle unit", func(c *Config) { c.CandleUnit = 7 }, true},
		{"too few candles", func(c *Config) { c.CandleCount = 10 }, true},
		{"zero interval", func(c *Config) { c.RiskInterval = 0 }, true},
		{"telegram without chat", func(c *Config) { c.TelegramToken = "x" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" KRW-BTC, ,KRW-ETH ,")
	if len(got) != 2 || got[0] != "KRW-BTC" || got[1] != "KRW-ETH" {
		t.Errorf("SplitAndTrim = %v", got)
	}
}
