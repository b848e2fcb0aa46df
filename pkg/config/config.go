package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the signal engine.
type Config struct {
	Port           string
	GRPCHealthAddr string
	OperatorSecret string // HS256 key for operator tokens; empty disables job triggers

	// Database
	DBPath string

	// Logging / localization
	LogLevel  string
	LogFormat string // "console" or "json"
	Language  string // "en" or "ko"

	// Upbit
	UpbitAPIURL    string
	UpbitWSURL     string
	StreamTickers  bool
	RequestsPerSec int

	// Scheduling
	ReconcileInterval time.Duration
	RiskInterval      time.Duration
	SignalInterval    time.Duration
	WorkerCount       int
	ExchangeTimeout   time.Duration

	// Candles
	CandleUnit  int // minutes
	CandleCount int

	// Seeds
	BotsFile string

	// Influx (optional snapshot recorder)
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Telegram (optional notifications)
	TelegramToken  string
	TelegramChatID int64

	// Execution
	DryRun bool
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/engine.db")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		GRPCHealthAddr:    getEnv("GRPC_HEALTH_ADDR", ":9090"),
		OperatorSecret:    os.Getenv("OPERATOR_JWT_SECRET"),
		DBPath:            dbPath,
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "console")),
		Language:          getEnv("LANGUAGE", "en"),
		UpbitAPIURL:       strings.TrimRight(getEnv("UPBIT_API_URL", "https://api.upbit.com"), "/"),
		UpbitWSURL:        getEnv("UPBIT_WS_URL", "wss://api.upbit.com/websocket/v1"),
		StreamTickers:     getEnv("STREAM_TICKERS", "true") == "true",
		RequestsPerSec:    getEnvInt("UPBIT_REQUESTS_PER_SEC", 8),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		RiskInterval:      getEnvDuration("RISK_INTERVAL", time.Minute),
		SignalInterval:    getEnvDuration("SIGNAL_INTERVAL", time.Minute),
		WorkerCount:       getEnvInt("WORKER_COUNT", 10),
		ExchangeTimeout:   getEnvDuration("EXCHANGE_TIMEOUT", 10*time.Second),
		CandleUnit:        getEnvInt("CANDLE_UNIT", 1),
		CandleCount:       getEnvInt("CANDLE_COUNT", 200),
		BotsFile:          getEnv("BOTS_FILE", ""),
		InfluxURL:         os.Getenv("INFLUX_URL"),
		InfluxToken:       os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:         getEnv("INFLUX_ORG", "everbit"),
		InfluxBucket:      getEnv("INFLUX_BUCKET", "signals"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    getEnvInt64("TELEGRAM_CHAT_ID", 0),
		DryRun:            getEnv("DRY_RUN", "false") == "true",
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount))
	}
	if c.ExchangeTimeout <= 0 {
		errs = append(errs, errors.New("EXCHANGE_TIMEOUT must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"RECONCILE_INTERVAL": c.ReconcileInterval,
		"RISK_INTERVAL":      c.RiskInterval,
		"SIGNAL_INTERVAL":    c.SignalInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	switch c.CandleUnit {
	case 1, 3, 5, 10, 15, 30, 60, 240:
	default:
		errs = append(errs, fmt.Errorf("CANDLE_UNIT %d is not an Upbit minute unit", c.CandleUnit))
	}
	if c.CandleCount < 30 || c.CandleCount > 200 {
		errs = append(errs, fmt.Errorf("CANDLE_COUNT must be within [30,200], got %d", c.CandleCount))
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SplitAndTrim splits a comma separated list and drops empty entries.
func SplitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
