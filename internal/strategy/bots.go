package strategy

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"signal-engine/pkg/crypto"
	"signal-engine/pkg/db"
)

// BotConfig is one user and bot entry in the bots YAML file.
type BotConfig struct {
	UserID    string `yaml:"user_id"`
	Username  string `yaml:"username"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	BuyStrategy  string   `yaml:"buy_strategy"`
	SellStrategy string   `yaml:"sell_strategy"`
	Markets      []string `yaml:"markets"`

	BuyBaseAmount  float64 `yaml:"buy_base_amount"`
	BuyMaxAmount   float64 `yaml:"buy_max_amount"`
	SellBaseAmount float64 `yaml:"sell_base_amount"`
	SellMaxAmount  float64 `yaml:"sell_max_amount"`

	LossThreshold   float64 `yaml:"loss_threshold"`
	ProfitThreshold float64 `yaml:"profit_threshold"`
	LossSellRatio   float64 `yaml:"loss_sell_ratio"`
	ProfitSellRatio float64 `yaml:"profit_sell_ratio"`

	TimeoutSellMinutes     int     `yaml:"timeout_sell_minutes"`
	TimeoutSellProfitRatio float64 `yaml:"timeout_sell_profit_ratio"`

	LossManagementActive bool `yaml:"loss_management_active"`
	ProfitTakingActive   bool `yaml:"profit_taking_active"`
	TimeoutSellActive    bool `yaml:"timeout_sell_active"`

	Active    bool      `yaml:"active"`
	StartTime time.Time `yaml:"start_time"`
	EndTime   time.Time `yaml:"end_time"`
}

// BotsFile represents the top-level YAML structure.
type BotsFile struct {
	Bots []BotConfig `yaml:"bots"`
}

// LoadBots reads bot entries from a YAML file.
func LoadBots(path string) ([]BotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file BotsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return file.Bots, nil
}

// BotStore persists users and their settings atomically.
type BotStore interface {
	SyncBots(ctx context.Context, users []db.User, settings []db.BotSetting) error
}

// SyncBots seals plaintext API keys with kr and upserts every bot in one
// transaction. Without a key the values are stored as given.
func SyncBots(ctx context.Context, store BotStore, kr *crypto.Keyring, bots []BotConfig) error {
	users := make([]db.User, 0, len(bots))
	settings := make([]db.BotSetting, 0, len(bots))
	for _, b := range bots {
		access, err := sealKey(kr, b.AccessKey)
		if err != nil {
			return fmt.Errorf("bot %s: seal access key: %w", b.UserID, err)
		}
		secret, err := sealKey(kr, b.SecretKey)
		if err != nil {
			return fmt.Errorf("bot %s: seal secret key: %w", b.UserID, err)
		}
		users = append(users, db.User{ID: b.UserID, Username: b.Username, AccessKey: access, SecretKey: secret})
		settings = append(settings, b.setting())
	}
	return store.SyncBots(ctx, users, settings)
}

func sealKey(kr *crypto.Keyring, v string) (string, error) {
	if kr == nil || kr.CurrentVersion() == 0 || v == "" || crypto.IsSealed(v) {
		return v, nil
	}
	return kr.Seal(v)
}

func (b BotConfig) setting() db.BotSetting {
	return db.BotSetting{
		UserID:                 b.UserID,
		BuyStrategy:            b.BuyStrategy,
		SellStrategy:           b.SellStrategy,
		Markets:                b.Markets,
		BuyBaseAmount:          b.BuyBaseAmount,
		BuyMaxAmount:           b.BuyMaxAmount,
		SellBaseAmount:         b.SellBaseAmount,
		SellMaxAmount:          b.SellMaxAmount,
		LossThreshold:          b.LossThreshold,
		ProfitThreshold:        b.ProfitThreshold,
		LossSellRatio:          b.LossSellRatio,
		ProfitSellRatio:        b.ProfitSellRatio,
		TimeoutSellMinutes:     b.TimeoutSellMinutes,
		TimeoutSellProfitRatio: b.TimeoutSellProfitRatio,
		LossManagementActive:   b.LossManagementActive,
		ProfitTakingActive:     b.ProfitTakingActive,
		TimeoutSellActive:      b.TimeoutSellActive,
		Active:                 b.Active,
		StartTime:              b.StartTime,
		EndTime:                b.EndTime,
	}
}
