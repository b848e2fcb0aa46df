package gateway

import (
	"github.com/rs/zerolog"

	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
	"signal-engine/pkg/exchanges/upbit"
)

// UpbitFactory builds signed Upbit clients sharing base settings.
func UpbitFactory(base upbit.Config, log zerolog.Logger) Factory {
	return func(user db.User, accessKey, secretKey string) (exchange.Gateway, error) {
		if accessKey == "" || secretKey == "" {
			return nil, ErrNoCredentials
		}
		cfg := base
		cfg.AccessKey = accessKey
		cfg.SecretKey = secretKey
		return upbit.New(cfg, log.With().Str("user", user.ID).Logger()), nil
	}
}

// SimulatorFactory gives every user a paper-trading gateway funded with
// initialKRW. Credentials are ignored.
func SimulatorFactory(cfg SimulatorConfig) Factory {
	return func(user db.User, _, _ string) (exchange.Gateway, error) {
		return NewSimulator(cfg), nil
	}
}
