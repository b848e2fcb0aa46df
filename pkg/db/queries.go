package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ----------------------------------------
// User Queries
// ----------------------------------------

// UpsertUser creates or updates a user row.
func (d *Database) UpsertUser(ctx context.Context, u User) error {
	return upsertUser(ctx, d.DB, u)
}

func upsertUser(ctx context.Context, ex execer, u User) error {
	if u.ID == "" {
		return ErrUserIDRequired
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO users (id, username, access_key, secret_key, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			access_key = excluded.access_key,
			secret_key = excluded.secret_key,
			updated_at = CURRENT_TIMESTAMP
	`, u.ID, u.Username, u.AccessKey, u.SecretKey)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (d *Database) GetUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrUserIDRequired
	}
	var u User
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, username, access_key, secret_key FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Username, &u.AccessKey, &u.SecretKey)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// ----------------------------------------
// Bot Setting Queries
// ----------------------------------------

// UpsertBotSetting creates or replaces a user's bot setting.
func (d *Database) UpsertBotSetting(ctx context.Context, s BotSetting) error {
	return upsertBotSetting(ctx, d.DB, s)
}

func upsertBotSetting(ctx context.Context, ex execer, s BotSetting) error {
	if s.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO bot_settings (
			user_id, buy_strategy, sell_strategy, markets,
			buy_base_amount, buy_max_amount, sell_base_amount, sell_max_amount,
			loss_threshold, profit_threshold, loss_sell_ratio, profit_sell_ratio,
			is_loss_management_active, is_profit_taking_active, is_timeout_sell_active,
			timeout_sell_minutes, timeout_sell_profit_ratio,
			is_active, start_ms, end_ms, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			buy_strategy = excluded.buy_strategy,
			sell_strategy = excluded.sell_strategy,
			markets = excluded.markets,
			buy_base_amount = excluded.buy_base_amount,
			buy_max_amount = excluded.buy_max_amount,
			sell_base_amount = excluded.sell_base_amount,
			sell_max_amount = excluded.sell_max_amount,
			loss_threshold = excluded.loss_threshold,
			profit_threshold = excluded.profit_threshold,
			loss_sell_ratio = excluded.loss_sell_ratio,
			profit_sell_ratio = excluded.profit_sell_ratio,
			is_loss_management_active = excluded.is_loss_management_active,
			is_profit_taking_active = excluded.is_profit_taking_active,
			is_timeout_sell_active = excluded.is_timeout_sell_active,
			timeout_sell_minutes = excluded.timeout_sell_minutes,
			timeout_sell_profit_ratio = excluded.timeout_sell_profit_ratio,
			is_active = excluded.is_active,
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			updated_at = CURRENT_TIMESTAMP
	`,
		s.UserID, s.BuyStrategy, s.SellStrategy, strings.Join(s.Markets, ","),
		s.BuyBaseAmount, s.BuyMaxAmount, s.SellBaseAmount, s.SellMaxAmount,
		s.LossThreshold, s.ProfitThreshold, s.LossSellRatio, s.ProfitSellRatio,
		s.LossManagementActive, s.ProfitTakingActive, s.TimeoutSellActive,
		s.TimeoutSellMinutes, s.TimeoutSellProfitRatio,
		s.Active, toMillis(s.StartTime), toMillis(s.EndTime),
	)
	if err != nil {
		return fmt.Errorf("upsert bot setting: %w", err)
	}
	return nil
}

const botSettingColumns = `
	s.user_id, s.buy_strategy, s.sell_strategy, s.markets,
	s.buy_base_amount, s.buy_max_amount, s.sell_base_amount, s.sell_max_amount,
	s.loss_threshold, s.profit_threshold, s.loss_sell_ratio, s.profit_sell_ratio,
	s.is_loss_management_active, s.is_profit_taking_active, s.is_timeout_sell_active,
	s.timeout_sell_minutes, s.timeout_sell_profit_ratio,
	s.is_active, s.start_ms, s.end_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBotSetting(row rowScanner, extra ...any) (BotSetting, error) {
	var (
		s       BotSetting
		markets string
		startMs int64
		endMs   int64
	)
	dest := []any{
		&s.UserID, &s.BuyStrategy, &s.SellStrategy, &markets,
		&s.BuyBaseAmount, &s.BuyMaxAmount, &s.SellBaseAmount, &s.SellMaxAmount,
		&s.LossThreshold, &s.ProfitThreshold, &s.LossSellRatio, &s.ProfitSellRatio,
		&s.LossManagementActive, &s.ProfitTakingActive, &s.TimeoutSellActive,
		&s.TimeoutSellMinutes, &s.TimeoutSellProfitRatio,
		&s.Active, &startMs, &endMs,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return BotSetting{}, err
	}
	s.Markets = splitMarkets(markets)
	s.StartTime = fromMillis(startMs)
	s.EndTime = fromMillis(endMs)
	return s, nil
}

// GetBotSetting loads the setting for a user.
func (d *Database) GetBotSetting(ctx context.Context, userID string) (BotSetting, error) {
	if userID == "" {
		return BotSetting{}, ErrUserIDRequired
	}
	row := d.DB.QueryRowContext(ctx, `SELECT `+botSettingColumns+` FROM bot_settings s WHERE s.user_id = ?`, userID)
	s, err := scanBotSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BotSetting{}, ErrNotFound
	}
	if err != nil {
		return BotSetting{}, fmt.Errorf("query bot setting: %w", err)
	}
	return s, nil
}

// FindActiveUsers returns users whose bot is enabled and whose run window
// covers now.
func (d *Database) FindActiveUsers(ctx context.Context, now time.Time) ([]ActiveUser, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+botSettingColumns+`, u.username, u.access_key, u.secret_key
		FROM bot_settings s
		JOIN users u ON u.id = s.user_id
		WHERE s.is_active = 1
		ORDER BY s.user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()

	var out []ActiveUser
	for rows.Next() {
		var u User
		s, err := scanBotSetting(rows, &u.Username, &u.AccessKey, &u.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("scan active user: %w", err)
		}
		if !s.RunningAt(now) {
			continue
		}
		u.ID = s.UserID
		out = append(out, ActiveUser{User: u, Setting: s})
	}
	return out, rows.Err()
}

func splitMarkets(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SyncBots upserts users and their settings in one transaction. Used when
// seeding from configs/bots.yaml.
func (d *Database) SyncBots(ctx context.Context, users []User, settings []BotSetting) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range users {
			if err := upsertUser(ctx, tx, u); err != nil {
				return err
			}
		}
		for _, s := range settings {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("bot %s: %w", s.UserID, err)
			}
			if err := upsertBotSetting(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
}
