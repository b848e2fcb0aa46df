package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateTrade inserts a new trade. ExecutedAt defaults to now.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = TradeWait
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, user_id, market, type, order_id, price, amount, total_price,
			status, strategy, signal_origin, executed_at_ms, updated_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.UserID, t.Market, string(t.Type), t.OrderID,
		t.Price.String(), t.Amount.String(), t.TotalPrice.String(),
		string(t.Status), t.Strategy, t.SignalOrigin,
		toMillis(t.ExecutedAt), toMillis(t.ExecutedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

const tradeColumns = `
	id, user_id, market, type, order_id, price, amount, total_price,
	status, strategy, signal_origin, executed_at_ms, updated_at_ms`

func scanTrade(row rowScanner) (Trade, error) {
	var (
		t                     Trade
		typ, status           string
		executedMs, updatedMs int64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Market, &typ, &t.OrderID,
		&t.Price, &t.Amount, &t.TotalPrice,
		&status, &t.Strategy, &t.SignalOrigin, &executedMs, &updatedMs)
	if err != nil {
		return Trade{}, err
	}
	t.Type = TradeType(typ)
	t.Status = TradeStatus(status)
	t.ExecutedAt = fromMillis(executedMs)
	t.UpdatedAt = fromMillis(updatedMs)
	return t, nil
}

// GetTrade loads a trade by id.
func (d *Database) GetTrade(ctx context.Context, id string) (Trade, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, ErrNotFound
	}
	if err != nil {
		return Trade{}, fmt.Errorf("query trade: %w", err)
	}
	return t, nil
}

// ListTradesByStatus returns trades in the given status, oldest first.
func (d *Database) ListTradesByStatus(ctx context.Context, status TradeStatus) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE status = ? ORDER BY executed_at_ms ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query trades by status: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTradesByUser returns the most recent trades of a user.
func (d *Database) ListTradesByUser(ctx context.Context, userID string, limit int) ([]Trade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE user_id = ? ORDER BY executed_at_ms DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades by user: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindLastTrade returns the most recent trade of the given type for
// (user, market), or ErrNotFound.
func (d *Database) FindLastTrade(ctx context.Context, userID, market string, typ TradeType) (Trade, error) {
	if userID == "" {
		return Trade{}, ErrUserIDRequired
	}
	row := d.DB.QueryRowContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE user_id = ? AND market = ? AND type = ?
		ORDER BY executed_at_ms DESC LIMIT 1
	`, userID, market, string(typ))
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, ErrNotFound
	}
	if err != nil {
		return Trade{}, fmt.Errorf("query last trade: %w", err)
	}
	return t, nil
}

// ResolveTrade moves a WAIT trade to a terminal status. Any other current
// status yields ErrInvalidTransition, so terminal trades never change.
func (d *Database) ResolveTrade(ctx context.Context, id string, to TradeStatus) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: target %s is not terminal", ErrInvalidTransition, to)
	}
	res, err := d.DB.ExecContext(ctx, `
		UPDATE trades SET status = ?, updated_at_ms = ?
		WHERE id = ? AND status = ?
	`, string(to), time.Now().UnixMilli(), id, string(TradeWait))
	if err != nil {
		return fmt.Errorf("update trade status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := d.GetTrade(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}
