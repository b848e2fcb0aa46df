package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const marketSignalColumns = `
	market, consecutive_drop_count, consecutive_pop_count,
	last_drop_at_ms, last_pop_at_ms, last_flip_up_at_ms, last_flip_down_at_ms,
	previous_atr`

func scanMarketSignal(row rowScanner) (MarketSignal, error) {
	var (
		m                         MarketSignal
		drop, pop, flipUp, flipDn sql.NullInt64
		atr                       sql.NullFloat64
	)
	if err := row.Scan(&m.Market, &m.DropCount, &m.PopCount, &drop, &pop, &flipUp, &flipDn, &atr); err != nil {
		return MarketSignal{}, err
	}
	m.LastDropAt = timePtr(drop)
	m.LastPopAt = timePtr(pop)
	m.LastFlipUpAt = timePtr(flipUp)
	m.LastFlipDownAt = timePtr(flipDn)
	if atr.Valid {
		v := atr.Float64
		m.PreviousATR = &v
	}
	return m, nil
}

// GetMarketSignal loads the signal state of a market, or ErrNotFound.
func (d *Database) GetMarketSignal(ctx context.Context, market string) (MarketSignal, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+marketSignalColumns+` FROM market_signals WHERE market = ?`, market)
	m, err := scanMarketSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MarketSignal{}, ErrNotFound
	}
	if err != nil {
		return MarketSignal{}, fmt.Errorf("query market signal: %w", err)
	}
	return m, nil
}

// ListMarketSignals returns every stored market state.
func (d *Database) ListMarketSignals(ctx context.Context) ([]MarketSignal, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT `+marketSignalColumns+` FROM market_signals ORDER BY market`)
	if err != nil {
		return nil, fmt.Errorf("query market signals: %w", err)
	}
	defer rows.Close()

	var out []MarketSignal
	for rows.Next() {
		m, err := scanMarketSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market signal: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMarketSignal reads the state of market (creating an empty one on
// first reference), applies fn and writes the result in one transaction.
// Nothing is written when fn returns an error.
func (d *Database) UpdateMarketSignal(ctx context.Context, market string, fn func(*MarketSignal) error) (MarketSignal, error) {
	if market == "" {
		return MarketSignal{}, errors.New("market is required")
	}
	var out MarketSignal
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+marketSignalColumns+` FROM market_signals WHERE market = ?`, market)
		m, err := scanMarketSignal(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			m = MarketSignal{Market: market}
		case err != nil:
			return fmt.Errorf("query market signal: %w", err)
		}

		if err := fn(&m); err != nil {
			return err
		}
		if m.DropCount < 0 || m.PopCount < 0 {
			return fmt.Errorf("market %s: negative counter (drop=%d pop=%d)", market, m.DropCount, m.PopCount)
		}

		var atr sql.NullFloat64
		if m.PreviousATR != nil {
			atr = sql.NullFloat64{Float64: *m.PreviousATR, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO market_signals (
				market, consecutive_drop_count, consecutive_pop_count,
				last_drop_at_ms, last_pop_at_ms, last_flip_up_at_ms, last_flip_down_at_ms,
				previous_atr, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(market) DO UPDATE SET
				consecutive_drop_count = excluded.consecutive_drop_count,
				consecutive_pop_count = excluded.consecutive_pop_count,
				last_drop_at_ms = excluded.last_drop_at_ms,
				last_pop_at_ms = excluded.last_pop_at_ms,
				last_flip_up_at_ms = excluded.last_flip_up_at_ms,
				last_flip_down_at_ms = excluded.last_flip_down_at_ms,
				previous_atr = excluded.previous_atr,
				updated_at = CURRENT_TIMESTAMP
		`, market, m.DropCount, m.PopCount,
			nullMillis(m.LastDropAt), nullMillis(m.LastPopAt),
			nullMillis(m.LastFlipUpAt), nullMillis(m.LastFlipDownAt), atr)
		if err != nil {
			return fmt.Errorf("upsert market signal: %w", err)
		}
		m.Market = market
		out = m
		return nil
	})
	if err != nil {
		return MarketSignal{}, err
	}
	return out, nil
}
