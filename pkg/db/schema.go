package db

import (
	"database/sql"
	"fmt"
)

// Timestamps the engine compares or orders by are stored as unix
// milliseconds; audit columns keep CURRENT_TIMESTAMP.
const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    access_key TEXT NOT NULL DEFAULT '',
    secret_key TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bot_settings (
    user_id TEXT PRIMARY KEY,
    buy_strategy TEXT NOT NULL,
    sell_strategy TEXT NOT NULL,
    markets TEXT NOT NULL DEFAULT '',
    buy_base_amount REAL NOT NULL,
    buy_max_amount REAL NOT NULL,
    sell_base_amount REAL NOT NULL,
    sell_max_amount REAL NOT NULL,
    loss_threshold REAL NOT NULL DEFAULT 0.01,
    profit_threshold REAL NOT NULL DEFAULT 0.02,
    loss_sell_ratio REAL NOT NULL DEFAULT 0.5,
    profit_sell_ratio REAL NOT NULL DEFAULT 0.5,
    is_loss_management_active INTEGER NOT NULL DEFAULT 1,
    is_profit_taking_active INTEGER NOT NULL DEFAULT 1,
    is_active INTEGER NOT NULL DEFAULT 0,
    start_ms INTEGER NOT NULL DEFAULT 0,
    end_ms INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    market TEXT NOT NULL,
    type TEXT NOT NULL,
    order_id TEXT NOT NULL,
    price TEXT NOT NULL,
    amount TEXT NOT NULL,
    total_price TEXT NOT NULL,
    status TEXT NOT NULL,
    strategy TEXT NOT NULL,
    executed_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_user_market_type ON trades(user_id, market, type, executed_at_ms);

CREATE TABLE IF NOT EXISTS market_signals (
    market TEXT PRIMARY KEY,
    consecutive_drop_count INTEGER NOT NULL DEFAULT 0 CHECK (consecutive_drop_count >= 0),
    consecutive_pop_count INTEGER NOT NULL DEFAULT 0 CHECK (consecutive_pop_count >= 0),
    last_drop_at_ms INTEGER,
    last_pop_at_ms INTEGER,
    last_flip_up_at_ms INTEGER,
    last_flip_down_at_ms INTEGER,
    previous_atr REAL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Columns added after the first release.
	if err := ensureColumn(d.DB, "trades", "signal_origin", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bot_settings", "is_timeout_sell_active", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bot_settings", "timeout_sell_minutes", "INTEGER NOT NULL DEFAULT 30"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "bot_settings", "timeout_sell_profit_ratio", "REAL NOT NULL DEFAULT 0.001"); err != nil {
		return err
	}
	return nil
}

func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, fmt.Errorf("scan table_info(%s): %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
