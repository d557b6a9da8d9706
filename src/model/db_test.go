package model

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newTestDB opens an in-memory database with the full schema, mirroring the
// migrations.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
			quantity REAL NOT NULL CHECK (quantity > 0),
			price REAL NOT NULL CHECK (price > 0),
			txn_date TEXT NOT NULL,
			security_name TEXT NOT NULL DEFAULT '',
			txn_close_price TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE daily_prices (
			ticker_symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			price REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (ticker_symbol, date)
		);
		CREATE TABLE fx_rates (
			currency TEXT NOT NULL,
			date TEXT NOT NULL,
			eur_to_currency REAL NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (currency, date)
		);
		CREATE TABLE isin_ticker_map (
			isin TEXT PRIMARY KEY,
			ticker_symbol TEXT NOT NULL,
			exchange TEXT,
			currency TEXT NOT NULL DEFAULT '',
			security_name TEXT NOT NULL DEFAULT '',
			security_url TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_checked_at TIMESTAMP
		);`)
	require.NoError(t, err)
	return db
}
