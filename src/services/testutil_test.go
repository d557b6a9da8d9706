package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/username/wertfolio/backend/src/config"
	_ "modernc.org/sqlite"
)

// newServiceTestDB opens an in-memory database with the full schema,
// mirroring the migrations.
func newServiceTestDB(t *testing.T) *sql.DB {
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

// setTestConfig points every outbound endpoint at the given test server and
// disables the session warmup round-trips.
func setTestConfig(t *testing.T, baseURL string) {
	t.Helper()
	prevCfg := config.Cfg
	prevWarmup := sessionWarmupURLs
	config.Cfg = &config.AppConfig{
		Port:               "0",
		LogLevel:           "error",
		InstitutionBaseURL: baseURL,
		ClosePageLimit:     2,
		YahooBaseURLs:      []string{baseURL},
		OpenFIGIURL:        baseURL + "/figi",
		TodayPriceMaxAge:   30 * time.Minute,
		HTTPTimeout:        5 * time.Second,
	}
	sessionWarmupURLs = nil
	t.Cleanup(func() {
		config.Cfg = prevCfg
		sessionWarmupURLs = prevWarmup
	})
}
