package model

import (
	"database/sql"
	"strings"
	"time"
)

// ISINTickerMap caches the mapping from an ISIN to a market-data ticker,
// together with whatever the resolver chain learned about the security.
type ISINTickerMap struct {
	ISIN          string
	TickerSymbol  string
	Exchange      sql.NullString
	Currency      string
	SecurityName  string
	SecurityURL   string
	Source        string
	Category      string
	CreatedAt     time.Time
	LastCheckedAt sql.NullTime
}

// DailyPrice is one cached close for a ticker on a specific day.
// Keyed by (ticker_symbol, date); upsert-only, last writer wins.
type DailyPrice struct {
	TickerSymbol string
	Date         string // YYYY-MM-DD
	Price        float64
	Currency     string
	Source       string
	UpdatedAt    time.Time
}

// FxRate is one cached EUR exchange rate for a currency on a specific day.
// EurToCurrency is the amount of Currency one EUR buys.
type FxRate struct {
	Currency      string
	Date          string // YYYY-MM-DD
	EurToCurrency float64
	UpdatedAt     time.Time
}

// GetMappingByISIN returns the cached mapping for one ISIN, or nil when the
// identifier was never resolved.
func GetMappingByISIN(db *sql.DB, isin string) (*ISINTickerMap, error) {
	row := db.QueryRow(`
		SELECT isin, ticker_symbol, exchange, currency, security_name, security_url, source, category, created_at, last_checked_at
		FROM isin_ticker_map WHERE isin = ?`, isin)
	var m ISINTickerMap
	err := row.Scan(&m.ISIN, &m.TickerSymbol, &m.Exchange, &m.Currency, &m.SecurityName,
		&m.SecurityURL, &m.Source, &m.Category, &m.CreatedAt, &m.LastCheckedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMappingsByISINs retrieves multiple mappings in a single query, keyed by ISIN.
func GetMappingsByISINs(db *sql.DB, isins []string) (map[string]ISINTickerMap, error) {
	mappings := make(map[string]ISINTickerMap)
	if len(isins) == 0 {
		return mappings, nil
	}
	query := `
		SELECT isin, ticker_symbol, exchange, currency, security_name, security_url, source, category, created_at, last_checked_at
		FROM isin_ticker_map WHERE isin IN (?` + strings.Repeat(",?", len(isins)-1) + `)`
	args := make([]interface{}, len(isins))
	for i, isin := range isins {
		args[i] = isin
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m ISINTickerMap
		if err := rows.Scan(&m.ISIN, &m.TickerSymbol, &m.Exchange, &m.Currency, &m.SecurityName,
			&m.SecurityURL, &m.Source, &m.Category, &m.CreatedAt, &m.LastCheckedAt); err != nil {
			return nil, err
		}
		mappings[m.ISIN] = m
	}
	return mappings, rows.Err()
}

// InsertOrUpdateMapping saves a mapping, merging on the ISIN key.
func InsertOrUpdateMapping(db *sql.DB, m ISINTickerMap) error {
	query := `
		INSERT INTO isin_ticker_map (isin, ticker_symbol, exchange, currency, security_name, security_url, source, category, last_checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(isin) DO UPDATE SET
			ticker_symbol = excluded.ticker_symbol,
			exchange = excluded.exchange,
			currency = excluded.currency,
			security_name = CASE WHEN excluded.security_name != '' THEN excluded.security_name ELSE isin_ticker_map.security_name END,
			security_url = CASE WHEN excluded.security_url != '' THEN excluded.security_url ELSE isin_ticker_map.security_url END,
			source = excluded.source,
			category = excluded.category,
			last_checked_at = excluded.last_checked_at;`
	_, err := db.Exec(query, m.ISIN, m.TickerSymbol, m.Exchange, m.Currency,
		m.SecurityName, m.SecurityURL, m.Source, m.Category, time.Now())
	return err
}

// GetPrice returns the cached close for (ticker, date), or nil when absent.
func GetPrice(db *sql.DB, ticker, date string) (*DailyPrice, error) {
	row := db.QueryRow(`
		SELECT ticker_symbol, date, price, currency, source, updated_at
		FROM daily_prices WHERE ticker_symbol = ? AND date = ?`, ticker, date)
	var p DailyPrice
	err := row.Scan(&p.TickerSymbol, &p.Date, &p.Price, &p.Currency, &p.Source, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetLatestPriceOnOrBefore is the canonical "as of" read: the most recent
// close with date <= the requested date. Never interpolates, never returns a
// future value; nil when no row qualifies.
func GetLatestPriceOnOrBefore(db *sql.DB, ticker, date string) (*DailyPrice, error) {
	row := db.QueryRow(`
		SELECT ticker_symbol, date, price, currency, source, updated_at
		FROM daily_prices WHERE ticker_symbol = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`, ticker, date)
	var p DailyPrice
	err := row.Scan(&p.TickerSymbol, &p.Date, &p.Price, &p.Currency, &p.Source, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertOrUpdatePrice saves a close to the cache, updating if one already
// exists for that day.
func InsertOrUpdatePrice(db *sql.DB, p DailyPrice) error {
	query := `
		INSERT INTO daily_prices (ticker_symbol, date, price, currency, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker_symbol, date) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency,
			source = excluded.source,
			updated_at = excluded.updated_at;`
	_, err := db.Exec(query, p.TickerSymbol, p.Date, p.Price, p.Currency, p.Source, time.Now())
	return err
}

// GetExistingPriceDates returns the set of dates in [from, to] that already
// have a cached close for the ticker.
func GetExistingPriceDates(db *sql.DB, ticker, from, to string) (map[string]bool, error) {
	rows, err := db.Query(`
		SELECT date FROM daily_prices
		WHERE ticker_symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`, ticker, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	existing := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		existing[d] = true
	}
	return existing, rows.Err()
}

// GetFxRate returns the cached rate for (currency, date), or nil when absent.
func GetFxRate(db *sql.DB, currency, date string) (*FxRate, error) {
	row := db.QueryRow(`
		SELECT currency, date, eur_to_currency, updated_at
		FROM fx_rates WHERE currency = ? AND date = ?`, currency, date)
	var r FxRate
	err := row.Scan(&r.Currency, &r.Date, &r.EurToCurrency, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetLatestFxOnOrBefore mirrors GetLatestPriceOnOrBefore for exchange rates.
func GetLatestFxOnOrBefore(db *sql.DB, currency, date string) (*FxRate, error) {
	row := db.QueryRow(`
		SELECT currency, date, eur_to_currency, updated_at
		FROM fx_rates WHERE currency = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`, currency, date)
	var r FxRate
	err := row.Scan(&r.Currency, &r.Date, &r.EurToCurrency, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertOrUpdateFxRate saves a rate, merging on (currency, date).
func InsertOrUpdateFxRate(db *sql.DB, r FxRate) error {
	query := `
		INSERT INTO fx_rates (currency, date, eur_to_currency, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(currency, date) DO UPDATE SET
			eur_to_currency = excluded.eur_to_currency,
			updated_at = excluded.updated_at;`
	_, err := db.Exec(query, r.Currency, r.Date, r.EurToCurrency, time.Now())
	return err
}

// GetExistingFxDates returns the set of dates in [from, to] that already have
// a cached rate for the currency.
func GetExistingFxDates(db *sql.DB, currency, from, to string) (map[string]bool, error) {
	rows, err := db.Query(`
		SELECT date FROM fx_rates
		WHERE currency = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`, currency, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	existing := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		existing[d] = true
	}
	return existing, rows.Err()
}

// GetFirstFxOnOrAfter returns the earliest cached rate with date >= the
// requested date. Used to synthesize anchor rows for off-trading-day dates.
func GetFirstFxOnOrAfter(db *sql.DB, currency, date string) (*FxRate, error) {
	row := db.QueryRow(`
		SELECT currency, date, eur_to_currency, updated_at
		FROM fx_rates WHERE currency = ? AND date >= ?
		ORDER BY date ASC LIMIT 1`, currency, date)
	var r FxRate
	err := row.Scan(&r.Currency, &r.Date, &r.EurToCurrency, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetFirstPriceOnOrAfter mirrors GetFirstFxOnOrAfter for closes.
func GetFirstPriceOnOrAfter(db *sql.DB, ticker, date string) (*DailyPrice, error) {
	row := db.QueryRow(`
		SELECT ticker_symbol, date, price, currency, source, updated_at
		FROM daily_prices WHERE ticker_symbol = ? AND date >= ?
		ORDER BY date ASC LIMIT 1`, ticker, date)
	var p DailyPrice
	err := row.Scan(&p.TickerSymbol, &p.Date, &p.Price, &p.Currency, &p.Source, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
