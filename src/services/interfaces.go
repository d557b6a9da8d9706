package services

import (
	"errors"

	"github.com/username/wertfolio/backend/src/models"
)

// Common service errors.
var (
	ErrInvalidIdentifier = errors.New("identifier is not an ISIN or ticker symbol")
	ErrNoQuote           = errors.New("no quote data found")
	ErrNameNotFound      = errors.New("no security name found")
)

// Quote is a current-market snapshot for one ticker. Price may come from the
// daily_prices cache (Cached=true) when today's row is fresh, in which case
// Name and Exchange can be empty and the caller falls back to stored
// metadata.
type Quote struct {
	Symbol   string
	Name     string
	Price    float64
	Currency string
	Exchange string
	Cached   bool
}

// Bar is one daily close from a market-data history endpoint.
type Bar struct {
	Date  string // YYYY-MM-DD
	Close float64
}

// PriceService fetches current and historical market data, maintaining the
// daily_prices and fx_rates caches as it goes.
type PriceService interface {
	// GetQuote returns the current price (and, when fetched live, name and
	// exchange) for a ticker. A cached "today" close younger than the
	// configured staleness window is served without a network call.
	GetQuote(symbol string) (*Quote, error)

	// SearchByIdentifier resolves an ISIN or free-form query to a ticker via
	// the provider's search endpoint.
	SearchByIdentifier(query string) (symbol, exchange, currency, shortName string, err error)

	// GetDailyBars fetches daily closes for [from, to] (YYYY-MM-DD bounds).
	GetDailyBars(symbol, from, to string) ([]Bar, string, error)

	// FindCloseNear looks for a close on the exact date within a +/- window,
	// falling back to the nearest prior trading date inside the window.
	FindCloseNear(symbol, date string, windowDays int) (float64, string, error)

	// EnsureFxHistory fills the fx_rates table for the currency from fromDate
	// through today, batching missing business dates into contiguous ranges
	// and anchoring fromDate itself if the provider has no bar for it.
	EnsureFxHistory(currency, fromDate string) error

	// EnsurePriceHistory fills the daily_prices table for the given dates,
	// anchoring any date the provider has no bar for.
	EnsurePriceHistory(symbol string, dates []string) error
}

// ResolverService runs the ordered source-fallback chain for a single
// identifier: institution site scrape, then public market-data providers.
type ResolverService interface {
	// Resolve returns display metadata and, when txnDate is non-empty, the
	// closing price on that date (or the "unavailable" sentinel). It returns
	// ErrNameNotFound only when every name source is exhausted.
	Resolve(isin, txnDate string) (*models.SecurityMetadata, error)
}
