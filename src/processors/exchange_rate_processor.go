package processors

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/wertfolio/backend/src/model"
	"github.com/username/wertfolio/backend/src/utils"
)

// In-process layer in front of the fx_rates table. Historical rates never
// change, so a generous TTL is safe; today's rate is still moving and gets
// only a short one so store refreshes become visible.
var (
	rateCache    = cache.New(24*time.Hour, 48*time.Hour)
	todayRateTTL = 5 * time.Minute
)

// GetEurRate returns the EUR->currency rate as of the given date
// (YYYY-MM-DD), read as latest-on-or-before from the fx_rates store. A
// weekend or holiday date therefore resolves to the prior business day's
// rate. The store itself is filled by the price service's EnsureFxHistory;
// this function performs no network I/O.
func GetEurRate(db *sql.DB, currency, date string) (float64, error) {
	if currency == "EUR" {
		return 1.0, nil
	}

	cacheKey := fmt.Sprintf("rate-%s-%s", currency, date)
	if rate, found := rateCache.Get(cacheKey); found {
		return rate.(float64), nil
	}

	row, err := model.GetLatestFxOnOrBefore(db, currency, date)
	if err != nil {
		return 0, fmt.Errorf("fx lookup failed for %s: %w", currency, err)
	}
	if row == nil {
		return 0, fmt.Errorf("exchange rate not found for %s on or before %s", currency, date)
	}

	ttl := cache.DefaultExpiration
	if date == utils.Day(time.Now().UTC()).Format("2006-01-02") {
		ttl = todayRateTTL
	}
	rateCache.Set(cacheKey, row.EurToCurrency, ttl)
	return row.EurToCurrency, nil
}

// FlushRateCache clears the in-process rate cache. Tests use it to avoid
// cross-test leakage of cached rates.
func FlushRateCache() {
	rateCache.Flush()
}
