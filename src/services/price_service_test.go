package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/wertfolio/backend/src/model"
	"github.com/username/wertfolio/backend/src/utils"
)

// chartJSON renders a minimal chart payload. bars maps YYYY-MM-DD to close.
func chartJSON(symbol, currency string, marketPrice float64, bars map[string]float64) string {
	var timestamps, closes []string
	var dates []string
	for d := range bars {
		dates = append(dates, d)
	}
	// Stable order for the parallel arrays.
	for i := 0; i < len(dates); i++ {
		for j := i + 1; j < len(dates); j++ {
			if dates[j] < dates[i] {
				dates[i], dates[j] = dates[j], dates[i]
			}
		}
	}
	for _, d := range dates {
		t, _ := time.Parse("2006-01-02", d)
		timestamps = append(timestamps, strconv.FormatInt(t.Unix(), 10))
		closes = append(closes, strconv.FormatFloat(bars[d], 'f', -1, 64))
	}
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":%q,"symbol":%q,"shortName":"Test Security","exchangeName":"TST","regularMarketPrice":%g},"timestamp":[%s],"indicators":{"quote":[{"close":[%s]}]}}],"error":null}}`,
		currency, symbol, marketPrice, strings.Join(timestamps, ","), strings.Join(closes, ","))
}

func newMarketDataServer(t *testing.T, chartHits *int64, payloadFor func(symbol string) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/test/getcrumb":
			fmt.Fprint(w, "test-crumb")
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"):
			if chartHits != nil {
				atomic.AddInt64(chartHits, 1)
			}
			symbol := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
			fmt.Fprint(w, payloadFor(symbol))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetQuoteNormalizesMinorUnits(t *testing.T) {
	var hits int64
	srv := newMarketDataServer(t, &hits, func(symbol string) string {
		return chartJSON(symbol, "GBp", 250.0, nil)
	})
	setTestConfig(t, srv.URL)
	db := newServiceTestDB(t)

	svc := NewPriceService(db)
	quote, err := svc.GetQuote("TEST.L")
	require.NoError(t, err)

	assert.InDelta(t, 2.5, quote.Price, 1e-12)
	assert.Equal(t, "GBP", quote.Currency)
	assert.Equal(t, "Test Security", quote.Name)
	assert.False(t, quote.Cached)

	// The fetched quote lands in the daily price cache as today's row.
	today := time.Now().UTC().Format("2006-01-02")
	row, err := model.GetPrice(db, "TEST.L", today)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.InDelta(t, 2.5, row.Price, 1e-12)
	assert.Equal(t, "GBP", row.Currency)
}

func TestGetQuoteServesFreshTodayRowWithoutNetwork(t *testing.T) {
	var hits int64
	srv := newMarketDataServer(t, &hits, func(symbol string) string {
		return chartJSON(symbol, "EUR", 99.0, nil)
	})
	setTestConfig(t, srv.URL)
	db := newServiceTestDB(t)

	today := time.Now().UTC().Format("2006-01-02")
	require.NoError(t, model.InsertOrUpdatePrice(db, model.DailyPrice{
		TickerSymbol: "ACME.DE", Date: today, Price: 42.5, Currency: "EUR", Source: "yahoo-chart",
	}))

	svc := NewPriceService(db)
	quote, err := svc.GetQuote("ACME.DE")
	require.NoError(t, err)

	assert.True(t, quote.Cached)
	assert.InDelta(t, 42.5, quote.Price, 1e-12)
	assert.Equal(t, int64(0), atomic.LoadInt64(&hits))
}

func TestGetQuoteRefreshesStaleTodayRow(t *testing.T) {
	var hits int64
	srv := newMarketDataServer(t, &hits, func(symbol string) string {
		return chartJSON(symbol, "EUR", 99.0, nil)
	})
	setTestConfig(t, srv.URL)
	db := newServiceTestDB(t)

	today := time.Now().UTC().Format("2006-01-02")
	require.NoError(t, model.InsertOrUpdatePrice(db, model.DailyPrice{
		TickerSymbol: "ACME.DE", Date: today, Price: 42.5, Currency: "EUR",
	}))
	_, err := db.Exec(`UPDATE daily_prices SET updated_at = ?`, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	svc := NewPriceService(db)
	quote, err := svc.GetQuote("ACME.DE")
	require.NoError(t, err)

	assert.False(t, quote.Cached)
	assert.InDelta(t, 99.0, quote.Price, 1e-12)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestFindCloseNear(t *testing.T) {
	bars := map[string]float64{
		"2024-03-06": 95.0,
		"2024-03-07": 96.0,
		"2024-03-08": 97.11,
	}
	srv := newMarketDataServer(t, nil, func(symbol string) string {
		return chartJSON(symbol, "EUR", 97.11, bars)
	})
	setTestConfig(t, srv.URL)
	svc := NewPriceService(newServiceTestDB(t))

	// Exact trading day.
	close, currency, err := svc.FindCloseNear("ACME.DE", "2024-03-07", 7)
	require.NoError(t, err)
	assert.InDelta(t, 96.0, close, 1e-12)
	assert.Equal(t, "EUR", currency)

	// Saturday falls back to the Friday close.
	close, _, err = svc.FindCloseNear("ACME.DE", "2024-03-09", 7)
	require.NoError(t, err)
	assert.InDelta(t, 97.11, close, 1e-12)

	// Nothing on or before the window start.
	_, _, err = svc.FindCloseNear("ACME.DE", "2024-03-01", 2)
	assert.Error(t, err)
}

func TestMissingRangesCoalescing(t *testing.T) {
	ranges := missingRanges([]string{
		"2024-06-03", "2024-06-04", "2024-06-07",
		// More than a week later: new range.
		"2024-06-24", "2024-06-25",
	})
	assert.Equal(t, [][2]string{
		{"2024-06-03", "2024-06-07"},
		{"2024-06-24", "2024-06-25"},
	}, ranges)

	assert.Nil(t, missingRanges(nil))
}

func TestEnsurePriceHistoryAnchorsOffTradingDays(t *testing.T) {
	bars := map[string]float64{"2024-06-10": 101.0}
	srv := newMarketDataServer(t, nil, func(symbol string) string {
		return chartJSON(symbol, "EUR", 101.0, bars)
	})
	setTestConfig(t, srv.URL)
	db := newServiceTestDB(t)
	svc := NewPriceService(db)

	// Saturday the 8th has no provider bar; Monday the 10th does.
	require.NoError(t, svc.EnsurePriceHistory("ACME.DE", []string{"2024-06-08", "2024-06-10"}))

	monday, err := model.GetPrice(db, "ACME.DE", "2024-06-10")
	require.NoError(t, err)
	require.NotNil(t, monday)
	assert.Equal(t, "yahoo-history", monday.Source)

	saturday, err := model.GetPrice(db, "ACME.DE", "2024-06-08")
	require.NoError(t, err)
	require.NotNil(t, saturday)
	assert.InDelta(t, 101.0, saturday.Price, 1e-12)
	assert.Equal(t, "anchor", saturday.Source)
}

func TestEnsureFxHistoryFillsAndAnchors(t *testing.T) {
	// A weekend purchase date before the first trading day in range.
	now := utils.Day(time.Now().UTC())
	start := now.AddDate(0, 0, -14)
	for start.Weekday() != time.Saturday {
		start = start.AddDate(0, 0, -1)
	}
	fromDate := start.Format("2006-01-02")

	bars := map[string]float64{}
	for _, d := range utils.BusinessDaysBetween(start, now) {
		bars[d.Format("2006-01-02")] = 1.08
	}
	srv := newMarketDataServer(t, nil, func(symbol string) string {
		assert.Equal(t, "EURUSD=X", symbol)
		return chartJSON(symbol, "USD", 1.08, bars)
	})
	setTestConfig(t, srv.URL)
	db := newServiceTestDB(t)
	svc := NewPriceService(db)

	require.NoError(t, svc.EnsureFxHistory("USD", fromDate))

	// The Saturday itself is anchored from the following Monday's rate.
	anchor, err := model.GetFxRate(db, "USD", fromDate)
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.InDelta(t, 1.08, anchor.EurToCurrency, 1e-12)

	monday := start.AddDate(0, 0, 2).Format("2006-01-02")
	row, err := model.GetFxRate(db, "USD", monday)
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestEnsureFxHistoryRefreshesStaleTodayRate(t *testing.T) {
	today := utils.Day(time.Now().UTC()).Format("2006-01-02")

	var chartHits int64
	srv := newMarketDataServer(t, &chartHits, func(symbol string) string {
		return chartJSON(symbol, "USD", 1.10, map[string]float64{today: 1.10})
	})
	setTestConfig(t, srv.URL)
	db := newServiceTestDB(t)

	// Every business day up to today already has a rate, but today's row was
	// written hours ago and the market has moved since.
	from := utils.Day(time.Now().UTC()).AddDate(0, 0, -7)
	for _, d := range utils.BusinessDaysBetween(from, utils.Day(time.Now().UTC())) {
		require.NoError(t, model.InsertOrUpdateFxRate(db, model.FxRate{
			Currency: "USD", Date: d.Format("2006-01-02"), EurToCurrency: 1.05,
		}))
	}
	require.NoError(t, model.InsertOrUpdateFxRate(db, model.FxRate{Currency: "USD", Date: today, EurToCurrency: 1.05}))
	_, err := db.Exec(`UPDATE fx_rates SET updated_at = ?`, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	svc := NewPriceService(db)
	require.NoError(t, svc.EnsureFxHistory("USD", from.Format("2006-01-02")))

	assert.Equal(t, int64(1), atomic.LoadInt64(&chartHits))
	row, err := model.GetFxRate(db, "USD", today)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.InDelta(t, 1.10, row.EurToCurrency, 1e-12)
}

func TestEnsureFxHistorySkipsFreshTodayRate(t *testing.T) {
	today := utils.Day(time.Now().UTC()).Format("2006-01-02")

	var chartHits int64
	srv := newMarketDataServer(t, &chartHits, func(symbol string) string {
		return chartJSON(symbol, "USD", 1.10, map[string]float64{today: 1.10})
	})
	setTestConfig(t, srv.URL)
	db := newServiceTestDB(t)

	require.NoError(t, model.InsertOrUpdateFxRate(db, model.FxRate{Currency: "USD", Date: today, EurToCurrency: 1.05}))

	svc := NewPriceService(db)
	require.NoError(t, svc.EnsureFxHistory("USD", today))

	assert.Equal(t, int64(0), atomic.LoadInt64(&chartHits))
	row, err := model.GetFxRate(db, "USD", today)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.InDelta(t, 1.05, row.EurToCurrency, 1e-12)
}

func TestEnsureFxHistoryEURIsNoop(t *testing.T) {
	setTestConfig(t, "http://127.0.0.1:0")
	svc := NewPriceService(newServiceTestDB(t))
	assert.NoError(t, svc.EnsureFxHistory("EUR", "2024-01-01"))
}
