package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyPriceUpsertLastWriterWins(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, InsertOrUpdatePrice(db, DailyPrice{TickerSymbol: "ACME.DE", Date: "2024-06-07", Price: 10, Currency: "EUR", Source: "yahoo-history"}))
	require.NoError(t, InsertOrUpdatePrice(db, DailyPrice{TickerSymbol: "ACME.DE", Date: "2024-06-07", Price: 11.5, Currency: "EUR", Source: "yahoo-chart"}))

	p, err := GetPrice(db, "ACME.DE", "2024-06-07")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 11.5, p.Price, 1e-12)
	assert.Equal(t, "yahoo-chart", p.Source)
}

func TestGetLatestPriceOnOrBeforeNeverReturnsFuture(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, InsertOrUpdatePrice(db, DailyPrice{TickerSymbol: "ACME.DE", Date: "2024-06-06", Price: 10}))
	require.NoError(t, InsertOrUpdatePrice(db, DailyPrice{TickerSymbol: "ACME.DE", Date: "2024-06-07", Price: 11}))
	require.NoError(t, InsertOrUpdatePrice(db, DailyPrice{TickerSymbol: "ACME.DE", Date: "2024-06-10", Price: 12}))

	// Sunday between the Friday row and the Monday row.
	p, err := GetLatestPriceOnOrBefore(db, "ACME.DE", "2024-06-09")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "2024-06-07", p.Date)
	assert.InDelta(t, 11, p.Price, 1e-12)

	p, err = GetLatestPriceOnOrBefore(db, "ACME.DE", "2024-06-05")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetExistingPriceDates(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, InsertOrUpdatePrice(db, DailyPrice{TickerSymbol: "ACME.DE", Date: "2024-06-06", Price: 10}))
	require.NoError(t, InsertOrUpdatePrice(db, DailyPrice{TickerSymbol: "ACME.DE", Date: "2024-06-10", Price: 12}))
	require.NoError(t, InsertOrUpdatePrice(db, DailyPrice{TickerSymbol: "OTHER", Date: "2024-06-07", Price: 1}))

	existing, err := GetExistingPriceDates(db, "ACME.DE", "2024-06-01", "2024-06-30")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2024-06-06": true, "2024-06-10": true}, existing)
}

func TestMappingUpsertKeepsNameWhenNewOneEmpty(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, InsertOrUpdateMapping(db, ISINTickerMap{
		ISIN: "IE00B4L5Y983", TickerSymbol: "EUNL.DE",
		SecurityName: "iShares Core MSCI World", SecurityURL: "https://example.invalid/etf",
	}))
	// A later resolution that learned the ticker but not the name must not
	// wipe the stored name or URL.
	require.NoError(t, InsertOrUpdateMapping(db, ISINTickerMap{
		ISIN: "IE00B4L5Y983", TickerSymbol: "IWDA.AS", Currency: "EUR",
	}))

	m, err := GetMappingByISIN(db, "IE00B4L5Y983")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "IWDA.AS", m.TickerSymbol)
	assert.Equal(t, "iShares Core MSCI World", m.SecurityName)
	assert.Equal(t, "https://example.invalid/etf", m.SecurityURL)
	assert.Equal(t, "EUR", m.Currency)
}

func TestGetMappingsByISINs(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, InsertOrUpdateMapping(db, ISINTickerMap{ISIN: "IE00B4L5Y983", TickerSymbol: "EUNL.DE"}))
	require.NoError(t, InsertOrUpdateMapping(db, ISINTickerMap{ISIN: "US0378331005", TickerSymbol: "AAPL"}))

	mappings, err := GetMappingsByISINs(db, []string{"IE00B4L5Y983", "US0378331005", "XX0000000000"})
	require.NoError(t, err)
	assert.Len(t, mappings, 2)
	assert.Equal(t, "AAPL", mappings["US0378331005"].TickerSymbol)

	empty, err := GetMappingsByISINs(db, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFxAnchorLookups(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, InsertOrUpdateFxRate(db, FxRate{Currency: "USD", Date: "2024-06-10", EurToCurrency: 1.08}))

	r, err := GetFirstFxOnOrAfter(db, "USD", "2024-06-08")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "2024-06-10", r.Date)

	r, err = GetLatestFxOnOrBefore(db, "USD", "2024-06-08")
	require.NoError(t, err)
	assert.Nil(t, r)
}
