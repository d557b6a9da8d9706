package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"sync"
	"time"

	"github.com/username/wertfolio/backend/src/config"
	"github.com/username/wertfolio/backend/src/logger"
	"github.com/username/wertfolio/backend/src/model"
	"github.com/username/wertfolio/backend/src/utils"
	"golang.org/x/net/publicsuffix"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// sessionWarmupURLs are visited once to populate the cookie jar before the
// crumb fetch. Overridable in tests.
var sessionWarmupURLs = []string{"https://fc.yahoo.com", "https://finance.yahoo.com"}

// --- API Response Structs ---

type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		Exchange  string `json:"exchange"`
		Shortname string `json:"shortname"`
		QuoteType string `json:"quoteType"`
		Currency  string `json:"currency"`
	} `json:"quotes"`
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ShortName          string  `json:"shortName"`
				LongName           string  `json:"longName"`
				ExchangeName       string  `json:"exchangeName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// --- Service Implementation ---

type priceServiceImpl struct {
	db            *sql.DB
	httpClient    http.Client
	baseURLs      []string
	todayMaxAge   time.Duration
	isInitialized bool
	crumb         string
	mu            sync.Mutex
}

func NewPriceService(db *sql.DB) PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	return &priceServiceImpl{
		db: db,
		httpClient: http.Client{
			Jar:     jar,
			Timeout: config.Cfg.HTTPTimeout,
		},
		baseURLs:    config.Cfg.YahooBaseURLs,
		todayMaxAge: config.Cfg.TodayPriceMaxAge,
	}
}

// initializeYahooSession warms the cookie jar and fetches the API crumb the
// chart endpoints expect.
func (s *priceServiceImpl) initializeYahooSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInitialized && s.crumb != "" {
		return
	}

	logger.L.Info("Initializing market-data session and fetching crumb...")
	for _, warmup := range sessionWarmupURLs {
		req, _ := http.NewRequest("GET", warmup, nil)
		req.Header.Set("User-Agent", userAgent)
		if resp, err := s.httpClient.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	req, _ := http.NewRequest("GET", s.baseURLs[0]+"/v1/test/getcrumb", nil)
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.L.Warn("Failed to fetch crumb", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		s.crumb = string(bodyBytes)
		s.isInitialized = true
		logger.L.Info("Market-data session initialized")
	} else {
		logger.L.Warn("Failed to fetch crumb", "status", resp.Status)
	}
}

func (s *priceServiceImpl) ensureSession() {
	s.mu.Lock()
	needsInit := !s.isInitialized
	s.mu.Unlock()

	if needsInit {
		s.initializeYahooSession()
	}
}

// fetchChart queries the chart endpoint, failing over across the configured
// base URLs.
func (s *priceServiceImpl) fetchChart(symbol, params string) (*yahooChartResponse, error) {
	s.ensureSession()
	var lastErr error
	for _, base := range s.baseURLs {
		url := fmt.Sprintf("%s/v8/finance/chart/%s?%s", base, symbol, params)
		s.mu.Lock()
		if s.crumb != "" {
			url += "&crumb=" + s.crumb
		}
		s.mu.Unlock()

		req, err := http.NewRequest("GET", url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("chart request failed: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			s.mu.Lock()
			s.isInitialized = false
			s.mu.Unlock()
			lastErr = fmt.Errorf("status 401 (Unauthorized) - crumb invalid")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("chart endpoint returned status %d", resp.StatusCode)
			continue
		}
		var chartData yahooChartResponse
		err = json.NewDecoder(resp.Body).Decode(&chartData)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode chart response: %w", err)
			continue
		}
		if chartData.Chart.Error != nil {
			lastErr = fmt.Errorf("chart endpoint returned an error: %v", chartData.Chart.Error)
			continue
		}
		if len(chartData.Chart.Result) == 0 {
			lastErr = ErrNoQuote
			continue
		}
		return &chartData, nil
	}
	return nil, lastErr
}

// normalizeQuotedPrice applies the minor-unit convention: GBp quotes are
// pence, so divide by 100 and relabel as GBP. Applies to live quotes and
// historical closes alike.
func normalizeQuotedPrice(price float64, currency string) (float64, string) {
	if currency == "GBp" {
		return price / 100, "GBP"
	}
	return price, currency
}

func (s *priceServiceImpl) GetQuote(symbol string) (*Quote, error) {
	today := time.Now().UTC().Format("2006-01-02")

	// A cached "today" row is only trusted while it is fresh; historical rows
	// are permanently valid but never satisfy a current-quote request.
	cached, err := model.GetPrice(s.db, symbol, today)
	if err != nil {
		logger.L.Warn("Failed to read daily price cache", "symbol", symbol, "error", err)
	}
	if cached != nil && time.Since(cached.UpdatedAt) <= s.todayMaxAge {
		return &Quote{Symbol: symbol, Price: cached.Price, Currency: cached.Currency, Cached: true}, nil
	}

	chartData, err := s.fetchChart(symbol, "interval=1d&range=1d")
	if err != nil {
		return nil, err
	}
	meta := chartData.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return nil, ErrNoQuote
	}

	price, currency := normalizeQuotedPrice(meta.RegularMarketPrice, meta.Currency)
	name := meta.ShortName
	if name == "" {
		name = meta.LongName
	}

	if err := model.InsertOrUpdatePrice(s.db, model.DailyPrice{
		TickerSymbol: symbol,
		Date:         today,
		Price:        price,
		Currency:     currency,
		Source:       "yahoo-chart",
	}); err != nil {
		logger.L.Warn("Failed to cache current price", "symbol", symbol, "error", err)
	}

	return &Quote{
		Symbol:   symbol,
		Name:     name,
		Price:    price,
		Currency: currency,
		Exchange: meta.ExchangeName,
	}, nil
}

func (s *priceServiceImpl) SearchByIdentifier(query string) (string, string, string, string, error) {
	s.ensureSession()
	var lastErr error
	for _, base := range s.baseURLs {
		url := fmt.Sprintf("%s/v1/finance/search?q=%s&quotesCount=1&lang=en-US", base, query)
		req, err := http.NewRequest("GET", url, nil)
		if err != nil {
			return "", "", "", "", err
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("search request failed: %w", err)
			continue
		}
		bodyBytes, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
			continue
		}
		var searchData yahooSearchResponse
		if err := json.Unmarshal(bodyBytes, &searchData); err != nil {
			lastErr = fmt.Errorf("failed to decode search response: %w", err)
			continue
		}
		if len(searchData.Quotes) == 0 || searchData.Quotes[0].Symbol == "" {
			lastErr = fmt.Errorf("no ticker symbol found for %q", query)
			continue
		}
		q := searchData.Quotes[0]
		return q.Symbol, q.Exchange, q.Currency, q.Shortname, nil
	}
	return "", "", "", "", lastErr
}

func (s *priceServiceImpl) GetDailyBars(symbol, from, to string) ([]Bar, string, error) {
	fromT, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, "", fmt.Errorf("invalid from date %q: %w", from, err)
	}
	toT, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil, "", fmt.Errorf("invalid to date %q: %w", to, err)
	}

	params := fmt.Sprintf("interval=1d&period1=%d&period2=%d", fromT.Unix(), toT.AddDate(0, 0, 1).Unix())
	chartData, err := s.fetchChart(symbol, params)
	if err != nil {
		return nil, "", err
	}
	result := chartData.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, "", ErrNoQuote
	}
	closes := result.Indicators.Quote[0].Close
	if len(result.Timestamp) != len(closes) {
		return nil, "", fmt.Errorf("timestamp/close length mismatch")
	}

	currency := result.Meta.Currency
	var bars []Bar
	for i, ts := range result.Timestamp {
		if closes[i] == 0 {
			continue
		}
		price, ccy := normalizeQuotedPrice(closes[i], currency)
		currency = ccy
		bars = append(bars, Bar{
			Date:  time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Close: price,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, currency, nil
}

func (s *priceServiceImpl) FindCloseNear(symbol, date string, windowDays int) (float64, string, error) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	from := d.AddDate(0, 0, -windowDays).Format("2006-01-02")
	to := d.AddDate(0, 0, windowDays).Format("2006-01-02")

	bars, currency, err := s.GetDailyBars(symbol, from, to)
	if err != nil {
		return 0, "", err
	}

	// Exact date first, then the nearest prior trading date.
	best := -1
	for i, bar := range bars {
		if bar.Date == date {
			return bar.Close, currency, nil
		}
		if bar.Date < date {
			best = i
		}
	}
	if best >= 0 {
		return bars[best].Close, currency, nil
	}
	return 0, "", fmt.Errorf("no close found for %s within %d days of %s", symbol, windowDays, date)
}

// missingRanges coalesces missing business dates into contiguous fetch
// ranges, so each gap costs one provider call. Runs of misses separated by
// less than a week (weekends, short holidays) stay in one range.
func missingRanges(missing []string) [][2]string {
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	var ranges [][2]string
	start, prev := missing[0], missing[0]
	for _, d := range missing[1:] {
		prevT, _ := time.Parse("2006-01-02", prev)
		curT, _ := time.Parse("2006-01-02", d)
		if curT.Sub(prevT) > 7*24*time.Hour {
			ranges = append(ranges, [2]string{start, prev})
			start = d
		}
		prev = d
	}
	ranges = append(ranges, [2]string{start, prev})
	return ranges
}

func (s *priceServiceImpl) EnsureFxHistory(currency, fromDate string) error {
	if currency == "EUR" || currency == "" {
		return nil
	}
	from, err := time.Parse("2006-01-02", fromDate)
	if err != nil {
		return fmt.Errorf("invalid from date %q: %w", fromDate, err)
	}
	today := utils.Day(time.Now().UTC())
	toStr := today.Format("2006-01-02")

	existing, err := model.GetExistingFxDates(s.db, currency, fromDate, toStr)
	if err != nil {
		return err
	}

	var missing []string
	for _, d := range utils.BusinessDaysBetween(utils.Day(from), today) {
		ds := d.Format("2006-01-02")
		if !existing[ds] {
			missing = append(missing, ds)
		}
	}

	// Today's rate is still moving: a row written earlier in the day goes
	// stale and gets refetched alongside any gaps.
	if existing[toStr] {
		if row, err := model.GetFxRate(s.db, currency, toStr); err == nil && row != nil &&
			time.Since(row.UpdatedAt) > s.todayMaxAge {
			missing = append(missing, toStr)
		}
	}

	fxSymbol := "EUR" + currency + "=X"
	for _, rng := range missingRanges(missing) {
		bars, _, err := s.GetDailyBars(fxSymbol, rng[0], rng[1])
		if err != nil {
			logger.L.Warn("FX history fetch failed", "currency", currency, "from", rng[0], "to", rng[1], "error", err)
			continue
		}
		for _, bar := range bars {
			if err := model.InsertOrUpdateFxRate(s.db, model.FxRate{
				Currency:      currency,
				Date:          bar.Date,
				EurToCurrency: bar.Close,
			}); err != nil {
				logger.L.Warn("Failed to cache FX rate", "currency", currency, "date", bar.Date, "error", err)
			}
		}
	}

	return s.anchorFxDate(currency, fromDate)
}

// anchorFxDate guarantees a resolvable rate for the requested date even when
// it precedes all provider data (e.g. a weekend purchase before the first
// trading day in range): the first available later close is copied in as a
// synthetic row.
func (s *priceServiceImpl) anchorFxDate(currency, date string) error {
	onOrBefore, err := model.GetLatestFxOnOrBefore(s.db, currency, date)
	if err != nil {
		return err
	}
	if onOrBefore != nil {
		return nil
	}
	later, err := model.GetFirstFxOnOrAfter(s.db, currency, date)
	if err != nil {
		return err
	}
	if later == nil {
		return fmt.Errorf("no FX data available to anchor %s on %s", currency, date)
	}
	logger.L.Debug("Anchoring FX rate", "currency", currency, "date", date, "from", later.Date)
	return model.InsertOrUpdateFxRate(s.db, model.FxRate{
		Currency:      currency,
		Date:          date,
		EurToCurrency: later.EurToCurrency,
	})
}

func (s *priceServiceImpl) EnsurePriceHistory(symbol string, dates []string) error {
	if len(dates) == 0 {
		return nil
	}
	sorted := append([]string(nil), dates...)
	sort.Strings(sorted)
	from, to := sorted[0], sorted[len(sorted)-1]

	existing, err := model.GetExistingPriceDates(s.db, symbol, from, to)
	if err != nil {
		return err
	}
	var missing []string
	for _, d := range sorted {
		if !existing[d] {
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	for _, rng := range missingRanges(missing) {
		bars, currency, err := s.GetDailyBars(symbol, rng[0], rng[1])
		if err != nil {
			logger.L.Warn("Price history fetch failed", "symbol", symbol, "from", rng[0], "to", rng[1], "error", err)
			continue
		}
		for _, bar := range bars {
			if err := model.InsertOrUpdatePrice(s.db, model.DailyPrice{
				TickerSymbol: symbol,
				Date:         bar.Date,
				Price:        bar.Close,
				Currency:     currency,
				Source:       "yahoo-history",
			}); err != nil {
				logger.L.Warn("Failed to cache historical price", "symbol", symbol, "date", bar.Date, "error", err)
			}
		}
	}

	// Anchor requested dates the provider had no bar for (weekends,
	// holidays) with the first later close, so every valuation event date
	// resolves.
	for _, d := range sorted {
		p, err := model.GetPrice(s.db, symbol, d)
		if err != nil || p != nil {
			continue
		}
		later, err := model.GetFirstPriceOnOrAfter(s.db, symbol, d)
		if err != nil || later == nil {
			continue
		}
		if err := model.InsertOrUpdatePrice(s.db, model.DailyPrice{
			TickerSymbol: symbol,
			Date:         d,
			Price:        later.Price,
			Currency:     later.Currency,
			Source:       "anchor",
		}); err != nil {
			logger.L.Warn("Failed to anchor price", "symbol", symbol, "date", d, "error", err)
		}
	}
	return nil
}
