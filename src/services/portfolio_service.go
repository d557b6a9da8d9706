package services

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/username/wertfolio/backend/src/logger"
	"github.com/username/wertfolio/backend/src/model"
	"github.com/username/wertfolio/backend/src/models"
	"github.com/username/wertfolio/backend/src/processors"
	"github.com/username/wertfolio/backend/src/utils"
)

// PortfolioService values a user's transaction log and backfills resolved
// security metadata onto it.
type PortfolioService interface {
	// GetPortfolio replays the user's transaction log with average-cost
	// accounting and prices the open positions at current quotes.
	GetPortfolio(userID string) (*models.PortfolioResponse, error)

	// BackfillResolutions fills missing security names and transaction-date
	// closes on the user's log via the resolver chain. Returns the number of
	// rows updated.
	BackfillResolutions(userID string) (int, error)
}

type portfolioServiceImpl struct {
	db       *sql.DB
	prices   PriceService
	resolver ResolverService
}

func NewPortfolioService(db *sql.DB, prices PriceService, resolver ResolverService) PortfolioService {
	return &portfolioServiceImpl{db: db, prices: prices, resolver: resolver}
}

// instrumentView is the per-symbol working state assembled before replay.
type instrumentView struct {
	symbol   string
	ticker   string
	name     string
	quote    *Quote
	currency string
	firstTxn string
}

func (s *portfolioServiceImpl) GetPortfolio(userID string) (*models.PortfolioResponse, error) {
	raw, err := model.GetTransactionsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	txs := processors.NormalizeTransactions(raw)

	resp := &models.PortfolioResponse{
		Status:      "ok",
		Results:     []models.PortfolioRow{},
		Errors:      []models.InstrumentError{},
		Performance: []models.PerformanceRow{},
	}
	if len(txs) == 0 {
		return resp, nil
	}

	views, viewErrs := s.assembleInstruments(txs)
	resp.Errors = append(resp.Errors, viewErrs...)

	currencies := make(map[string]string)
	for sym, v := range views {
		currencies[sym] = v.currency
	}
	s.warmHistory(txs, views)

	// Symbols already excluded above stay out of the replay; they have been
	// reported once.
	replayTxs := txs[:0:0]
	for _, tx := range txs {
		if _, ok := views[tx.Symbol]; ok {
			replayTxs = append(replayTxs, tx)
		}
	}

	vp := processors.NewValuationProcessor(func(currency, date string) (float64, error) {
		return processors.GetEurRate(s.db, currency, date)
	})
	positions, replayErrs := vp.Replay(replayTxs, currencies)
	resp.Errors = append(resp.Errors, replayErrs...)

	today := utils.Day(time.Now()).Format("2006-01-02")

	symbols := make([]string, 0, len(positions))
	for sym := range positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var totalUnrealizedEUR, totalCostBasisEUR, totalRealizedEUR float64
	for _, sym := range symbols {
		pos := positions[sym]
		view := views[sym]
		totalRealizedEUR += pos.RealizedEUR

		if !pos.Open() {
			row := models.PerformanceRow{
				Symbol:      sym,
				Name:        view.name,
				Currency:    pos.Currency,
				RealizedEUR: pos.RealizedEUR,
				Closed:      true,
			}
			if avgSold, ok := pos.AvgSoldPrice(); ok {
				row.AvgSoldPrice = &avgSold
			}
			resp.Performance = append(resp.Performance, row)
			continue
		}

		perf := models.PerformanceRow{
			Symbol:          sym,
			Name:            view.name,
			Currency:        pos.Currency,
			Quantity:        pos.OpenQuantity,
			CostBasisNative: pos.CostBasisNative,
			RealizedEUR:     pos.RealizedEUR,
		}
		if avgCost, ok := pos.AvgCost(); ok {
			perf.AvgCost = &avgCost
		}

		result := models.PortfolioRow{
			Symbol:   sym,
			Name:     view.name,
			Currency: pos.Currency,
			Quantity: pos.OpenQuantity,
		}
		if view.quote != nil {
			result.Exchange = view.quote.Exchange
		}

		rateToday, rateErr := processors.GetEurRate(s.db, pos.Currency, today)
		if rateErr != nil {
			logger.L.Warn("No current exchange rate for valuation", "symbol", sym, "currency", pos.Currency, "error", rateErr)
		} else {
			eurCost := pos.CostBasisNative / rateToday
			perf.CostBasisEUR = &eurCost
			totalCostBasisEUR += eurCost
		}

		if view.quote != nil {
			price := view.quote.Price
			result.Price = &price
			value := price * pos.OpenQuantity
			result.Value = &value
			perf.CurrentPrice = &price

			unrealized := value - pos.CostBasisNative
			perf.UnrealizedNative = &unrealized
			if pos.CostBasisNative > processors.Epsilon {
				pct := unrealized / pos.CostBasisNative * 100
				perf.PercentUnrealized = &pct
			}
			if rateErr == nil {
				valueEUR := value / rateToday
				result.ValueEUR = &valueEUR
				unrealizedEUR := unrealized / rateToday
				perf.UnrealizedEUR = &unrealizedEUR
				totalUnrealizedEUR += unrealizedEUR
			}
		}

		resp.Results = append(resp.Results, result)
		resp.Performance = append(resp.Performance, perf)
	}

	resp.PerformanceTotals = models.PerformanceTotals{
		TotalUnrealizedEUR: totalUnrealizedEUR,
		TotalCostBasisEUR:  totalCostBasisEUR,
		TotalRealizedEUR:   totalRealizedEUR,
	}
	if totalCostBasisEUR > processors.Epsilon {
		resp.PerformanceTotals.TotalPercent = totalUnrealizedEUR / totalCostBasisEUR * 100
	}
	return resp, nil
}

// assembleInstruments maps each distinct symbol in the log to a ticker, a
// display name, a current quote and a native currency. Symbols whose currency
// cannot be determined come back as instrument errors and are left out of the
// view map, which in turn excludes them from replay.
func (s *portfolioServiceImpl) assembleInstruments(txs []models.Transaction) (map[string]*instrumentView, []models.InstrumentError) {
	views := make(map[string]*instrumentView)
	var errs []models.InstrumentError

	var isins []string
	for _, tx := range txs {
		v, ok := views[tx.Symbol]
		if !ok {
			v = &instrumentView{symbol: tx.Symbol, firstTxn: tx.TxnDate}
			views[tx.Symbol] = v
			if isin := utils.NormalizeISIN(tx.Symbol); isin != "" {
				isins = append(isins, isin)
			}
		}
		if tx.TxnDate < v.firstTxn {
			v.firstTxn = tx.TxnDate
		}
		if v.name == "" {
			v.name = utils.NormalizeName(tx.SecurityName)
		}
	}

	mappings, err := model.GetMappingsByISINs(s.db, isins)
	if err != nil {
		logger.L.Warn("Failed to load ISIN mappings", "error", err)
		mappings = map[string]model.ISINTickerMap{}
	}

	for sym, v := range views {
		isin := utils.NormalizeISIN(sym)
		if isin == "" {
			v.ticker = sym
		} else if m, ok := mappings[isin]; ok && m.TickerSymbol != "" {
			v.ticker = m.TickerSymbol
			if v.name == "" {
				v.name = m.SecurityName
			}
			if v.currency == "" {
				v.currency = utils.NormalizeCurrency(m.Currency)
			}
		} else {
			ticker, exchange, currency, shortName, searchErr := s.prices.SearchByIdentifier(isin)
			if searchErr != nil || ticker == "" {
				errs = append(errs, models.InstrumentError{Symbol: sym, Message: "no market-data ticker found"})
				delete(views, sym)
				continue
			}
			v.ticker = ticker
			if v.currency == "" {
				v.currency = utils.NormalizeCurrency(currency)
			}
			if v.name == "" {
				v.name = utils.NormalizeName(shortName)
			}
			mapping := model.ISINTickerMap{
				ISIN: isin, TickerSymbol: ticker,
				Currency: v.currency, SecurityName: v.name, Source: "market-data-search",
			}
			if exchange != "" {
				mapping.Exchange = sql.NullString{String: exchange, Valid: true}
			}
			if err := model.InsertOrUpdateMapping(s.db, mapping); err != nil {
				logger.L.Warn("Failed to cache ISIN mapping", "isin", isin, "error", err)
			}
		}

		quote, quoteErr := s.prices.GetQuote(v.ticker)
		if quoteErr != nil {
			logger.L.Warn("Quote fetch failed", "symbol", sym, "ticker", v.ticker, "error", quoteErr)
		} else {
			v.quote = quote
			if quote.Currency != "" {
				v.currency = utils.NormalizeCurrency(quote.Currency)
			}
			if v.name == "" {
				v.name = quote.Name
			}
		}
		if v.name == "" {
			v.name = sym
		}

		if v.currency == "" {
			errs = append(errs, models.InstrumentError{Symbol: sym, Message: "native currency unknown"})
			delete(views, sym)
		}
	}
	return views, errs
}

// warmHistory fills the fx_rates store for every currency in play back to the
// first transaction that needs it, and prefetches closes for the sparse
// valuation-event dates. Failures degrade to per-instrument errors later in
// the pipeline, so they are only logged here.
func (s *portfolioServiceImpl) warmHistory(txs []models.Transaction, views map[string]*instrumentView) {
	currencyFrom := make(map[string]string)
	var dates []string
	for _, tx := range txs {
		dates = append(dates, tx.TxnDate)
		v, ok := views[tx.Symbol]
		if !ok || v.currency == "" || v.currency == "EUR" {
			continue
		}
		if from, seen := currencyFrom[v.currency]; !seen || tx.TxnDate < from {
			currencyFrom[v.currency] = tx.TxnDate
		}
	}

	for currency, from := range currencyFrom {
		if err := s.prices.EnsureFxHistory(currency, from); err != nil {
			logger.L.Warn("FX history fill failed", "currency", currency, "from", from, "error", err)
		}
	}

	events := processors.ValuationEventDates(dates, time.Now())
	if len(events) == 0 {
		return
	}
	for _, v := range views {
		if v.ticker == "" {
			continue
		}
		if err := s.prices.EnsurePriceHistory(v.ticker, events); err != nil {
			logger.L.Warn("Price history fill failed", "ticker", v.ticker, "error", err)
		}
	}
}

func (s *portfolioServiceImpl) BackfillResolutions(userID string) (int, error) {
	txs, err := model.GetTransactionsByUser(s.db, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load transactions: %w", err)
	}

	// One resolver run per distinct (isin, txn_date); names are canonical per
	// ISIN so later rows reuse the first successful one.
	type resolution struct {
		name  string
		close string
	}
	pairCache := make(map[string]resolution)
	canonicalNames := make(map[string]string)

	updated := 0
	for _, tx := range txs {
		isin := utils.NormalizeISIN(tx.Symbol)
		if isin == "" {
			continue
		}
		// A stored name equal to the row's own ISIN is no name at all, and a
		// stored "unavailable" sentinel is a failed resolution worth retrying.
		storedName := utils.NormalizeName(tx.SecurityName)
		needName := storedName == "" || utils.NormalizeISIN(storedName) == isin
		needClose := utils.NormalizeClosePrice(tx.TxnClosePrice) == ""
		if !needName && !needClose {
			continue
		}
		txnDate := utils.ParseDate(tx.TxnDate)

		key := isin + "|" + txnDate
		res, ok := pairCache[key]
		if !ok {
			meta, resolveErr := s.resolver.Resolve(isin, txnDate)
			if resolveErr != nil {
				logger.L.Warn("Resolution failed", "isin", isin, "date", txnDate, "error", resolveErr)
				pairCache[key] = resolution{}
				continue
			}
			res = resolution{name: meta.Name, close: meta.ClosePrice}
			pairCache[key] = res
			if res.name != "" && canonicalNames[isin] == "" {
				canonicalNames[isin] = res.name
			}
		}

		name := canonicalNames[isin]
		if name == "" {
			name = res.name
		}

		setName, setClose := "", ""
		if needName && name != "" {
			setName = name
		}
		if needClose && res.close != "" {
			setClose = res.close
		}
		if setName == "" && setClose == "" {
			continue
		}
		if err := model.UpdateTransactionResolution(s.db, tx.ID, userID, setName, setClose); err != nil {
			logger.L.Error("Failed to persist resolution", "id", tx.ID, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}
