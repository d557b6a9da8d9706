package processors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/username/wertfolio/backend/src/models"
	"github.com/username/wertfolio/backend/src/utils"
)

// Epsilon absorbs floating-point drift from repeated average-cost updates.
// Quantities and cost bases are compared against it, never against zero.
const Epsilon = 1e-12

// RateFunc returns the EUR->currency rate as of the given date (YYYY-MM-DD),
// read as latest-on-or-before. Implementations must not return a future rate.
type RateFunc func(currency, date string) (float64, error)

// InstrumentPosition is the replay state of one instrument, kept in the
// instrument's native currency. It is rebuilt from the transaction log on
// every request; there is no persisted position state.
type InstrumentPosition struct {
	Symbol             string
	Currency           string
	OpenQuantity       float64
	CostBasisNative    float64
	RealizedNative     float64
	RealizedEUR        float64
	SoldQuantity       float64
	SoldProceedsNative float64
}

// AvgCost is the running average purchase price of the remaining shares.
func (p *InstrumentPosition) AvgCost() (float64, bool) {
	if p.OpenQuantity <= Epsilon {
		return 0, false
	}
	return p.CostBasisNative / p.OpenQuantity, true
}

// AvgSoldPrice is the volume-weighted price across all sells.
func (p *InstrumentPosition) AvgSoldPrice() (float64, bool) {
	if p.SoldQuantity <= Epsilon {
		return 0, false
	}
	return p.SoldProceedsNative / p.SoldQuantity, true
}

// Open reports whether any quantity is still held.
func (p *InstrumentPosition) Open() bool {
	return p.OpenQuantity > Epsilon
}

// ValuationProcessor replays a transaction log using average-cost accounting.
type ValuationProcessor struct {
	rates RateFunc
}

func NewValuationProcessor(rates RateFunc) *ValuationProcessor {
	return &ValuationProcessor{rates: rates}
}

// NormalizeTransactions canonicalizes and filters raw log entries: symbols
// and sides uppercased, entries with a non-positive quantity or price, an
// unknown side, or an unparseable date are dropped. The result is sorted by
// the authoritative (txn_date, created_at, symbol) key.
func NormalizeTransactions(txs []models.Transaction) []models.Transaction {
	var norm []models.Transaction
	for _, tx := range txs {
		tx.Symbol = strings.ToUpper(strings.TrimSpace(tx.Symbol))
		tx.Side = strings.ToUpper(strings.TrimSpace(tx.Side))
		tx.TxnDate = utils.ParseDate(tx.TxnDate)
		if tx.Symbol == "" || tx.TxnDate == "" {
			continue
		}
		if tx.Side != models.SideBuy && tx.Side != models.SideSell {
			continue
		}
		if tx.Quantity <= 0 || tx.Price <= 0 {
			continue
		}
		norm = append(norm, tx)
	}
	sort.SliceStable(norm, func(i, j int) bool {
		a, b := norm[i], norm[j]
		if a.TxnDate != b.TxnDate {
			return a.TxnDate < b.TxnDate
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.Symbol < b.Symbol
	})
	return norm
}

// Replay runs the average-cost state machine over already-normalized
// transactions. currencies maps each symbol to its native currency; symbols
// with no known currency, or with an unresolvable exchange rate at some
// transaction date, are reported as instrument errors and excluded.
//
// BUY:  quantity += q, cost += q * nativePrice, where
//
//	nativePrice = referencePrice * EUR->native(txn_date).
//
// SELL: selling without holdings is a no-op; the sold quantity is clamped to
// the open quantity so the position can never go negative. Realized P&L is
// converted to EUR at the sell date's rate, not today's, so FX drift cannot
// contaminate historical gains.
func (vp *ValuationProcessor) Replay(txs []models.Transaction, currencies map[string]string) (map[string]*InstrumentPosition, []models.InstrumentError) {
	positions := make(map[string]*InstrumentPosition)
	failed := make(map[string]bool)
	var errs []models.InstrumentError

	fail := func(symbol, msg string) {
		failed[symbol] = true
		delete(positions, symbol)
		errs = append(errs, models.InstrumentError{Symbol: symbol, Message: msg})
	}

	for _, tx := range txs {
		if failed[tx.Symbol] {
			continue
		}
		currency := currencies[tx.Symbol]
		if currency == "" {
			fail(tx.Symbol, "native currency unknown")
			continue
		}

		rate, err := vp.eurRate(currency, tx.TxnDate)
		if err != nil {
			fail(tx.Symbol, fmt.Sprintf("no EUR/%s rate on or before %s: %v", currency, tx.TxnDate, err))
			continue
		}

		pos, ok := positions[tx.Symbol]
		if !ok {
			pos = &InstrumentPosition{Symbol: tx.Symbol, Currency: currency}
			positions[tx.Symbol] = pos
		}

		nativePrice := tx.Price * rate
		switch tx.Side {
		case models.SideBuy:
			pos.OpenQuantity += tx.Quantity
			pos.CostBasisNative += tx.Quantity * nativePrice
		case models.SideSell:
			if pos.OpenQuantity <= Epsilon {
				continue // selling without holdings is ignored, not an error
			}
			avgCost := pos.CostBasisNative / pos.OpenQuantity
			sellQty := tx.Quantity
			if sellQty > pos.OpenQuantity {
				sellQty = pos.OpenQuantity
			}
			realizedNative := (nativePrice - avgCost) * sellQty
			pos.RealizedNative += realizedNative
			pos.RealizedEUR += realizedNative / rate
			pos.SoldQuantity += sellQty
			pos.SoldProceedsNative += nativePrice * sellQty
			pos.OpenQuantity -= sellQty
			pos.CostBasisNative -= avgCost * sellQty
		}
	}
	return positions, errs
}

func (vp *ValuationProcessor) eurRate(currency, date string) (float64, error) {
	if currency == "EUR" {
		return 1.0, nil
	}
	rate, err := vp.rates(currency, date)
	if err != nil {
		return 0, err
	}
	if rate <= Epsilon {
		return 0, fmt.Errorf("non-positive EUR/%s rate %g", currency, rate)
	}
	return rate, nil
}
