package models

// SecurityMetadata is the outcome of one resolver-chain run. It is computed
// per request and never persisted as a whole; only the name and close price
// feed back into the transaction log.
type SecurityMetadata struct {
	ISIN          string `json:"isin"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Source        string `json:"source"`
	Category      string `json:"category"`
	ClosePrice    string `json:"txn_close_price"`
	CloseCurrency string `json:"close_currency,omitempty"`
}

// PortfolioRow is the per-symbol market snapshot of an open position.
// Pointer fields stay null in the response when a source reported no value.
type PortfolioRow struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Currency string   `json:"currency"`
	Quantity float64  `json:"quantity"`
	Value    *float64 `json:"value"`
	ValueEUR *float64 `json:"value_eur"`
	Exchange string   `json:"exchange"`
}

// PerformanceRow carries the average-cost accounting outputs for one
// instrument. Closed positions report realized figures only.
type PerformanceRow struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	Currency          string   `json:"currency"`
	Quantity          float64  `json:"quantity"`
	AvgCost           *float64 `json:"avg_cost"`
	CurrentPrice      *float64 `json:"current_price"`
	UnrealizedNative  *float64 `json:"unrealized_native"`
	UnrealizedEUR     *float64 `json:"unrealized_eur"`
	PercentUnrealized *float64 `json:"percent_unrealized"`
	CostBasisNative   float64  `json:"cost_basis_native"`
	CostBasisEUR      *float64 `json:"cost_basis_eur"`
	RealizedEUR       float64  `json:"realized_eur"`
	AvgSoldPrice      *float64 `json:"avg_sold_price,omitempty"`
	Closed            bool     `json:"closed"`
}

// InstrumentError marks a per-instrument resolution failure. The instrument
// is excluded from totals; valuation of the remaining instruments continues.
type InstrumentError struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

// PerformanceTotals aggregates across all successfully valued instruments.
type PerformanceTotals struct {
	TotalUnrealizedEUR float64 `json:"total_unrealized_eur"`
	TotalCostBasisEUR  float64 `json:"total_cost_basis_eur"`
	TotalRealizedEUR   float64 `json:"total_realized_eur"`
	TotalPercent       float64 `json:"total_percent"`
}

// PortfolioResponse is the full valuation payload for one user.
type PortfolioResponse struct {
	Status            string            `json:"status"`
	Results           []PortfolioRow    `json:"results"`
	Errors            []InstrumentError `json:"errors"`
	Performance       []PerformanceRow  `json:"performance"`
	PerformanceTotals PerformanceTotals `json:"performance_totals"`
}
