package models

// Transaction is one immutable entry of the per-user transaction log.
// Price is expressed in the reference currency (EUR). The replay order of
// the log is (TxnDate, CreatedAt, Symbol) and is the authoritative sequence
// for valuation.
type Transaction struct {
	ID            int64   `json:"id,omitempty"`
	UserID        string  `json:"user_id,omitempty"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // "BUY" or "SELL"
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	TxnDate       string  `json:"txn_date"` // YYYY-MM-DD
	SecurityName  string  `json:"security_name,omitempty"`
	TxnClosePrice string  `json:"txn_close_price,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)
