package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/wertfolio/backend/src/model"
	_ "modernc.org/sqlite"
)

func newHandlerTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
			quantity REAL NOT NULL CHECK (quantity > 0),
			price REAL NOT NULL CHECK (price > 0),
			txn_date TEXT NOT NULL,
			security_name TEXT NOT NULL DEFAULT '',
			txn_close_price TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`)
	require.NoError(t, err)
	return db
}

func authedRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(r.Context(), userIDContextKey, "u1")
	return r.WithContext(ctx)
}

func TestAddTransactionRecordsSanitizedEntry(t *testing.T) {
	db := newHandlerTestDB(t)
	h := NewTransactionHandler(db)

	body := `{"symbol":"ie00b4l5y983","side":"buy","quantity":2,"price":80.5,"txn_date":"08.03.2024","security_name":"<b>iShares</b> Core MSCI World"}`
	w := httptest.NewRecorder()
	h.AddTransaction(w, authedRequest(http.MethodPost, "/api/transactions", body))

	require.Equal(t, http.StatusCreated, w.Code)

	txs, err := model.GetTransactionsByUser(db, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "IE00B4L5Y983", txs[0].Symbol)
	assert.Equal(t, "BUY", txs[0].Side)
	assert.Equal(t, "2024-03-08", txs[0].TxnDate)
	assert.Equal(t, "iShares Core MSCI World", txs[0].SecurityName)
}

func TestAddTransactionRejectsBadInput(t *testing.T) {
	db := newHandlerTestDB(t)
	h := NewTransactionHandler(db)

	cases := map[string]string{
		"bad side":     `{"symbol":"ACME","side":"HOLD","quantity":1,"price":10,"txn_date":"2024-03-08"}`,
		"zero qty":     `{"symbol":"ACME","side":"BUY","quantity":0,"price":10,"txn_date":"2024-03-08"}`,
		"neg price":    `{"symbol":"ACME","side":"BUY","quantity":1,"price":-5,"txn_date":"2024-03-08"}`,
		"bad date":     `{"symbol":"ACME","side":"BUY","quantity":1,"price":10,"txn_date":"someday"}`,
		"bad symbol":   `{"symbol":"AC ME!","side":"BUY","quantity":1,"price":10,"txn_date":"2024-03-08"}`,
		"not json":     `{"symbol":`,
		"empty fields": `{}`,
	}
	for name, body := range cases {
		w := httptest.NewRecorder()
		h.AddTransaction(w, authedRequest(http.MethodPost, "/api/transactions", body))
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	txs, err := model.GetTransactionsByUser(db, "u1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestListTransactionsRequiresAuth(t *testing.T) {
	h := NewTransactionHandler(newHandlerTestDB(t))

	w := httptest.NewRecorder()
	h.ListTransactions(w, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListTransactionsReturnsReplayOrder(t *testing.T) {
	db := newHandlerTestDB(t)
	h := NewTransactionHandler(db)

	for _, body := range []string{
		`{"symbol":"B","side":"BUY","quantity":1,"price":10,"txn_date":"2024-02-01"}`,
		`{"symbol":"A","side":"BUY","quantity":1,"price":10,"txn_date":"2024-01-15"}`,
	} {
		w := httptest.NewRecorder()
		h.AddTransaction(w, authedRequest(http.MethodPost, "/api/transactions", body))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	h.ListTransactions(w, authedRequest(http.MethodGet, "/api/transactions", ""))
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Status       string `json:"status"`
		Transactions []struct {
			Symbol  string `json:"symbol"`
			TxnDate string `json:"txn_date"`
		} `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload.Status)
	require.Len(t, payload.Transactions, 2)
	assert.Equal(t, "A", payload.Transactions[0].Symbol)
	assert.Equal(t, "B", payload.Transactions[1].Symbol)
}
