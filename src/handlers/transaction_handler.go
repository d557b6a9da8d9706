package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/username/wertfolio/backend/src/logger"
	"github.com/username/wertfolio/backend/src/model"
	"github.com/username/wertfolio/backend/src/models"
	"github.com/username/wertfolio/backend/src/security/validation"
	"github.com/username/wertfolio/backend/src/utils"
)

type TransactionHandler struct {
	db *sql.DB
}

func NewTransactionHandler(db *sql.DB) *TransactionHandler {
	return &TransactionHandler{db: db}
}

// ListTransactions returns the user's transaction log in replay order.
//
//	GET /api/transactions
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	txs, err := model.GetTransactionsByUser(h.db, userID)
	if err != nil {
		ctxLogger.Error("Failed to load transactions", "error", err)
		utils.SendJSONError(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	utils.SendJSON(w, map[string]any{"status": "ok", "transactions": txs}, http.StatusOK)
}

type addTransactionRequest struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	TxnDate      string  `json:"txn_date"`
	SecurityName string  `json:"security_name"`
}

// AddTransaction appends one entry to the log. The log is append-only;
// recorded trades are never edited through the API.
//
//	POST /api/transactions
func (h *TransactionHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req addTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate(req); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	date := utils.ParseDate(req.TxnDate)
	if date == "" {
		utils.SendJSONError(w, "txn_date must be a valid date", http.StatusBadRequest)
		return
	}

	tx := models.Transaction{
		UserID:       userID,
		Symbol:       strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:         strings.ToUpper(strings.TrimSpace(req.Side)),
		Quantity:     req.Quantity,
		Price:        req.Price,
		TxnDate:      date,
		SecurityName: utils.NormalizeName(validation.SanitizeText(validation.StripUnprintable(req.SecurityName))),
	}

	id, err := model.InsertTransaction(h.db, tx)
	if err != nil {
		ctxLogger.Error("Failed to insert transaction", "error", err)
		utils.SendJSONError(w, "Failed to record transaction", http.StatusInternalServerError)
		return
	}
	tx.ID = id
	utils.SendJSON(w, map[string]any{"status": "ok", "transaction": tx}, http.StatusCreated)
}

func (h *TransactionHandler) validate(req addTransactionRequest) error {
	if err := validation.ValidateSymbol(req.Symbol); err != nil {
		return err
	}
	if err := validation.ValidateSide(req.Side); err != nil {
		return err
	}
	if err := validation.ValidatePositiveNumber(req.Quantity, "quantity"); err != nil {
		return err
	}
	if err := validation.ValidatePositiveNumber(req.Price, "price"); err != nil {
		return err
	}
	if err := validation.ValidateStringMaxLength(req.SecurityName, validation.MaxSecurityNameLength, "security_name"); err != nil {
		return err
	}
	if err := validation.ValidateStringNotEmpty(req.TxnDate, "txn_date"); err != nil {
		return err
	}
	return nil
}
