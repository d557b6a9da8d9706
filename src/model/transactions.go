package model

import (
	"database/sql"

	"github.com/username/wertfolio/backend/src/models"
)

// GetTransactionsByUser returns the full transaction log for a user in the
// canonical replay order (txn_date, created_at, symbol).
func GetTransactionsByUser(db *sql.DB, userID string) ([]models.Transaction, error) {
	rows, err := db.Query(`
		SELECT id, user_id, symbol, side, quantity, price, txn_date, security_name, txn_close_price, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY txn_date ASC, created_at ASC, symbol ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Symbol, &tx.Side, &tx.Quantity,
			&tx.Price, &tx.TxnDate, &tx.SecurityName, &tx.TxnClosePrice, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// InsertTransaction appends one entry to the log. The log is append-only;
// there is no update or delete of recorded trades.
func InsertTransaction(db *sql.DB, tx models.Transaction) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO transactions (user_id, symbol, side, quantity, price, txn_date, security_name, txn_close_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, tx.Symbol, tx.Side, tx.Quantity, tx.Price, tx.TxnDate, tx.SecurityName, tx.TxnClosePrice)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateTransactionResolution fills in the resolved security name and/or
// close price on an existing row. Empty arguments leave the stored value
// untouched, so repeated backfills merge rather than overwrite.
func UpdateTransactionResolution(db *sql.DB, id int64, userID, securityName, closePrice string) error {
	_, err := db.Exec(`
		UPDATE transactions SET
			security_name = CASE WHEN ? != '' THEN ? ELSE security_name END,
			txn_close_price = CASE WHEN ? != '' THEN ? ELSE txn_close_price END
		WHERE id = ? AND user_id = ?`,
		securityName, securityName, closePrice, closePrice, id, userID)
	return err
}
