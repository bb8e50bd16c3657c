package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/username/lotfolio/src/logger"
	"github.com/username/lotfolio/src/models"
)

const transactionColumns = `id, account, symbol, date, action, quantity, price, amount, category, hash_id`

// SQLiteTransactionStore implements TransactionStore over a sqlite database.
type SQLiteTransactionStore struct {
	db *sql.DB
}

func NewSQLiteTransactionStore(db *sql.DB) *SQLiteTransactionStore {
	return &SQLiteTransactionStore{db: db}
}

// SaveAll inserts transactions inside one database transaction, skipping
// rows whose (account, hash_id) already exists. Replaying the same export
// file therefore inserts nothing the second time.
func (s *SQLiteTransactionStore) SaveAll(txs []models.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction insert: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing transaction insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		_, err := stmt.Exec(tx.ID, tx.Account, models.NormalizeSymbol(tx.Symbol),
			tx.Date.UTC().Format(time.RFC3339), tx.Action, tx.Quantity, tx.Price,
			tx.Amount, tx.Category.String(), tx.HashID)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				logger.L.Debug("Skipping duplicate transaction on import", "account", tx.Account, "hash_id", tx.HashID)
				continue
			}
			return 0, fmt.Errorf("inserting transaction %s: %w", tx.ID, err)
		}
		inserted++
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction insert: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteTransactionStore) GetByAccount(account string) ([]models.Transaction, error) {
	return s.queryTransactions("SELECT "+transactionColumns+" FROM transactions WHERE account = ? ORDER BY date ASC, id ASC", account)
}

func (s *SQLiteTransactionStore) GetBySymbol(account, symbol string) ([]models.Transaction, error) {
	return s.queryTransactions("SELECT "+transactionColumns+" FROM transactions WHERE account = ? AND symbol = ? ORDER BY date ASC, id ASC",
		account, models.NormalizeSymbol(symbol))
}

func (s *SQLiteTransactionStore) DeleteByAccount(account string) error {
	if _, err := s.db.Exec("DELETE FROM transactions WHERE account = ?", account); err != nil {
		return fmt.Errorf("deleting transactions for account %s: %w", account, err)
	}
	return nil
}

func (s *SQLiteTransactionStore) queryTransactions(query string, args ...any) ([]models.Transaction, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var date, category string
		var hashID sql.NullString
		if err := rows.Scan(&tx.ID, &tx.Account, &tx.Symbol, &date, &tx.Action,
			&tx.Quantity, &tx.Price, &tx.Amount, &category, &hashID); err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		if tx.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("parsing date for transaction %s: %w", tx.ID, err)
		}
		if tx.Category, err = models.ParseTransactionCategory(category); err != nil {
			return nil, fmt.Errorf("parsing category for transaction %s: %w", tx.ID, err)
		}
		if hashID.Valid {
			tx.HashID = hashID.String
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return txs, nil
}
