package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/username/lotfolio/src/models"
)

const lotColumns = `id, security_id, account, symbol, quantity, original_quantity,
remaining_quantity, acquisition_date, cost_basis, price_per_share, status,
transaction_derived, source_transaction_id, adjustments, sale_transactions, created_at`

// SQLiteLotStore implements LotStore over a sqlite database.
type SQLiteLotStore struct {
	db *sql.DB
}

func NewSQLiteLotStore(db *sql.DB) *SQLiteLotStore {
	return &SQLiteLotStore{db: db}
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func saveLot(e execer, lot *models.Lot) error {
	adjustments, err := json.Marshal(lot.Adjustments)
	if err != nil {
		return fmt.Errorf("marshaling adjustments for lot %s: %w", lot.ID, err)
	}
	sales, err := json.Marshal(lot.SaleTransactions)
	if err != nil {
		return fmt.Errorf("marshaling sale transactions for lot %s: %w", lot.ID, err)
	}
	_, err = e.Exec(`INSERT INTO lots (`+lotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			security_id = excluded.security_id,
			account = excluded.account,
			symbol = excluded.symbol,
			quantity = excluded.quantity,
			original_quantity = excluded.original_quantity,
			remaining_quantity = excluded.remaining_quantity,
			acquisition_date = excluded.acquisition_date,
			cost_basis = excluded.cost_basis,
			price_per_share = excluded.price_per_share,
			status = excluded.status,
			transaction_derived = excluded.transaction_derived,
			source_transaction_id = excluded.source_transaction_id,
			adjustments = excluded.adjustments,
			sale_transactions = excluded.sale_transactions,
			created_at = excluded.created_at`,
		lot.ID, lot.SecurityID, lot.Account, lot.Symbol, lot.Quantity,
		lot.OriginalQuantity, lot.RemainingQuantity,
		lot.AcquisitionDate.UTC().Format(time.RFC3339), lot.CostBasis,
		lot.PricePerShare, string(lot.Status), boolToInt(lot.TransactionDerived),
		lot.SourceTransactionID, string(adjustments), string(sales),
		lot.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving lot %s: %w", lot.ID, err)
	}
	return nil
}

func (s *SQLiteLotStore) Save(lot *models.Lot) error {
	return saveLot(s.db, lot)
}

func (s *SQLiteLotStore) GetByID(id string) (*models.Lot, error) {
	rows, err := s.db.Query("SELECT "+lotColumns+" FROM lots WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying lot %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying lot %s: %w", id, err)
		}
		return nil, &models.NotFoundError{Kind: "lot", ID: id}
	}
	return scanLot(rows)
}

func (s *SQLiteLotStore) GetBySecurityID(securityID string) ([]*models.Lot, error) {
	return s.queryLots("SELECT "+lotColumns+" FROM lots WHERE security_id = ? ORDER BY acquisition_date ASC, id ASC", securityID)
}

func (s *SQLiteLotStore) GetOpenBySecurityID(securityID string) ([]*models.Lot, error) {
	return s.queryLots("SELECT "+lotColumns+" FROM lots WHERE security_id = ? AND remaining_quantity > 0 ORDER BY acquisition_date ASC, id ASC", securityID)
}

func (s *SQLiteLotStore) GetByAccount(account string) ([]*models.Lot, error) {
	return s.queryLots("SELECT "+lotColumns+" FROM lots WHERE account = ? ORDER BY symbol ASC, acquisition_date ASC, id ASC", account)
}

func (s *SQLiteLotStore) DeleteBySecurityID(securityID string) error {
	if _, err := s.db.Exec("DELETE FROM lots WHERE security_id = ?", securityID); err != nil {
		return fmt.Errorf("deleting lots for security %s: %w", securityID, err)
	}
	return nil
}

func (s *SQLiteLotStore) DeleteByAccount(account string) error {
	if _, err := s.db.Exec("DELETE FROM lots WHERE account = ?", account); err != nil {
		return fmt.Errorf("deleting lots for account %s: %w", account, err)
	}
	return nil
}

type sqliteLotTx struct {
	tx *sql.Tx
}

func (t *sqliteLotTx) Save(lot *models.Lot) error {
	return saveLot(t.tx, lot)
}

func (t *sqliteLotTx) Delete(id string) error {
	if _, err := t.tx.Exec("DELETE FROM lots WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting lot %s: %w", id, err)
	}
	return nil
}

// WithSecurityTx wraps fn in one sql transaction. The securityID argument
// exists so callers state which aggregate they are mutating; sqlite has a
// single writer so the whole database is the locking granularity anyway.
func (s *SQLiteLotStore) WithSecurityTx(securityID string, fn func(tx LotTx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning lot transaction for %s: %w", securityID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteLotTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing lot transaction for %s: %w", securityID, err)
	}
	return nil
}

func (s *SQLiteLotStore) queryLots(query string, args ...any) ([]*models.Lot, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying lots: %w", err)
	}
	defer rows.Close()

	var lots []*models.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lots: %w", err)
	}
	return lots, nil
}

func scanLot(rows *sql.Rows) (*models.Lot, error) {
	var lot models.Lot
	var acquisitionDate, createdAt, status string
	var transactionDerived int
	var sourceTxID, adjustments, sales sql.NullString

	err := rows.Scan(&lot.ID, &lot.SecurityID, &lot.Account, &lot.Symbol,
		&lot.Quantity, &lot.OriginalQuantity, &lot.RemainingQuantity,
		&acquisitionDate, &lot.CostBasis, &lot.PricePerShare, &status,
		&transactionDerived, &sourceTxID, &adjustments, &sales, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scanning lot row: %w", err)
	}

	lot.Status = models.LotStatus(status)
	lot.TransactionDerived = transactionDerived != 0
	if sourceTxID.Valid {
		lot.SourceTransactionID = sourceTxID.String
	}
	if lot.AcquisitionDate, err = time.Parse(time.RFC3339, acquisitionDate); err != nil {
		return nil, fmt.Errorf("parsing acquisition date for lot %s: %w", lot.ID, err)
	}
	if lot.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for lot %s: %w", lot.ID, err)
	}
	if adjustments.Valid && adjustments.String != "" {
		if err := json.Unmarshal([]byte(adjustments.String), &lot.Adjustments); err != nil {
			return nil, fmt.Errorf("unmarshaling adjustments for lot %s: %w", lot.ID, err)
		}
	}
	if sales.Valid && sales.String != "" {
		if err := json.Unmarshal([]byte(sales.String), &lot.SaleTransactions); err != nil {
			return nil, fmt.Errorf("unmarshaling sale transactions for lot %s: %w", lot.ID, err)
		}
	}
	return &lot, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
