package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/username/lotfolio/src/models"
)

const adjustmentColumns = `id, symbol, account, type, date, ratio, dividend_amount, description, created_at`

// SQLiteAdjustmentStore implements AdjustmentStore over sqlite.
type SQLiteAdjustmentStore struct {
	db *sql.DB
}

func NewSQLiteAdjustmentStore(db *sql.DB) *SQLiteAdjustmentStore {
	return &SQLiteAdjustmentStore{db: db}
}

func (s *SQLiteAdjustmentStore) Save(adj *models.ManualAdjustment) error {
	_, err := s.db.Exec(`INSERT INTO manual_adjustments (`+adjustmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		adj.ID, models.NormalizeSymbol(adj.Symbol), adj.Account, string(adj.Type),
		adj.Date.UTC().Format(time.RFC3339), adj.Ratio, adj.DividendAmount,
		adj.Description, adj.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving adjustment %s: %w", adj.ID, err)
	}
	return nil
}

func (s *SQLiteAdjustmentStore) GetBySymbol(account, symbol string) ([]*models.ManualAdjustment, error) {
	return s.queryAdjustments("SELECT "+adjustmentColumns+" FROM manual_adjustments WHERE account = ? AND symbol = ? ORDER BY date ASC, id ASC",
		account, models.NormalizeSymbol(symbol))
}

func (s *SQLiteAdjustmentStore) GetByAccount(account string) ([]*models.ManualAdjustment, error) {
	return s.queryAdjustments("SELECT "+adjustmentColumns+" FROM manual_adjustments WHERE account = ? ORDER BY date ASC, id ASC", account)
}

func (s *SQLiteAdjustmentStore) DeleteByID(id string) error {
	result, err := s.db.Exec("DELETE FROM manual_adjustments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting adjustment %s: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &models.NotFoundError{Kind: "adjustment", ID: id}
	}
	return nil
}

func (s *SQLiteAdjustmentStore) DeleteBySymbol(account, symbol string) error {
	if _, err := s.db.Exec("DELETE FROM manual_adjustments WHERE account = ? AND symbol = ?",
		account, models.NormalizeSymbol(symbol)); err != nil {
		return fmt.Errorf("deleting adjustments for %s/%s: %w", account, symbol, err)
	}
	return nil
}

func (s *SQLiteAdjustmentStore) DeleteByAccount(account string) error {
	if _, err := s.db.Exec("DELETE FROM manual_adjustments WHERE account = ?", account); err != nil {
		return fmt.Errorf("deleting adjustments for account %s: %w", account, err)
	}
	return nil
}

func (s *SQLiteAdjustmentStore) queryAdjustments(query string, args ...any) ([]*models.ManualAdjustment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []*models.ManualAdjustment
	for rows.Next() {
		var adj models.ManualAdjustment
		var adjType, date, createdAt string
		var ratio, dividendAmount sql.NullFloat64
		var description sql.NullString
		if err := rows.Scan(&adj.ID, &adj.Symbol, &adj.Account, &adjType, &date,
			&ratio, &dividendAmount, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning adjustment row: %w", err)
		}
		adj.Type = models.AdjustmentType(adjType)
		if ratio.Valid {
			adj.Ratio = ratio.Float64
		}
		if dividendAmount.Valid {
			adj.DividendAmount = dividendAmount.Float64
		}
		if description.Valid {
			adj.Description = description.String
		}
		if adj.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, fmt.Errorf("parsing date for adjustment %s: %w", adj.ID, err)
		}
		if adj.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for adjustment %s: %w", adj.ID, err)
		}
		adjustments = append(adjustments, &adj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating adjustments: %w", err)
	}
	return adjustments, nil
}
