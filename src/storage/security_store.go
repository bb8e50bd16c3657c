package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/username/lotfolio/src/models"
)

// SQLiteSecurityMetadataStore implements SecurityMetadataStore over sqlite.
type SQLiteSecurityMetadataStore struct {
	db *sql.DB
}

func NewSQLiteSecurityMetadataStore(db *sql.DB) *SQLiteSecurityMetadataStore {
	return &SQLiteSecurityMetadataStore{db: db}
}

func (s *SQLiteSecurityMetadataStore) Save(meta *models.SecurityMetadata) error {
	symbol := models.NormalizeSymbol(meta.Symbol)
	_, err := s.db.Exec(`INSERT INTO securities (symbol, account, acquisition_date, description, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account, symbol) DO UPDATE SET
			acquisition_date = excluded.acquisition_date,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		symbol, meta.Account, formatNullableTime(meta.AcquisitionDate),
		meta.Description, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving security metadata for %s/%s: %w", meta.Account, symbol, err)
	}
	return nil
}

func (s *SQLiteSecurityMetadataStore) Get(account, symbol string) (*models.SecurityMetadata, error) {
	rows, err := s.db.Query(`SELECT symbol, account, acquisition_date, description, updated_at
		FROM securities WHERE account = ? AND symbol = ?`, account, models.NormalizeSymbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("querying security metadata: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying security metadata: %w", err)
		}
		return nil, nil
	}
	return scanSecurityMetadata(rows)
}

func (s *SQLiteSecurityMetadataStore) GetByAccount(account string) ([]*models.SecurityMetadata, error) {
	rows, err := s.db.Query(`SELECT symbol, account, acquisition_date, description, updated_at
		FROM securities WHERE account = ? ORDER BY symbol ASC`, account)
	if err != nil {
		return nil, fmt.Errorf("querying security metadata for account %s: %w", account, err)
	}
	defer rows.Close()

	var metas []*models.SecurityMetadata
	for rows.Next() {
		meta, err := scanSecurityMetadata(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating security metadata: %w", err)
	}
	return metas, nil
}

func (s *SQLiteSecurityMetadataStore) Delete(account, symbol string) error {
	if _, err := s.db.Exec("DELETE FROM securities WHERE account = ? AND symbol = ?",
		account, models.NormalizeSymbol(symbol)); err != nil {
		return fmt.Errorf("deleting security metadata for %s/%s: %w", account, symbol, err)
	}
	return nil
}

func (s *SQLiteSecurityMetadataStore) DeleteByAccount(account string) error {
	if _, err := s.db.Exec("DELETE FROM securities WHERE account = ?", account); err != nil {
		return fmt.Errorf("deleting security metadata for account %s: %w", account, err)
	}
	return nil
}

func scanSecurityMetadata(rows *sql.Rows) (*models.SecurityMetadata, error) {
	var meta models.SecurityMetadata
	var acquisitionDate, description, updatedAt sql.NullString
	if err := rows.Scan(&meta.Symbol, &meta.Account, &acquisitionDate, &description, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning security metadata row: %w", err)
	}
	if description.Valid {
		meta.Description = description.String
	}
	var err error
	if acquisitionDate.Valid && acquisitionDate.String != "" {
		if meta.AcquisitionDate, err = time.Parse(time.RFC3339, acquisitionDate.String); err != nil {
			return nil, fmt.Errorf("parsing acquisition date for %s/%s: %w", meta.Account, meta.Symbol, err)
		}
	}
	if updatedAt.Valid && updatedAt.String != "" {
		if meta.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt.String); err != nil {
			return nil, fmt.Errorf("parsing updated_at for %s/%s: %w", meta.Account, meta.Symbol, err)
		}
	}
	return &meta, nil
}

func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
