package storage

import (
	"github.com/username/lotfolio/src/models"
)

// TransactionStore persists imported transactions. Transactions are
// immutable: there is no update path, only insert and account purge.
type TransactionStore interface {
	// SaveAll inserts transactions, silently skipping content-hash
	// duplicates (same account, same hash_id). Returns the number of rows
	// actually inserted.
	SaveAll(txs []models.Transaction) (int, error)
	GetByAccount(account string) ([]models.Transaction, error)
	GetBySymbol(account, symbol string) ([]models.Transaction, error)
	DeleteByAccount(account string) error
}

// LotTx is the handle passed to a WithSecurityTx callback. Writes made
// through it commit or roll back together.
type LotTx interface {
	Save(lot *models.Lot) error
	Delete(id string) error
}

// LotStore persists the lot ledger.
type LotStore interface {
	Save(lot *models.Lot) error
	GetByID(id string) (*models.Lot, error)
	GetBySecurityID(securityID string) ([]*models.Lot, error)
	// GetOpenBySecurityID returns lots with remaining quantity > 0.
	GetOpenBySecurityID(securityID string) ([]*models.Lot, error)
	GetByAccount(account string) ([]*models.Lot, error)
	DeleteBySecurityID(securityID string) error
	DeleteByAccount(account string) error
	// WithSecurityTx runs fn inside one database transaction so a split or
	// disposition either updates a security's whole lot set or none of it.
	WithSecurityTx(securityID string, fn func(tx LotTx) error) error
}

// SecurityMetadataStore caches derived per-security facts.
type SecurityMetadataStore interface {
	Save(meta *models.SecurityMetadata) error
	// Get returns (nil, nil) when no metadata exists for the security.
	Get(account, symbol string) (*models.SecurityMetadata, error)
	GetByAccount(account string) ([]*models.SecurityMetadata, error)
	Delete(account, symbol string) error
	DeleteByAccount(account string) error
}

// AdjustmentStore persists manual corporate-action audit records.
type AdjustmentStore interface {
	Save(adj *models.ManualAdjustment) error
	GetBySymbol(account, symbol string) ([]*models.ManualAdjustment, error)
	GetByAccount(account string) ([]*models.ManualAdjustment, error)
	DeleteByID(id string) error
	DeleteBySymbol(account, symbol string) error
	DeleteByAccount(account string) error
}
