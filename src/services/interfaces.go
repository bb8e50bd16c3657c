package services

import (
	"errors"
	"time"

	"github.com/username/lotfolio/src/models"
)

var (
	ErrNoLotsForSecurity = errors.New("no lots exist for security")
	ErrNoTransactions    = errors.New("no transactions exist for account")
)

// SymbolError records a per-symbol failure inside a batch run. Batch
// operations collect these and keep going; one bad symbol never aborts the
// rest of the account.
type SymbolError struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

// ReconcileResult summarizes one reconciliation run over an account's
// transaction history.
type ReconcileResult struct {
	LotsCreated  int           `json:"lots_created"`
	LotsSkipped  int           `json:"lots_skipped"`
	SalesApplied int           `json:"sales_applied"`
	SalesSkipped int           `json:"sales_skipped"`
	Errors       []SymbolError `json:"errors"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// SnapshotResult summarizes snapshot-fallback lot creation.
type SnapshotResult struct {
	LotsCreated int           `json:"lots_created"`
	Skipped     int           `json:"skipped"`
	Errors      []SymbolError `json:"errors"`
}

// CorporateActionReport bundles the two detection heuristics run over an
// account's transaction history. Everything in it is a suggestion for the
// user to confirm; nothing is applied automatically.
type CorporateActionReport struct {
	Actions       []models.CorporateAction       `json:"actions"`
	TickerChanges []models.TickerChangeCandidate `json:"ticker_changes"`
}

// ReconcileService defines the core lot-engine operations exposed to the
// HTTP layer.
type ReconcileService interface {
	ImportTransactions(account string, txs []models.Transaction) (int, error)
	ProcessTransactions(account string) (*ReconcileResult, error)
	CreateLotsFromSnapshot(account string, positions []models.Position, snapshotDate time.Time) (*SnapshotResult, error)
	ApplySale(account, symbol string, sale models.SaleTerms, method models.AccountingMethod, lotIDs []string) (*models.AllocationResult, error)
	ApplySplit(account, symbol string, ratio float64, date time.Time, description string) (int, error)
	ApplyMerger(account, oldSymbol, newSymbol string, ratio float64, date time.Time, description string) (int, error)
	RecordDividend(account, symbol string, amount float64, date time.Time, description string) (*models.ManualAdjustment, error)
	ApplyTickerChange(account, oldSymbol, newSymbol string) (int, error)
	DetectCorporateActions(account string) (*CorporateActionReport, error)
	EnrichSnapshot(account string, positions []models.Position) ([]models.EnrichedPosition, error)
	GetLots(account string) ([]*models.Lot, error)
	GetAdjustments(account string) ([]*models.ManualAdjustment, error)
	PurgeAccount(account string) error
}
