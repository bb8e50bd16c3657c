package models

import (
	"time"
)

// Position is one row of a parsed portfolio snapshot. Positions are
// ephemeral: they are produced by the upload layer and consumed read-only
// by the diff engine and the snapshot-fallback lot creation.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	MarketValue  float64 `json:"market_value"`
	CostBasis    float64 `json:"cost_basis"`
	GainLoss     float64 `json:"gain_loss"`
	SecurityType string  `json:"security_type"`
	Description  string  `json:"description"`
}

// Transaction is a single imported brokerage transaction. Immutable once
// imported; deleted only on account purge.
type Transaction struct {
	ID       string              `json:"id"`
	Account  string              `json:"account"`
	Symbol   string              `json:"symbol"`
	Date     time.Time           `json:"date"`
	Action   string              `json:"action"` // broker verb as imported, e.g. "Buy", "Sell"
	Quantity float64             `json:"quantity"`
	Price    float64             `json:"price"`
	Amount   float64             `json:"amount"`
	Category TransactionCategory `json:"category"`
	HashID   string              `json:"hash_id"`
}

// Validate checks the fields the lot engine depends on. Category-specific
// requirements (positive quantity on acquisitions, a usable date) are
// enforced here so downstream math never has to guard against them.
func (t *Transaction) Validate() error {
	if NormalizeSymbol(t.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "missing symbol"}
	}
	if t.Account == "" {
		return &ValidationError{Field: "account", Reason: "missing account"}
	}
	if t.Date.IsZero() && t.Category != CategoryOther {
		return &ValidationError{Field: "date", Reason: "missing date on " + t.Category.String() + " transaction"}
	}
	if t.Category == CategoryAcquisition && t.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "acquisition quantity must be positive"}
	}
	return nil
}

// LotAdjustment is one corporate-action entry in a lot's audit trail.
type LotAdjustment struct {
	Type        AdjustmentType `json:"type"`
	Date        time.Time      `json:"date"`
	Ratio       float64        `json:"ratio"`
	Description string         `json:"description"`
}

// LotSale records one disposition applied against a lot.
// SourceTransactionID links the entry back to the imported transaction that
// produced it; the reconciler checks it to avoid charging the same sale
// twice on a re-run.
type LotSale struct {
	Date                time.Time `json:"date"`
	Quantity            float64   `json:"quantity"`
	CostBasis           float64   `json:"cost_basis"`
	Proceeds            float64   `json:"proceeds"`
	GainLoss            float64   `json:"gain_loss"`
	SourceTransactionID string    `json:"source_transaction_id,omitempty"`
}

// Lot is the append-only ledger entry for one acquisition of a security.
// CostBasis is the total dollars paid for OriginalQuantity shares and is
// invariant under splits; PricePerShare rescales instead.
type Lot struct {
	ID                  string          `json:"id"`
	SecurityID          string          `json:"security_id"`
	Account             string          `json:"account"`
	Symbol              string          `json:"symbol"`
	Quantity            float64         `json:"quantity"`
	OriginalQuantity    float64         `json:"original_quantity"`
	RemainingQuantity   float64         `json:"remaining_quantity"`
	AcquisitionDate     time.Time       `json:"acquisition_date"`
	CostBasis           float64         `json:"cost_basis"`
	PricePerShare       float64         `json:"price_per_share"`
	Status              LotStatus       `json:"status"`
	TransactionDerived  bool            `json:"transaction_derived"`
	SourceTransactionID string          `json:"source_transaction_id,omitempty"`
	Adjustments         []LotAdjustment `json:"adjustments,omitempty"`
	SaleTransactions    []LotSale       `json:"sale_transactions,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// RecomputeStatus re-derives Status from the quantity fields:
// CLOSED when nothing remains, OPEN when untouched, PARTIAL otherwise.
// Comparisons are epsilon-tolerant because remaining quantities are the
// result of repeated float subtraction.
func (l *Lot) RecomputeStatus() {
	switch {
	case l.RemainingQuantity <= QuantityEpsilonFine:
		l.RemainingQuantity = 0
		l.Status = LotClosed
	case l.RemainingQuantity >= l.OriginalQuantity-QuantityEpsilonFine:
		l.Status = LotOpen
	default:
		l.Status = LotPartial
	}
}

// SecurityMetadata caches derived facts about one (account, symbol)
// security, primarily the earliest acquisition date.
type SecurityMetadata struct {
	Symbol          string    `json:"symbol"`
	Account         string    `json:"account"`
	AcquisitionDate time.Time `json:"acquisition_date"`
	Description     string    `json:"description"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ManualAdjustment is a standalone account/symbol-level audit record of a
// corporate action, distinct from the per-lot adjustment entries. Never
// mutated; deletable individually or by symbol/account.
type ManualAdjustment struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	Account        string         `json:"account"`
	Type           AdjustmentType `json:"type"`
	Date           time.Time      `json:"date"`
	Ratio          float64        `json:"ratio,omitempty"`
	DividendAmount float64        `json:"dividend_amount,omitempty"`
	Description    string         `json:"description"`
	CreatedAt      time.Time      `json:"created_at"`
}

// CorporateAction is a detected (not yet confirmed) split or reverse-split
// candidate inferred from a symbol's transaction history.
type CorporateAction struct {
	Type         AdjustmentType `json:"type"`
	Symbol       string         `json:"symbol"`
	Date         time.Time      `json:"date"`
	Ratio        float64        `json:"ratio"`
	Transactions []Transaction  `json:"transactions"`
}

// TickerChangeCandidate is a possible symbol rename detected either from a
// snapshot diff or from a transaction-timeline gap.
type TickerChangeCandidate struct {
	OldSymbol  string  `json:"old_symbol"`
	NewSymbol  string  `json:"new_symbol"`
	Quantity   float64 `json:"quantity"`
	Confidence string  `json:"confidence"` // "HIGH" for snapshot diffs, "MEDIUM" for timeline gaps
}

// QuantityChange describes a position held in both snapshots whose
// quantity moved by more than the comparison epsilon.
type QuantityChange struct {
	Symbol           string  `json:"symbol"`
	PreviousQuantity float64 `json:"previous_quantity"`
	CurrentQuantity  float64 `json:"current_quantity"`
	Delta            float64 `json:"delta"`
}

// PortfolioChanges is the classified diff of two snapshots.
type PortfolioChanges struct {
	Sold                  []Position              `json:"sold"`
	Acquired              []Position              `json:"acquired"`
	QuantityChanges       []QuantityChange        `json:"quantity_changes"`
	PossibleTickerChanges []TickerChangeCandidate `json:"possible_ticker_changes"`
}

// SaleTerms describes a disposition to allocate against open lots. Either
// Price (per share) or Amount (aggregate proceeds for the whole sale) may
// be set; when Amount is non-zero it wins and is prorated by quantity.
type SaleTerms struct {
	Quantity float64   `json:"quantity"`
	Date     time.Time `json:"date"`
	Price    float64   `json:"price,omitempty"`
	Amount   float64   `json:"amount,omitempty"`
	// SourceTransactionID is set when the sale comes from an imported
	// transaction; it is stamped onto each resulting lot sale entry.
	SourceTransactionID string `json:"source_transaction_id,omitempty"`
}

// ProceedsFor returns the proceeds attributable to quantitySold shares of
// this sale.
func (s SaleTerms) ProceedsFor(quantitySold float64) float64 {
	if s.Amount != 0 && s.Quantity > 0 {
		return s.Amount * (quantitySold / s.Quantity)
	}
	return quantitySold * s.Price
}

// LotAllocation is the portion of a sale charged against one lot.
type LotAllocation struct {
	Lot          *Lot    `json:"lot"`
	QuantitySold float64 `json:"quantity_sold"`
	CostBasis    float64 `json:"cost_basis"`
	Proceeds     float64 `json:"proceeds"`
	GainLoss     float64 `json:"gain_loss"`
}

// AllocationResult is the outcome of applying one sale against a lot set.
// RemainingToSell > 0 means the sale exceeded the open quantity; that is a
// consistency warning carried as data, never an error.
type AllocationResult struct {
	AffectedLots      []LotAllocation `json:"affected_lots"`
	TotalQuantitySold float64         `json:"total_quantity_sold"`
	TotalProceeds     float64         `json:"total_proceeds"`
	TotalCostBasis    float64         `json:"total_cost_basis"`
	GainLoss          float64         `json:"gain_loss"`
	RemainingToSell   float64         `json:"remaining_to_sell"`
	Warnings          []string        `json:"warnings,omitempty"`
}

// EnrichedPosition annotates a snapshot position with lot-derived facts
// for display.
type EnrichedPosition struct {
	Position
	TransactionDerived      bool      `json:"transaction_derived"`
	EarliestAcquisitionDate time.Time `json:"earliest_acquisition_date,omitempty"`
	OpenLotQuantity         float64   `json:"open_lot_quantity"`
	Discrepancy             string    `json:"discrepancy,omitempty"`
}
