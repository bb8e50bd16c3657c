package models

import (
	"time"

	"github.com/google/uuid"
)

// NewLot constructs an open lot for one acquisition. Quantity must be
// positive: a zero-or-negative quantity would make PricePerShare undefined,
// so it is rejected up front instead of producing Inf/NaN fields.
func NewLot(account, symbol string, quantity float64, acquisitionDate time.Time, costBasis float64, transactionDerived bool) (*Lot, error) {
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "lot quantity must be positive"}
	}
	if NormalizeSymbol(symbol) == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "missing symbol"}
	}
	if account == "" {
		return nil, &ValidationError{Field: "account", Reason: "missing account"}
	}
	symbol = NormalizeSymbol(symbol)
	return &Lot{
		ID:                 uuid.NewString(),
		SecurityID:         SecurityID(account, symbol),
		Account:            account,
		Symbol:             symbol,
		Quantity:           quantity,
		OriginalQuantity:   quantity,
		RemainingQuantity:  quantity,
		AcquisitionDate:    acquisitionDate,
		CostBasis:          costBasis,
		PricePerShare:      costBasis / quantity,
		Status:             LotOpen,
		TransactionDerived: transactionDerived,
		CreatedAt:          time.Now().UTC(),
	}, nil
}
