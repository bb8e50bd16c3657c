package models

import (
	"fmt"
	"strings"
)

// TransactionCategory classifies a transaction's effect on the lot ledger.
type TransactionCategory int

const (
	CategoryOther TransactionCategory = iota
	CategoryAcquisition
	CategoryDisposition
)

func (c TransactionCategory) String() string {
	switch c {
	case CategoryAcquisition:
		return "ACQUISITION"
	case CategoryDisposition:
		return "DISPOSITION"
	default:
		return "OTHER"
	}
}

// ParseTransactionCategory parses the stored string form of a category.
func ParseTransactionCategory(s string) (TransactionCategory, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACQUISITION":
		return CategoryAcquisition, nil
	case "DISPOSITION":
		return CategoryDisposition, nil
	case "OTHER", "":
		return CategoryOther, nil
	default:
		return CategoryOther, fmt.Errorf("unknown transaction category: %q", s)
	}
}

// CategorizeAction maps a broker action verb to a category. Unrecognized
// verbs are CategoryOther so they flow through imports untouched.
func CategorizeAction(action string) TransactionCategory {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "BUY", "BUY TO OPEN", "REINVEST", "REINVEST DIVIDEND", "TRANSFER IN":
		return CategoryAcquisition
	case "SELL", "SELL TO CLOSE", "TRANSFER OUT":
		return CategoryDisposition
	default:
		return CategoryOther
	}
}

// AccountingMethod selects how dispositions consume open lots.
type AccountingMethod int

const (
	MethodFIFO AccountingMethod = iota
	MethodLIFO
	MethodAverageCost
	MethodSpecificLot
)

func (m AccountingMethod) String() string {
	switch m {
	case MethodFIFO:
		return "fifo"
	case MethodLIFO:
		return "lifo"
	case MethodAverageCost:
		return "average"
	case MethodSpecificLot:
		return "specific"
	default:
		return "unknown"
	}
}

// ParseAccountingMethod parses a string into an AccountingMethod.
func ParseAccountingMethod(s string) (AccountingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo":
		return MethodFIFO, nil
	case "lifo":
		return MethodLIFO, nil
	case "average", "average_cost", "avgcost":
		return MethodAverageCost, nil
	case "specific", "specific_lot":
		return MethodSpecificLot, nil
	default:
		return 0, fmt.Errorf("unknown accounting method: %q", s)
	}
}

// LotStatus tracks how much of a lot has been consumed by sales.
type LotStatus string

const (
	LotOpen    LotStatus = "OPEN"
	LotPartial LotStatus = "PARTIAL"
	LotClosed  LotStatus = "CLOSED"
)

// AdjustmentType identifies a corporate action or manual basis adjustment.
type AdjustmentType string

const (
	AdjustmentSplit        AdjustmentType = "SPLIT"
	AdjustmentReverseSplit AdjustmentType = "REVERSE_SPLIT"
	AdjustmentDividend     AdjustmentType = "DIVIDEND"
	AdjustmentMerger       AdjustmentType = "MERGER"
	AdjustmentManual       AdjustmentType = "MANUAL"
)

// SplitAdjustmentType returns SPLIT or REVERSE_SPLIT for a ratio. Callers
// validate ratio > 0 before asking.
func SplitAdjustmentType(ratio float64) AdjustmentType {
	if ratio > 1 {
		return AdjustmentSplit
	}
	return AdjustmentReverseSplit
}
