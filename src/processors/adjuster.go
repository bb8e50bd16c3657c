package processors

import (
	"fmt"
	"time"

	"github.com/username/lotfolio/src/models"
)

// ApplySplitToLots rescales each lot for a stock split: quantities multiply
// by the ratio, price per share divides by it, and total cost basis stays
// untouched. Each lot gets an audit entry appended. A reverse split is the
// same formula with a ratio below 1.
func ApplySplitToLots(lots []*models.Lot, ratio float64, date time.Time, description string) error {
	if ratio <= 0 {
		return &models.ValidationError{Field: "ratio", Reason: "split ratio must be positive"}
	}
	if description == "" {
		description = SplitDescription(ratio)
	}

	adjustmentType := models.SplitAdjustmentType(ratio)
	for _, lot := range lots {
		lot.Quantity *= ratio
		lot.OriginalQuantity *= ratio
		lot.RemainingQuantity *= ratio
		lot.PricePerShare /= ratio
		lot.RecomputeStatus()
		lot.Adjustments = append(lot.Adjustments, models.LotAdjustment{
			Type:        adjustmentType,
			Date:        date,
			Ratio:       ratio,
			Description: description,
		})
	}
	return nil
}

// ApplyMergerToLots re-keys a security's lots to the acquiring symbol,
// rescaling quantities by the exchange ratio. Cost basis carries over
// unchanged, matching carryover-basis treatment of a share-for-share
// merger.
func ApplyMergerToLots(lots []*models.Lot, newSymbol string, ratio float64, date time.Time, description string) error {
	if ratio <= 0 {
		return &models.ValidationError{Field: "ratio", Reason: "merger exchange ratio must be positive"}
	}
	normalized := models.NormalizeSymbol(newSymbol)
	if normalized == "" {
		return &models.ValidationError{Field: "newSymbol", Reason: "missing merger target symbol"}
	}
	if description == "" {
		description = fmt.Sprintf("merger into %s at %g:1", normalized, ratio)
	}

	for _, lot := range lots {
		lot.Symbol = normalized
		lot.SecurityID = models.SecurityID(lot.Account, normalized)
		lot.Quantity *= ratio
		lot.OriginalQuantity *= ratio
		lot.RemainingQuantity *= ratio
		lot.PricePerShare /= ratio
		lot.RecomputeStatus()
		lot.Adjustments = append(lot.Adjustments, models.LotAdjustment{
			Type:        models.AdjustmentMerger,
			Date:        date,
			Ratio:       ratio,
			Description: description,
		})
	}
	return nil
}

// SplitDescription renders the conventional display form: "2:1 split" for a
// forward split, "1:2 reverse split" for a reverse split.
func SplitDescription(ratio float64) string {
	if ratio > 1 {
		return fmt.Sprintf("%g:1 split", ratio)
	}
	if ratio > 0 {
		return fmt.Sprintf("1:%g reverse split", 1/ratio)
	}
	return ""
}
