package processors

import (
	"fmt"
	"sort"

	"github.com/username/lotfolio/src/models"
	"github.com/username/lotfolio/src/utils"
)

// AllocateSale consumes open lots to cover a disposition under the chosen
// accounting method and returns the realized result. Lots are mutated in
// place (remaining quantity, status, sale history); persisting them is the
// caller's job. An over-sell is reported through RemainingToSell and a
// warning, never an error.
func AllocateSale(lots []*models.Lot, sale models.SaleTerms, method models.AccountingMethod, lotIDs []string) *models.AllocationResult {
	result := &models.AllocationResult{AffectedLots: []models.LotAllocation{}}
	if sale.Quantity <= 0 {
		return result
	}

	open := openLots(lots)
	if len(open) == 0 {
		result.RemainingToSell = sale.Quantity
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no open lots to cover sale of %.4f shares", sale.Quantity))
		return result
	}

	switch method {
	case models.MethodAverageCost:
		allocateAverageCost(result, open, sale)
	case models.MethodSpecificLot:
		if len(lotIDs) > 0 {
			allocateSpecificLots(result, open, sale, lotIDs)
			break
		}
		// Documented fallback: specific-lot with no lots named behaves
		// as FIFO.
		allocateOrdered(result, orderLots(open, models.MethodFIFO), sale)
	default:
		allocateOrdered(result, orderLots(open, method), sale)
	}

	if result.RemainingToSell > models.QuantityEpsilonFine {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("sale quantity exceeds open quantity by %.4f shares", result.RemainingToSell))
	} else {
		result.RemainingToSell = 0
	}
	result.GainLoss = result.TotalProceeds - result.TotalCostBasis
	return result
}

func allocateOrdered(result *models.AllocationResult, ordered []*models.Lot, sale models.SaleTerms) {
	stillToSell := sale.Quantity
	for _, lot := range ordered {
		if stillToSell <= models.QuantityEpsilonFine {
			break
		}
		quantitySold := utils.MinFloat(lot.RemainingQuantity, stillToSell)
		consumeLot(result, lot, quantitySold, sale)
		stillToSell -= quantitySold
	}
	result.RemainingToSell = stillToSell
}

// allocateAverageCost treats the open lots as one aggregate holding priced
// at the weighted-average remaining basis, then projects the consumption
// back onto the real lots pro-rata by each lot's share of the remaining
// quantity. The last lot absorbs the rounding residual so the quantities
// sold add up exactly.
func allocateAverageCost(result *models.AllocationResult, open []*models.Lot, sale models.SaleTerms) {
	ordered := orderLots(open, models.MethodFIFO)

	totalRemaining := 0.0
	for _, lot := range ordered {
		totalRemaining += lot.RemainingQuantity
	}

	quantitySold := utils.MinFloat(sale.Quantity, totalRemaining)
	result.RemainingToSell = sale.Quantity - quantitySold
	if quantitySold <= 0 {
		return
	}

	allocated := 0.0
	for i, lot := range ordered {
		var lotQuantity float64
		if i == len(ordered)-1 {
			lotQuantity = quantitySold - allocated
		} else {
			lotQuantity = quantitySold * (lot.RemainingQuantity / totalRemaining)
		}
		if lotQuantity <= 0 {
			continue
		}
		consumeLot(result, lot, lotQuantity, sale)
		allocated += lotQuantity
	}
}

func allocateSpecificLots(result *models.AllocationResult, open []*models.Lot, sale models.SaleTerms, lotIDs []string) {
	byID := make(map[string]*models.Lot, len(open))
	for _, lot := range open {
		byID[lot.ID] = lot
	}

	stillToSell := sale.Quantity
	for _, id := range lotIDs {
		if stillToSell <= models.QuantityEpsilonFine {
			break
		}
		lot, found := byID[id]
		if !found {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("specified lot %s not found or already closed", id))
			continue
		}
		quantitySold := utils.MinFloat(lot.RemainingQuantity, stillToSell)
		consumeLot(result, lot, quantitySold, sale)
		stillToSell -= quantitySold
	}
	result.RemainingToSell = stillToSell
}

// consumeLot charges quantitySold shares against one lot: pro-rated cost
// basis out, sale entry appended, status recomputed, and the allocation
// rolled into the running totals.
func consumeLot(result *models.AllocationResult, lot *models.Lot, quantitySold float64, sale models.SaleTerms) {
	costBasis := (lot.CostBasis / lot.OriginalQuantity) * quantitySold
	proceeds := sale.ProceedsFor(quantitySold)
	gainLoss := proceeds - costBasis

	lot.RemainingQuantity -= quantitySold
	lot.RecomputeStatus()
	lot.SaleTransactions = append(lot.SaleTransactions, models.LotSale{
		Date:                sale.Date,
		Quantity:            quantitySold,
		CostBasis:           costBasis,
		Proceeds:            proceeds,
		GainLoss:            gainLoss,
		SourceTransactionID: sale.SourceTransactionID,
	})

	result.AffectedLots = append(result.AffectedLots, models.LotAllocation{
		Lot:          lot,
		QuantitySold: quantitySold,
		CostBasis:    costBasis,
		Proceeds:     proceeds,
		GainLoss:     gainLoss,
	})
	result.TotalQuantitySold += quantitySold
	result.TotalProceeds += proceeds
	result.TotalCostBasis += costBasis
}

func openLots(lots []*models.Lot) []*models.Lot {
	open := make([]*models.Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.RemainingQuantity > models.QuantityEpsilonFine {
			open = append(open, lot)
		}
	}
	return open
}

// orderLots returns a sorted copy; the ID tie-break keeps same-day lots in
// a stable order.
func orderLots(lots []*models.Lot, method models.AccountingMethod) []*models.Lot {
	ordered := make([]*models.Lot, len(lots))
	copy(ordered, lots)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].AcquisitionDate.Equal(ordered[j].AcquisitionDate) {
			if method == models.MethodLIFO {
				return ordered[i].AcquisitionDate.After(ordered[j].AcquisitionDate)
			}
			return ordered[i].AcquisitionDate.Before(ordered[j].AcquisitionDate)
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}
