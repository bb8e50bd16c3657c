package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/lotfolio/src/models"
)

func mkLot(t *testing.T, year int, quantity, costBasis float64) *models.Lot {
	t.Helper()
	acquired := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	lot, err := models.NewLot("acct1", "FOO", quantity, acquired, costBasis, true)
	require.NoError(t, err)
	return lot
}

// threeLots is the canonical fixture: 10 shares each at increasing basis.
func threeLots(t *testing.T) []*models.Lot {
	t.Helper()
	return []*models.Lot{
		mkLot(t, 2021, 10, 1000),
		mkLot(t, 2022, 10, 1500),
		mkLot(t, 2023, 10, 2500),
	}
}

func saleOf(quantity, price float64) models.SaleTerms {
	return models.SaleTerms{
		Quantity: quantity,
		Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Price:    price,
	}
}

func TestAllocateSaleFIFO(t *testing.T) {
	lots := threeLots(t)
	result := AllocateSale(lots, saleOf(15, 200), models.MethodFIFO, nil)

	require.Len(t, result.AffectedLots, 2)
	assert.InDelta(t, 1750.0, result.TotalCostBasis, 1e-9)
	assert.InDelta(t, 15.0, result.TotalQuantitySold, 1e-9)
	assert.InDelta(t, 3000.0, result.TotalProceeds, 1e-9)
	assert.InDelta(t, 1250.0, result.GainLoss, 1e-9)
	assert.Zero(t, result.RemainingToSell)

	assert.Equal(t, models.LotClosed, lots[0].Status)
	assert.Equal(t, models.LotPartial, lots[1].Status)
	assert.InDelta(t, 5.0, lots[1].RemainingQuantity, 1e-9)
	assert.Equal(t, models.LotOpen, lots[2].Status)
}

func TestAllocateSaleLIFO(t *testing.T) {
	lots := threeLots(t)
	result := AllocateSale(lots, saleOf(15, 200), models.MethodLIFO, nil)

	require.Len(t, result.AffectedLots, 2)
	assert.InDelta(t, 3250.0, result.TotalCostBasis, 1e-9)
	assert.Equal(t, models.LotClosed, lots[2].Status)
	assert.InDelta(t, 5.0, lots[1].RemainingQuantity, 1e-9)
	assert.Equal(t, models.LotOpen, lots[0].Status)
}

func TestAllocateSaleOverSell(t *testing.T) {
	lots := threeLots(t)
	result := AllocateSale(lots, saleOf(31, 200), models.MethodFIFO, nil)

	assert.InDelta(t, 1.0, result.RemainingToSell, 1e-9)
	assert.InDelta(t, 30.0, result.TotalQuantitySold, 1e-9)
	require.NotEmpty(t, result.Warnings)
	for _, lot := range lots {
		assert.Equal(t, models.LotClosed, lot.Status)
	}
}

func TestAllocateSaleConservation(t *testing.T) {
	lots := threeLots(t)
	before := 0.0
	for _, lot := range lots {
		before += lot.RemainingQuantity
	}

	result := AllocateSale(lots, saleOf(17, 120), models.MethodFIFO, nil)

	after := 0.0
	for _, lot := range lots {
		after += lot.RemainingQuantity
	}
	assert.InDelta(t, result.TotalQuantitySold, before-after, 1e-9)
	// The accounting identity holds exactly, not just within tolerance.
	assert.Equal(t, result.GainLoss, result.TotalProceeds-result.TotalCostBasis)
}

func TestAllocateSaleAverageCost(t *testing.T) {
	lots := threeLots(t)
	result := AllocateSale(lots, saleOf(15, 200), models.MethodAverageCost, nil)

	// 5000 total basis over 30 shares: selling half consumes half the basis.
	assert.InDelta(t, 2500.0, result.TotalCostBasis, 1e-6)
	assert.InDelta(t, 15.0, result.TotalQuantitySold, 1e-9)
	assert.Zero(t, result.RemainingToSell)

	// Consumption projects back pro-rata: each lot gives up half.
	for _, lot := range lots {
		assert.InDelta(t, 5.0, lot.RemainingQuantity, 1e-6)
		assert.Equal(t, models.LotPartial, lot.Status)
	}
}

func TestAllocateSaleAverageCostFullConsumption(t *testing.T) {
	lots := threeLots(t)
	result := AllocateSale(lots, saleOf(30, 200), models.MethodAverageCost, nil)

	assert.InDelta(t, 5000.0, result.TotalCostBasis, 1e-6)
	assert.InDelta(t, 30.0, result.TotalQuantitySold, 1e-9)
	for _, lot := range lots {
		assert.Equal(t, models.LotClosed, lot.Status)
	}
}

func TestAllocateSaleSpecificLot(t *testing.T) {
	lots := threeLots(t)
	result := AllocateSale(lots, saleOf(8, 200), models.MethodSpecificLot, []string{lots[2].ID})

	require.Len(t, result.AffectedLots, 1)
	assert.Equal(t, lots[2].ID, result.AffectedLots[0].Lot.ID)
	assert.InDelta(t, 2000.0, result.TotalCostBasis, 1e-9)
	assert.InDelta(t, 2.0, lots[2].RemainingQuantity, 1e-9)
}

func TestAllocateSaleSpecificLotUnknownID(t *testing.T) {
	lots := threeLots(t)
	result := AllocateSale(lots, saleOf(5, 200), models.MethodSpecificLot, []string{"nope"})

	assert.Empty(t, result.AffectedLots)
	assert.InDelta(t, 5.0, result.RemainingToSell, 1e-9)
	require.NotEmpty(t, result.Warnings)
}

func TestAllocateSaleSpecificLotFallsBackToFIFO(t *testing.T) {
	lots := threeLots(t)
	result := AllocateSale(lots, saleOf(15, 200), models.MethodSpecificLot, nil)

	assert.InDelta(t, 1750.0, result.TotalCostBasis, 1e-9)
}

func TestAllocateSaleNoOpCases(t *testing.T) {
	lots := threeLots(t)

	result := AllocateSale(lots, saleOf(0, 200), models.MethodFIFO, nil)
	assert.Empty(t, result.AffectedLots)
	assert.Zero(t, result.TotalProceeds)

	result = AllocateSale(lots, saleOf(-3, 200), models.MethodFIFO, nil)
	assert.Empty(t, result.AffectedLots)

	result = AllocateSale(nil, saleOf(5, 200), models.MethodFIFO, nil)
	assert.Empty(t, result.AffectedLots)
	assert.InDelta(t, 5.0, result.RemainingToSell, 1e-9)
	require.NotEmpty(t, result.Warnings)
}

func TestAllocateSaleAggregateAmount(t *testing.T) {
	lots := threeLots(t)
	sale := models.SaleTerms{
		Quantity: 15,
		Date:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:   3000,
	}
	result := AllocateSale(lots, sale, models.MethodFIFO, nil)

	assert.InDelta(t, 3000.0, result.TotalProceeds, 1e-9)
	assert.InDelta(t, 1250.0, result.GainLoss, 1e-9)
}

func TestAllocateSaleSameDayTieBreakByID(t *testing.T) {
	a := mkLot(t, 2021, 10, 1000)
	b := mkLot(t, 2021, 10, 2000)
	first, second := a, b
	if b.ID < a.ID {
		first, second = b, a
	}

	result := AllocateSale([]*models.Lot{a, b}, saleOf(10, 100), models.MethodFIFO, nil)
	require.Len(t, result.AffectedLots, 1)
	assert.Equal(t, first.ID, result.AffectedLots[0].Lot.ID)
	assert.Equal(t, models.LotOpen, second.Status)
}

func TestStatusTransitionsAcrossPartialSells(t *testing.T) {
	lot := mkLot(t, 2021, 10, 1000)
	lots := []*models.Lot{lot}

	AllocateSale(lots, saleOf(3, 100), models.MethodFIFO, nil)
	assert.Equal(t, models.LotPartial, lot.Status)

	AllocateSale(lots, saleOf(4, 100), models.MethodFIFO, nil)
	assert.Equal(t, models.LotPartial, lot.Status)
	assert.InDelta(t, 3.0, lot.RemainingQuantity, 1e-9)

	AllocateSale(lots, saleOf(3, 100), models.MethodFIFO, nil)
	assert.Equal(t, models.LotClosed, lot.Status)
	assert.Zero(t, lot.RemainingQuantity)

	// Sale history accounts for the full original quantity.
	soldTotal := 0.0
	for _, sale := range lot.SaleTransactions {
		soldTotal += sale.Quantity
	}
	assert.InDelta(t, lot.OriginalQuantity, soldTotal, 1e-9)
}
