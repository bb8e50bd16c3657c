package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/lotfolio/src/models"
)

func mkTx(id, symbol string, day time.Time, category models.TransactionCategory, quantity float64) models.Transaction {
	action := "Buy"
	if category == models.CategoryDisposition {
		action = "Sell"
	}
	return models.Transaction{
		ID:       id,
		Account:  "acct1",
		Symbol:   symbol,
		Date:     day,
		Action:   action,
		Quantity: quantity,
		Category: category,
	}
}

func day(month, d int) time.Time {
	return time.Date(2023, time.Month(month), d, 0, 0, 0, 0, time.UTC)
}

func TestDetectCorporateActionsForwardSplit(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "AAPL", day(1, 10), models.CategoryDisposition, 10),
		mkTx("t2", "AAPL", day(1, 11), models.CategoryAcquisition, 20),
	}
	actions := DetectCorporateActions(txs)

	require.Len(t, actions, 1)
	action := actions[0]
	assert.Equal(t, models.AdjustmentSplit, action.Type)
	assert.Equal(t, "AAPL", action.Symbol)
	assert.InDelta(t, 2.0, action.Ratio, 1e-9)
	assert.Equal(t, day(1, 11), action.Date)
	require.Len(t, action.Transactions, 2)
}

func TestDetectCorporateActionsReverseSplit(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "XYZ", day(3, 1), models.CategoryDisposition, 40),
		mkTx("t2", "XYZ", day(3, 2), models.CategoryAcquisition, 10),
	}
	actions := DetectCorporateActions(txs)

	require.Len(t, actions, 1)
	assert.Equal(t, models.AdjustmentReverseSplit, actions[0].Type)
	assert.InDelta(t, 0.25, actions[0].Ratio, 1e-9)
}

func TestDetectCorporateActionsRespectsWindow(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "AAPL", day(1, 10), models.CategoryDisposition, 10),
		mkTx("t2", "AAPL", day(1, 20), models.CategoryAcquisition, 20),
	}
	assert.Empty(t, DetectCorporateActions(txs))
}

func TestDetectCorporateActionsIgnoresOddRatios(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "AAPL", day(1, 10), models.CategoryDisposition, 10),
		mkTx("t2", "AAPL", day(1, 11), models.CategoryAcquisition, 17),
	}
	assert.Empty(t, DetectCorporateActions(txs))
}

func TestDetectCorporateActionsIgnoresSameDirectionPairs(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "AAPL", day(1, 10), models.CategoryAcquisition, 10),
		mkTx("t2", "AAPL", day(1, 11), models.CategoryAcquisition, 20),
	}
	assert.Empty(t, DetectCorporateActions(txs))
}

func TestDetectSymbolChange(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "FB", day(1, 1), models.CategoryAcquisition, 10),
		// META appears two days after FB's last activity with the same
		// net quantity, then keeps trading past the seven-day gap.
		mkTx("t2", "META", day(1, 3), models.CategoryAcquisition, 10),
		mkTx("t3", "META", day(2, 1), models.CategoryAcquisition, 5),
	}
	candidates := DetectSymbolChange(txs)

	require.Len(t, candidates, 1)
	candidate := candidates[0]
	assert.Equal(t, "FB", candidate.OldSymbol)
	assert.Equal(t, "META", candidate.NewSymbol)
	assert.Equal(t, 10.0, candidate.Quantity)
	assert.Equal(t, "MEDIUM", candidate.Confidence)
}

func TestDetectSymbolChangeQuantityMismatch(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "FB", day(1, 1), models.CategoryAcquisition, 10),
		mkTx("t2", "META", day(1, 3), models.CategoryAcquisition, 25),
		mkTx("t3", "META", day(2, 1), models.CategoryAcquisition, 5),
	}
	assert.Empty(t, DetectSymbolChange(txs))
}

func TestDetectSymbolChangeGapTooWide(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "FB", day(1, 1), models.CategoryAcquisition, 10),
		// New symbol appears three weeks later, outside the window.
		mkTx("t2", "META", day(1, 22), models.CategoryAcquisition, 10),
		mkTx("t3", "META", day(2, 15), models.CategoryAcquisition, 5),
	}
	assert.Empty(t, DetectSymbolChange(txs))
}

func TestDetectSymbolChangeIgnoresClosedPositions(t *testing.T) {
	txs := []models.Transaction{
		mkTx("t1", "FB", day(1, 1), models.CategoryAcquisition, 10),
		// The position was sold, so its disappearance is explained.
		mkTx("t2", "FB", day(1, 2), models.CategoryDisposition, 10),
		mkTx("t3", "META", day(1, 3), models.CategoryAcquisition, 10),
		mkTx("t4", "META", day(2, 1), models.CategoryAcquisition, 5),
	}
	assert.Empty(t, DetectSymbolChange(txs))
}
