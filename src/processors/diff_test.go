package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/lotfolio/src/models"
)

func TestAnalyzePortfolioChangesNilPrevious(t *testing.T) {
	current := []models.Position{
		{Symbol: "aapl", Quantity: 10},
		{Symbol: "MSFT", Quantity: 5},
	}
	changes := AnalyzePortfolioChanges(current, nil)

	require.Len(t, changes.Acquired, 2)
	assert.Equal(t, "AAPL", changes.Acquired[0].Symbol)
	assert.Equal(t, "MSFT", changes.Acquired[1].Symbol)
	assert.Empty(t, changes.Sold)
	assert.Empty(t, changes.QuantityChanges)
	assert.Empty(t, changes.PossibleTickerChanges)
}

func TestAnalyzePortfolioChangesTickerRename(t *testing.T) {
	previous := []models.Position{{Symbol: "FB", Quantity: 10}}
	current := []models.Position{{Symbol: "META", Quantity: 10}}

	changes := AnalyzePortfolioChanges(current, previous)

	require.Len(t, changes.PossibleTickerChanges, 1)
	candidate := changes.PossibleTickerChanges[0]
	assert.Equal(t, "FB", candidate.OldSymbol)
	assert.Equal(t, "META", candidate.NewSymbol)
	assert.Equal(t, 10.0, candidate.Quantity)
	assert.Equal(t, "HIGH", candidate.Confidence)
	assert.Empty(t, changes.Sold)
	assert.Empty(t, changes.Acquired)
}

func TestAnalyzePortfolioChangesSoldAndAcquired(t *testing.T) {
	previous := []models.Position{
		{Symbol: "AAPL", Quantity: 10},
		{Symbol: "GE", Quantity: 100},
	}
	current := []models.Position{
		{Symbol: "AAPL", Quantity: 10},
		{Symbol: "NVDA", Quantity: 3},
	}

	changes := AnalyzePortfolioChanges(current, previous)

	// GE (100) and NVDA (3) do not pair, so both stay in their lists.
	require.Len(t, changes.Sold, 1)
	assert.Equal(t, "GE", changes.Sold[0].Symbol)
	require.Len(t, changes.Acquired, 1)
	assert.Equal(t, "NVDA", changes.Acquired[0].Symbol)
	assert.Empty(t, changes.PossibleTickerChanges)
	assert.Empty(t, changes.QuantityChanges)
}

func TestAnalyzePortfolioChangesQuantityChange(t *testing.T) {
	previous := []models.Position{{Symbol: "AAPL", Quantity: 10}}
	current := []models.Position{{Symbol: "AAPL", Quantity: 15}}

	changes := AnalyzePortfolioChanges(current, previous)

	require.Len(t, changes.QuantityChanges, 1)
	change := changes.QuantityChanges[0]
	assert.Equal(t, "AAPL", change.Symbol)
	assert.Equal(t, 10.0, change.PreviousQuantity)
	assert.Equal(t, 15.0, change.CurrentQuantity)
	assert.Equal(t, 5.0, change.Delta)
}

func TestAnalyzePortfolioChangesCoarseEpsilon(t *testing.T) {
	previous := []models.Position{{Symbol: "AAPL", Quantity: 10}}
	current := []models.Position{{Symbol: "AAPL", Quantity: 10.005}}

	// A sub-epsilon wobble is not a quantity change at coarse tolerance.
	changes := AnalyzePortfolioChanges(current, previous)
	assert.Empty(t, changes.QuantityChanges)

	// The fine-epsilon comparison flags the same wobble.
	changes = ComparePortfolioSnapshots(current, previous)
	require.Len(t, changes.QuantityChanges, 1)
}

func TestAnalyzePortfolioChangesDeterministicPairing(t *testing.T) {
	// Two sold and two acquired all at quantity 10: symbol order decides
	// the pairing, so it is stable across runs.
	previous := []models.Position{
		{Symbol: "ZZZ", Quantity: 10},
		{Symbol: "AAA", Quantity: 10},
	}
	current := []models.Position{
		{Symbol: "MMM", Quantity: 10},
		{Symbol: "BBB", Quantity: 10},
	}

	for i := 0; i < 10; i++ {
		changes := AnalyzePortfolioChanges(current, previous)
		require.Len(t, changes.PossibleTickerChanges, 2)
		assert.Equal(t, "AAA", changes.PossibleTickerChanges[0].OldSymbol)
		assert.Equal(t, "BBB", changes.PossibleTickerChanges[0].NewSymbol)
		assert.Equal(t, "ZZZ", changes.PossibleTickerChanges[1].OldSymbol)
		assert.Equal(t, "MMM", changes.PossibleTickerChanges[1].NewSymbol)
	}
}

func TestAnalyzePortfolioChangesNormalizesSymbols(t *testing.T) {
	previous := []models.Position{{Symbol: " aapl ", Quantity: 10}}
	current := []models.Position{{Symbol: "AAPL", Quantity: 10}}

	changes := AnalyzePortfolioChanges(current, previous)
	assert.Empty(t, changes.Sold)
	assert.Empty(t, changes.Acquired)
	assert.Empty(t, changes.QuantityChanges)
}
