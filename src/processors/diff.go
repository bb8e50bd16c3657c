package processors

import (
	"math"
	"sort"

	"github.com/username/lotfolio/src/models"
)

// AnalyzePortfolioChanges classifies the differences between two portfolio
// snapshots using the coarse quantity epsilon. A nil previous snapshot means
// everything in current is newly acquired.
func AnalyzePortfolioChanges(current, previous []models.Position) *models.PortfolioChanges {
	return diffPositions(current, previous, models.QuantityEpsilonCoarse)
}

// ComparePortfolioSnapshots is the fine-epsilon variant used when comparing
// snapshots that should be near-identical, such as a re-upload of the same
// statement. The two epsilons are deliberately separate constants.
func ComparePortfolioSnapshots(current, previous []models.Position) *models.PortfolioChanges {
	return diffPositions(current, previous, models.QuantityEpsilonFine)
}

func diffPositions(current, previous []models.Position, epsilon float64) *models.PortfolioChanges {
	changes := &models.PortfolioChanges{
		Sold:                  []models.Position{},
		Acquired:              []models.Position{},
		QuantityChanges:       []models.QuantityChange{},
		PossibleTickerChanges: []models.TickerChangeCandidate{},
	}

	currentBySymbol := positionsBySymbol(current)
	previousBySymbol := positionsBySymbol(previous)

	if previous == nil {
		for _, pos := range currentBySymbol {
			changes.Acquired = append(changes.Acquired, pos)
		}
		sortPositions(changes.Acquired)
		return changes
	}

	for symbol, pos := range previousBySymbol {
		if _, held := currentBySymbol[symbol]; !held {
			changes.Sold = append(changes.Sold, pos)
		}
	}
	for symbol, pos := range currentBySymbol {
		prev, held := previousBySymbol[symbol]
		if !held {
			changes.Acquired = append(changes.Acquired, pos)
			continue
		}
		if math.Abs(pos.Quantity-prev.Quantity) > epsilon {
			changes.QuantityChanges = append(changes.QuantityChanges, models.QuantityChange{
				Symbol:           symbol,
				PreviousQuantity: prev.Quantity,
				CurrentQuantity:  pos.Quantity,
				Delta:            pos.Quantity - prev.Quantity,
			})
		}
	}

	// Symbol sort before pairing makes the first-match-wins tie-break
	// deterministic across runs.
	sortPositions(changes.Sold)
	sortPositions(changes.Acquired)
	sort.Slice(changes.QuantityChanges, func(i, j int) bool {
		return changes.QuantityChanges[i].Symbol < changes.QuantityChanges[j].Symbol
	})

	changes.Sold, changes.Acquired, changes.PossibleTickerChanges =
		pairTickerChanges(changes.Sold, changes.Acquired, epsilon)
	return changes
}

// pairTickerChanges matches each sold position against the first acquired
// position with the same quantity. Matched pairs become rename candidates
// and are removed from both lists so a symbol never appears twice.
func pairTickerChanges(sold, acquired []models.Position, epsilon float64) ([]models.Position, []models.Position, []models.TickerChangeCandidate) {
	candidates := []models.TickerChangeCandidate{}
	remainingSold := []models.Position{}
	matchedAcquired := make(map[int]bool)

	for _, soldPos := range sold {
		matched := false
		for i, acqPos := range acquired {
			if matchedAcquired[i] {
				continue
			}
			if math.Abs(soldPos.Quantity-acqPos.Quantity) <= epsilon {
				candidates = append(candidates, models.TickerChangeCandidate{
					OldSymbol:  models.NormalizeSymbol(soldPos.Symbol),
					NewSymbol:  models.NormalizeSymbol(acqPos.Symbol),
					Quantity:   acqPos.Quantity,
					Confidence: "HIGH",
				})
				matchedAcquired[i] = true
				matched = true
				break
			}
		}
		if !matched {
			remainingSold = append(remainingSold, soldPos)
		}
	}

	remainingAcquired := []models.Position{}
	for i, acqPos := range acquired {
		if !matchedAcquired[i] {
			remainingAcquired = append(remainingAcquired, acqPos)
		}
	}
	return remainingSold, remainingAcquired, candidates
}

func positionsBySymbol(positions []models.Position) map[string]models.Position {
	m := make(map[string]models.Position, len(positions))
	for _, pos := range positions {
		symbol := models.NormalizeSymbol(pos.Symbol)
		if symbol == "" {
			continue
		}
		pos.Symbol = symbol
		m[symbol] = pos
	}
	return m
}

func sortPositions(positions []models.Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
}
