package processors

import (
	"math"
	"sort"
	"time"

	"github.com/username/lotfolio/src/models"
	"github.com/username/lotfolio/src/utils"
)

// splitRatios are the share ratios the detector recognizes, forward splits
// first, then their reverse counterparts.
var splitRatios = []float64{2, 3, 4, 5, 0.5, 1.0 / 3.0, 0.25, 0.2}

const (
	splitRatioTolerance = 0.1
	splitPairWindowDays = 2
)

// DetectCorporateActions scans a transaction history for split and
// reverse-split patterns: an acquisition and a disposition of the same
// symbol within two days whose quantity ratio lands near a common split
// ratio. The results are heuristics for the user to confirm, never applied
// automatically.
func DetectCorporateActions(txs []models.Transaction) []models.CorporateAction {
	actions := []models.CorporateAction{}

	for _, symbolTxs := range groupBySymbol(txs) {
		for i := 0; i < len(symbolTxs)-1; i++ {
			tx, next := symbolTxs[i], symbolTxs[i+1]
			if utils.DaysBetween(tx.Date, next.Date) > splitPairWindowDays {
				continue
			}
			if !oppositeDirections(tx, next) || tx.Quantity == 0 {
				continue
			}
			ratio := math.Abs(next.Quantity / tx.Quantity)
			if !nearSplitRatio(ratio) {
				continue
			}
			actions = append(actions, models.CorporateAction{
				Type:         models.SplitAdjustmentType(ratio),
				Symbol:       models.NormalizeSymbol(tx.Symbol),
				Date:         next.Date,
				Ratio:        ratio,
				Transactions: []models.Transaction{tx, next},
			})
		}
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Symbol != actions[j].Symbol {
			return actions[i].Symbol < actions[j].Symbol
		}
		return actions[i].Date.Before(actions[j].Date)
	})
	return actions
}

const (
	symbolGapThresholdDays = 7
	symbolGapWindowDays    = 5
)

// DetectSymbolChange looks for ticker renames in a transaction timeline: a
// held symbol whose activity stops for more than a week while a new symbol
// appears within five days of the gap carrying a matching quantity. This is
// distinct from the snapshot-diff rename detection and carries lower
// confidence.
func DetectSymbolChange(txs []models.Transaction) []models.TickerChangeCandidate {
	candidates := []models.TickerChangeCandidate{}
	groups := groupBySymbol(txs)
	if len(groups) < 2 {
		return candidates
	}

	var latest time.Time
	for _, symbolTxs := range groups {
		last := symbolTxs[len(symbolTxs)-1].Date
		if last.After(latest) {
			latest = last
		}
	}

	symbols := make([]string, 0, len(groups))
	for symbol := range groups {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, oldSymbol := range symbols {
		oldTxs := groups[oldSymbol]
		lastDate := oldTxs[len(oldTxs)-1].Date
		if utils.DaysBetween(lastDate, latest) <= symbolGapThresholdDays {
			continue
		}
		netQty := netQuantity(oldTxs)
		if netQty <= models.QuantityEpsilonCoarse {
			continue
		}
		for _, newSymbol := range symbols {
			if newSymbol == oldSymbol {
				continue
			}
			newTxs := groups[newSymbol]
			firstDate := newTxs[0].Date
			gapDays := utils.DaysBetween(lastDate, firstDate)
			if gapDays < 0 || gapDays > symbolGapWindowDays {
				continue
			}
			if math.Abs(newTxs[0].Quantity-netQty) > models.QuantityEpsilonCoarse {
				continue
			}
			candidates = append(candidates, models.TickerChangeCandidate{
				OldSymbol:  oldSymbol,
				NewSymbol:  newSymbol,
				Quantity:   netQty,
				Confidence: "MEDIUM",
			})
			break
		}
	}
	return candidates
}

// groupBySymbol buckets transactions by normalized symbol, each bucket
// sorted by date ascending with ID as the tie-break.
func groupBySymbol(txs []models.Transaction) map[string][]models.Transaction {
	groups := make(map[string][]models.Transaction)
	for _, tx := range txs {
		symbol := models.NormalizeSymbol(tx.Symbol)
		if symbol == "" {
			continue
		}
		groups[symbol] = append(groups[symbol], tx)
	}
	for symbol := range groups {
		group := groups[symbol]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].Date.Equal(group[j].Date) {
				return group[i].Date.Before(group[j].Date)
			}
			return group[i].ID < group[j].ID
		})
	}
	return groups
}

func oppositeDirections(a, b models.Transaction) bool {
	return (a.Category == models.CategoryAcquisition && b.Category == models.CategoryDisposition) ||
		(a.Category == models.CategoryDisposition && b.Category == models.CategoryAcquisition)
}

func nearSplitRatio(ratio float64) bool {
	for _, known := range splitRatios {
		if math.Abs(ratio-known) <= splitRatioTolerance {
			return true
		}
	}
	return false
}

func netQuantity(txs []models.Transaction) float64 {
	net := 0.0
	for _, tx := range txs {
		switch tx.Category {
		case models.CategoryAcquisition:
			net += tx.Quantity
		case models.CategoryDisposition:
			net -= math.Abs(tx.Quantity)
		}
	}
	return net
}
