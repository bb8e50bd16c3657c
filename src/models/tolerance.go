package models

import "math"

// Quantity comparison tolerances. Two distinct epsilons exist on purpose:
// the coarse one is used when diffing display-level snapshot quantities,
// the fine one when comparing quantities produced by lot arithmetic.
// They must not be unified without revisiting every call site.
const (
	QuantityEpsilonCoarse = 0.01
	QuantityEpsilonFine   = 0.0001
)

// NearlyEqual reports |a-b| <= eps. Computed quantities are never compared
// with exact equality.
func NearlyEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
