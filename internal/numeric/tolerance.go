// Package numeric compares weight and money quantities within a fixed tolerance.
// Every weight-derived amount in the ledger and the register goes through these
// helpers instead of raw float equality.
package numeric

import "math"

// Epsilon is one gram at kilogram scale.
const Epsilon = 0.001

// Equal reports whether a and b differ by at most Epsilon.
func Equal(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// GreaterThan reports whether a exceeds b by more than Epsilon.
func GreaterThan(a, b float64) bool {
	return a > b+Epsilon
}

// GreaterOrEqual reports whether a is not below b beyond the tolerance.
func GreaterOrEqual(a, b float64) bool {
	return a > b-Epsilon
}

// LessThan reports whether a is below b by more than Epsilon.
func LessThan(a, b float64) bool {
	return a < b-Epsilon
}

// Round3 rounds x to 3 decimal places. Used before display and before any
// persisted comparison.
func Round3(x float64) float64 {
	return roundTo(x, 1000)
}

// Round2 rounds x to 2 decimal places (currency display).
func Round2(x float64) float64 {
	return roundTo(x, 100)
}

func roundTo(x, scale float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r := math.Round(x*scale) / scale
	if r == 0 {
		// normalise -0
		return 0
	}
	return r
}

// NetWeight returns gross minus tare, floored at zero.
func NetWeight(gross, tare float64) float64 {
	return math.Max(0, gross-tare)
}
