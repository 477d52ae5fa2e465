// Package numeric centralizes the epsilon-aware floating point comparisons and
// the infinity conventions used by the tree-size estimation code. All call
// sites share the same tolerance so that gap computation, trend sign tests,
// and split triggers agree on what "equal" means.
package numeric

import "math"

// Eps is the default comparison tolerance.
const Eps = 1e-6

// Invalid marks a real value as undefined, e.g. an estimate before the first
// observation. It compares unequal to every valid value including itself.
var Invalid = math.NaN()

// Infinity is the finite sentinel threshold: values at or beyond it are
// treated as infinite bounds.
const Infinity = 1e20

// IsValid reports whether v carries a defined value.
func IsValid(v float64) bool {
	return !math.IsNaN(v)
}

// IsInfinite reports whether v lies at or beyond the infinity sentinel in
// either direction.
func IsInfinite(v float64) bool {
	return v >= Infinity || v <= -Infinity || math.IsInf(v, 0)
}

// EQ reports whether a and b are equal within Eps.
func EQ(a, b float64) bool {
	return math.Abs(a-b) <= Eps
}

// IsZero reports whether v is within tol of zero.
func IsZero(v, tol float64) bool {
	return math.Abs(v) <= tol
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
