// Package forecast turns the observed search progress into predictions of
// the remaining tree size. It provides the weighted backtrack estimator and
// a rolling-window velocity/acceleration forecaster over (progress, resource)
// samples.
package forecast

import (
	"math"

	"github.com/branchbound/treewatch/internal/engine"
)

// ProgressMethod selects how leaf probabilities enter the backtrack
// estimator.
type ProgressMethod int

// Backtrack progress methods.
const (
	// ProgressUniform weighs a leaf at depth d with probability 2^-d.
	ProgressUniform ProgressMethod = iota
	// ProgressFixed uses the solver-assigned fixed node probabilities,
	// accumulated along the backtrack path to the root.
	ProgressFixed
)

// BacktrackEstim accumulates a sample-mean estimate of the total tree size
// from leaf-path probabilities.
type BacktrackEstim struct {
	numerator   float64
	denominator float64
	method      ProgressMethod
}

// NewBacktrackEstim creates an estimator with the given progress method.
func NewBacktrackEstim(method ProgressMethod) *BacktrackEstim {
	return &BacktrackEstim{method: method}
}

// Reset clears the accumulators.
func (be *BacktrackEstim) Reset() {
	be.numerator = 0.0
	be.denominator = 0.0
}

// SetMethod switches the progress method. The accumulators keep their values;
// callers reset at solve boundaries.
func (be *BacktrackEstim) SetMethod(method ProgressMethod) {
	be.method = method
}

// Method returns the active progress method.
func (be *BacktrackEstim) Method() ProgressMethod {
	return be.method
}

// AddLeaf accounts for a new, previously unseen leaf node.
func (be *BacktrackEstim) AddLeaf(leaf engine.Node) {
	var probability, num float64

	switch be.method {
	case ProgressFixed:
		probability = leaf.FixedProbability()
		pathProbability := probability
		num = 1.0

		for current := leaf; current.Parent() != nil; current = current.Parent() {
			arcProbability := current.FixedProbability() / current.Parent().FixedProbability()
			num += probability / pathProbability
			pathProbability /= arcProbability
		}
	case ProgressUniform:
		probability = math.Pow(0.5, float64(leaf.Depth()))
		num = 2.0 - probability
	}

	be.numerator += num
	be.denominator += probability
}

// Estimate returns the current tree size estimate, or a negative value while
// no leaf has been observed.
func (be *BacktrackEstim) Estimate() float64 {
	if be.denominator == 0.0 {
		return -1.0
	}

	return be.numerator / be.denominator
}
