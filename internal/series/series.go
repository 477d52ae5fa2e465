// Package series maintains the named time series that describe search
// progress. Every series samples one scalar aspect of the tree state at leaf
// events, smooths it with double exponential smoothing, and extrapolates the
// tree size at which the series reaches its terminal value. A constant-memory
// multiresolution buffer retains the entire history: when the sample buffer
// fills up, every second entry is dropped and the sampling stride doubles.
package series

import (
	"math"

	"github.com/branchbound/treewatch/internal/engine"
	"github.com/branchbound/treewatch/internal/tree"
	"github.com/branchbound/treewatch/pkg/alg/des"
	"github.com/branchbound/treewatch/pkg/numeric"
)

const (
	// bufferCapacity is the fixed size of the sample and estimation buffers.
	bufferCapacity = 1024

	// sesCoeff is the single exponential smoothing coefficient applied to
	// the per-sample estimates.
	sesCoeff = 0.75

	// targetEps decides when a series has reached its terminal value.
	targetEps = 1e-6

	// NoEstimate is the sentinel returned while no estimate is available.
	NoEstimate = -1.0
)

// Kind selects the update rule of a time series. The set is closed; adding a
// kind requires a new observation rule in observe.
type Kind int

// Time series kinds.
const (
	KindGap Kind = iota
	KindProgress
	KindLeafFrequency
	KindSSG
	KindOpenNodes
)

// spec carries the fixed per-kind parameters: terminal value, initial value,
// and the double exponential smoothing constants.
type spec struct {
	name    string
	target  float64
	initial float64
	alpha   float64
	beta    float64
}

var kindSpecs = map[Kind]spec{
	KindGap:           {name: "gap", target: 1.0, initial: 0.0, alpha: 0.60, beta: 0.15},
	KindProgress:      {name: "progress", target: 1.0, initial: 0.0, alpha: 0.65, beta: 0.15},
	KindLeafFrequency: {name: "leaf-frequency", target: 0.5, initial: -0.5, alpha: 0.30, beta: 0.33},
	KindSSG:           {name: "ssg", target: 0.0, initial: 1.0, alpha: 0.60, beta: 0.15},
	KindOpenNodes:     {name: "open-nodes", target: 0.0, initial: 0.0, alpha: 0.60, beta: 0.15},
}

// TimeSeries is one named stream of observations taken at leaf events.
type TimeSeries struct {
	solver      engine.Solver
	smoother    *des.Smoother
	name        string
	kind        Kind
	vals        []float64
	estimation  []float64
	smoothEstim float64
	target      float64
	current     float64
	initial     float64
	nobs        int64
	resolution  int
}

// New creates a time series of the given kind observing the solver.
func New(kind Kind, solver engine.Solver) *TimeSeries {
	ks := kindSpecs[kind]

	ts := &TimeSeries{
		solver:     solver,
		smoother:   des.New(ks.alpha, ks.beta),
		name:       ks.name,
		kind:       kind,
		vals:       make([]float64, 0, bufferCapacity),
		estimation: make([]float64, 0, bufferCapacity),
		target:     ks.target,
		initial:    ks.initial,
	}
	ts.Reset()

	return ts
}

// All creates the five predefined series in reporting order.
func All(solver engine.Solver) []*TimeSeries {
	kinds := []Kind{KindGap, KindProgress, KindLeafFrequency, KindSSG, KindOpenNodes}

	all := make([]*TimeSeries, 0, len(kinds))
	for _, kind := range kinds {
		all = append(all, New(kind, solver))
	}

	return all
}

// Reset clears all samples and restores the initial resolution.
func (ts *TimeSeries) Reset() {
	ts.resolution = 1
	ts.nobs = 0
	ts.vals = ts.vals[:0]
	ts.estimation = ts.estimation[:0]
	ts.current = ts.initial
	ts.smoothEstim = numeric.Invalid

	ts.smoother.Reset(ts.initial)
}

// observe computes the current observation from the tree state.
func (ts *TimeSeries) observe(td *tree.Data) float64 {
	switch ts.kind {
	case KindGap:
		// During a restart the queue is simply emptied; freeze the gap.
		if ts.solver.InRestart() {
			return ts.current
		}

		pb := ts.solver.PrimalBound()
		db := ts.solver.DualBound()

		if numeric.IsInfinite(math.Abs(pb)) || numeric.IsInfinite(math.Abs(db)) {
			return 0.0
		}

		if numeric.EQ(pb, db) {
			return 1.0
		}

		closed := 1.0 - math.Abs(pb-db)/math.Max(math.Abs(pb), math.Abs(db))

		// Primal and dual bounds of opposite sign close no gap.
		return math.Max(closed, 0.0)
	case KindProgress:
		return td.Progress()
	case KindLeafFrequency:
		if td.NVisited() == 0 {
			return -0.5
		}

		return (float64(td.NLeaves()) - 0.5) / float64(td.NVisited())
	case KindSSG:
		if td.NVisited() == 0 {
			return 1.0
		}

		return td.SSG().Value()
	case KindOpenNodes:
		if td.NVisited() == 0 {
			return 0.0
		}

		return float64(td.NOpen())
	}

	return ts.current
}

// Update records the observation for the current event. Non-leaf events only
// refresh the current value; leaf events count as observations and, at the
// sampling stride, extend the buffers and the smoothed estimate.
func (ts *TimeSeries) Update(td *tree.Data, isLeaf bool) {
	value := ts.observe(td)
	ts.current = value

	if !isLeaf {
		return
	}

	ts.nobs++

	if ts.nobs%int64(ts.resolution) == 0 {
		ts.vals = append(ts.vals, value)
		ts.smoother.Update(value)

		estimate := ts.Estimate(td)
		ts.estimation = append(ts.estimation, estimate)
		ts.updateSmoothEstimation(estimate)
	}

	if len(ts.vals) == bufferCapacity {
		ts.resample()
	}
}

// Estimate extrapolates the total number of tree nodes at which this series
// reaches its target value, or NoEstimate before the first observation.
func (ts *TimeSeries) Estimate(td *tree.Data) float64 {
	if ts.nobs == 0 {
		return NoEstimate
	}

	if numeric.IsZero(ts.current-ts.target, targetEps) {
		return 2.0*float64(ts.nobs) - 1.0
	}

	trend := ts.smoother.Trend()

	// A trend pointing away from the target cannot be extrapolated; fall
	// back to twice the work done so far.
	if (ts.target > ts.current && trend < targetEps) ||
		(ts.target < ts.current && trend > -targetEps) {
		return 2.0 * float64(td.NVisited())
	}

	steps := float64(len(ts.vals)) + (ts.target-ts.current)/trend

	return 2.0*float64(ts.resolution)*steps - 1.0
}

// updateSmoothEstimation feeds a per-sample estimate into the single
// exponential smoother.
func (ts *TimeSeries) updateSmoothEstimation(estimate float64) {
	if !numeric.IsValid(ts.smoothEstim) {
		ts.smoothEstim = estimate

		return
	}

	ts.smoothEstim *= 1.0 - sesCoeff
	ts.smoothEstim += sesCoeff * estimate
}

// resample halves the stored samples and doubles the resolution, replaying
// the compressed stream through the smoothers.
func (ts *TimeSeries) resample() {
	half := len(ts.vals) / 2

	ts.smoother.Reset(ts.initial)

	for i := range half {
		ts.vals[i] = ts.vals[2*i]
		ts.estimation[i] = ts.estimation[2*i]

		ts.smoother.Update(ts.vals[i])
		ts.updateSmoothEstimation(ts.estimation[i])
	}

	ts.vals = ts.vals[:half]
	ts.estimation = ts.estimation[:half]
	ts.resolution *= 2
}

// Name returns the series name.
func (ts *TimeSeries) Name() string { return ts.name }

// Kind returns the series kind.
func (ts *TimeSeries) Kind() Kind { return ts.kind }

// Current returns the last observed value.
func (ts *TimeSeries) Current() float64 { return ts.current }

// Target returns the terminal value this series reaches at the end of the
// search.
func (ts *TimeSeries) Target() float64 { return ts.target }

// Resolution returns the current sampling stride.
func (ts *TimeSeries) Resolution() int { return ts.resolution }

// NObs returns the total number of leaf observations.
func (ts *TimeSeries) NObs() int64 { return ts.nobs }

// NVals returns the number of stored samples.
func (ts *TimeSeries) NVals() int { return len(ts.vals) }

// Trend returns the smoothed trend, or numeric.Invalid before any sample.
func (ts *TimeSeries) Trend() float64 { return ts.smoother.Trend() }

// Level returns the smoothed level, or numeric.Invalid before any sample.
func (ts *TimeSeries) Level() float64 { return ts.smoother.Level() }

// SmoothEstimation returns the smoothed per-sample estimate, or
// numeric.Invalid before the first sample.
func (ts *TimeSeries) SmoothEstimation() float64 { return ts.smoothEstim }
