package restart

import (
	"math"

	"github.com/branchbound/treewatch/internal/series"
	"github.com/branchbound/treewatch/pkg/numeric"
)

// Per-series weights of the combined tree size estimate, by reporting order
// (gap, progress, leaf-frequency, ssg, open-nodes), partitioned by progress.
// The later phases additionally blend in the weighted backtrack estimate.
var (
	coeffsEarly        = []float64{0.002, 0.381, 0.469, 0.292, 0.004}
	coeffsIntermediate = []float64{0.011, 0.193, 0.351, 0.012, 0.051}
	coeffsLate         = []float64{0.000, 0.033, 0.282, 0.003, 0.024}
)

// Backtrack estimate weights of the intermediate and late phases.
const (
	wbeWeightIntermediate = 0.156
	wbeWeightLate         = 0.579
)

// Progress thresholds separating the estimate phases.
const (
	progressEarlyEnd        = 0.3
	progressIntermediateEnd = 0.6
)

// TreeSizeEstimation combines the per-series estimates and the backtrack
// estimate into a single final tree size prediction. Series without an
// estimate contribute the current node count; the result never drops below
// the current node count.
func (c *Controller) TreeSizeEstimation() float64 {
	progress := c.treeData.Progress()

	var (
		coeffs    []float64
		wbeWeight float64
	)

	switch {
	case progress <= progressEarlyEnd:
		coeffs = coeffsEarly
	case progress <= progressIntermediateEnd:
		coeffs = coeffsIntermediate
		wbeWeight = wbeWeightIntermediate
	default:
		coeffs = coeffsLate
		wbeWeight = wbeWeightLate
	}

	estim := 0.0

	for t, ts := range c.allSeries {
		tsEstim := ts.Estimate(c.treeData)
		if tsEstim < 0.0 {
			tsEstim = float64(c.treeData.NNodes())
		}

		estim += coeffs[t] * tsEstim
	}

	if wbeWeight > 0.0 {
		estim += wbeWeight * c.backtrack.Estimate()
	}

	return math.Max(estim, float64(c.treeData.NNodes()))
}

// Linear completion model blending progress against the subtree sum gap,
// used when no regression forest is loaded.
const (
	completionIntercept      = 0.5828
	completionProgressWeight = 0.3667
	completionSSGWeight      = 0.6101
)

// minReportableProgress is the progress below which the completion measure is
// considered unknown.
const minReportableProgress = 0.005

// Completed returns the estimated fraction of the search completed, capped
// at 1. With a loaded regression forest the prediction uses the series
// values and trends as features; otherwise a linear blend of progress and
// subtree sum gap applies.
func (c *Controller) Completed() float64 {
	var completed float64

	if c.regForest != nil {
		completed = c.regForest.Predict(c.completionFeatures())
	} else {
		progressTS := c.seriesOf(series.KindProgress)
		ssgTS := c.seriesOf(series.KindSSG)

		completed = completionIntercept +
			completionProgressWeight*progressTS.Current() -
			completionSSGWeight*ssgTS.Current()
	}

	return math.Min(completed, 1.0)
}

// completionFeatures assembles the regression forest feature vector: value
// and trend of the progress, ssg, leaf-frequency, and gap series, plus the
// sign of the open-nodes trend.
func (c *Controller) completionFeatures() []float64 {
	features := make([]float64, 9)

	features[0] = c.seriesOf(series.KindProgress).Current()
	features[1] = c.seriesOf(series.KindProgress).Trend()
	features[2] = c.seriesOf(series.KindSSG).Current()
	features[3] = c.seriesOf(series.KindSSG).Trend()
	features[4] = c.seriesOf(series.KindLeafFrequency).Current()
	features[5] = c.seriesOf(series.KindLeafFrequency).Trend()
	features[6] = c.seriesOf(series.KindGap).Current()
	features[7] = c.seriesOf(series.KindGap).Trend()

	features[8] = 0.0
	if openTrend := c.seriesOf(series.KindOpenNodes).Trend(); numeric.IsValid(openTrend) && openTrend < 0.0 {
		features[8] = 1.0
	}

	return features
}

// seriesOf returns the predefined series of the given kind.
func (c *Controller) seriesOf(kind series.Kind) *series.TimeSeries {
	for _, ts := range c.allSeries {
		if ts.Kind() == kind {
			return ts
		}
	}

	return nil
}
