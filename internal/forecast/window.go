package forecast

import (
	"math"

	"github.com/branchbound/treewatch/pkg/alg/des"
	"github.com/branchbound/treewatch/pkg/numeric"
)

// MaxWindowSize is the capacity of the rolling sample window.
const MaxWindowSize = 500

// Double exponential smoothing constants for the window samples.
const (
	windowDESAlpha = 0.95
	windowDESBeta  = 0.10
)

// accelEps decides when the fitted acceleration is treated as zero and the
// quadratic forecast degrades to the linear one.
const accelEps = 1e-9

// Window keeps a circular buffer of (progress, resource) pairs together with
// smoothed trends of both streams, and forecasts the remaining resources to
// reach a target progress level.
type Window struct {
	progress     [MaxWindowSize]float64
	resources    [MaxWindowSize]float64
	desProgress  *des.Smoother
	desResources *des.Smoother
	curr         int
	nobs         int
}

// NewWindow creates an empty sample window.
func NewWindow() *Window {
	w := &Window{
		desProgress:  des.New(windowDESAlpha, windowDESBeta),
		desResources: des.New(windowDESAlpha, windowDESBeta),
	}
	w.Reset()

	return w
}

// Reset discards all samples.
func (w *Window) Reset() {
	w.curr = -1
	w.nobs = 0

	w.desProgress.Reset(0.0)
	w.desResources.Reset(0.0)
}

// AddSample records a progress observation together with the resources, e.g.
// nodes, spent to reach it.
func (w *Window) AddSample(obs, res float64) {
	w.nobs++
	w.curr = (w.curr + 1) % MaxWindowSize
	w.progress[w.curr] = obs
	w.resources[w.curr] = res

	w.desProgress.Update(obs)
	w.desResources.Update(res)
}

// NObservations returns the total number of samples recorded.
func (w *Window) NObservations() int {
	return w.nobs
}

// CurrentProgress returns the latest progress observation, or 0 before any
// sample.
func (w *Window) CurrentProgress() float64 {
	if w.curr == -1 {
		return 0.0
	}

	return w.progress[w.curr]
}

// CurrentResources returns the latest resource observation, or 0 before any
// sample.
func (w *Window) CurrentResources() float64 {
	if w.curr == -1 {
		return 0.0
	}

	return w.resources[w.curr]
}

// ForecastLinear extrapolates the smoothed progress trend to the target level
// and converts the predicted number of remaining leaves into remaining nodes
// under the binary-tree assumption. It returns 0 when the target is reached
// and +Inf while no usable trend exists.
func (w *Window) ForecastLinear(target float64) float64 {
	remProgress := target - w.CurrentProgress()
	if remProgress <= 0.0 {
		return 0.0
	}

	if w.nobs == 0 {
		return math.Inf(1)
	}

	trend := w.desProgress.Trend()
	if trend == 0.0 || !numeric.IsValid(trend) {
		return math.Inf(1)
	}

	remLeaves := remProgress / trend
	totalLeaves := remLeaves + float64(w.nobs)

	return 2.0*totalLeaves - 1.0 - w.CurrentResources()
}

// velocity measures the progress per resource between two buffer indices.
func (w *Window) velocity(t1, t2 int) float64 {
	return (w.progress[t2] - w.progress[t1]) / (w.resources[t2] - w.resources[t1])
}

// ForecastWindow estimates the remaining resources from the last windowSize
// samples. With useAcceleration and at least 3 samples it fits a quadratic
// displacement s(r) = s0 + v*r + a/2*r^2 through the window's start, middle,
// and end, and returns the larger root of s(r) = target; otherwise it uses
// the window-secant velocity.
func (w *Window) ForecastWindow(target float64, windowSize int, useAcceleration bool) float64 {
	windowSize = min(windowSize, w.nobs)

	useAcceleration = useAcceleration && windowSize >= 3

	remProgress := target - w.CurrentProgress()
	if remProgress <= 0.0 {
		return 0.0
	}

	windowEnd := w.curr

	var windowStart int
	if w.nobs > MaxWindowSize {
		windowStart = (w.curr - windowSize + 1 + MaxWindowSize) % MaxWindowSize
	} else {
		windowStart = w.curr - windowSize + 1
	}

	if !useAcceleration {
		return remProgress / w.velocity(windowStart, windowEnd)
	}

	windowMid := ((windowStart + windowSize) / 2) % MaxWindowSize

	w1 := w.resources[windowStart]
	w2 := w.resources[windowMid]
	w3 := w.resources[windowEnd]

	vel1 := w.velocity(windowStart, windowMid)
	velWindow := w.velocity(windowStart, windowEnd)

	acceleration := (velWindow - vel1) / (w3 - w2) * 2.0

	v := vel1 - 0.5*acceleration*(w1+w2)
	s0 := w.progress[windowStart] - v*w1 - 0.5*acceleration*w1*w1

	if numeric.IsZero(acceleration, accelEps) {
		return remProgress / v
	}

	discriminant := math.Max(0.0, v*v-2.0*acceleration*(s0-target))
	root := math.Sqrt(discriminant)

	remRes1 := (-v + root) / acceleration
	remRes2 := (-v - root) / acceleration

	return math.Max(remRes1, remRes2)
}
