// Package restart implements the restart controller. It observes every node
// event of a branch-and-bound solver, maintains tree statistics and progress
// time series, forecasts the final tree size, and requests a restart when the
// configured policy fires.
package restart

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/branchbound/treewatch/internal/engine"
	"github.com/branchbound/treewatch/internal/forecast"
	"github.com/branchbound/treewatch/internal/forest"
	"github.com/branchbound/treewatch/internal/series"
	"github.com/branchbound/treewatch/internal/tree"
	"github.com/branchbound/treewatch/pkg/config"
	"github.com/branchbound/treewatch/pkg/observability"
)

// NReports is the maximum number of periodic reports per run.
const NReports = 100

// Policy selects when the controller requests a restart.
type Policy int

// Restart policies.
const (
	PolicyNever Policy = iota
	PolicyAlways
	PolicyEstimation
	PolicyProgress
)

// EstimationMethod selects the external tree size estimate consulted by the
// estimation policy.
type EstimationMethod int

// Estimation methods.
const (
	EstimationTreeSize EstimationMethod = iota
	EstimationProfile
)

// ProgressMeasure selects how leaf events advance the search progress sample.
type ProgressMeasure int

// Progress measures.
const (
	ProgressUniform ProgressMeasure = iota
	ProgressGap
	ProgressRatio
	ProgressFixed
)

// ForecastMethod selects the remaining-nodes forecaster of the progress
// policy.
type ForecastMethod int

// Forecast methods.
const (
	ForecastBacktrack ForecastMethod = iota
	ForecastLinear
	ForecastWindow
)

// Decision is the controller's answer to a node event.
type Decision int

// Decisions.
const (
	// Continue keeps the current run going.
	Continue Decision = iota
	// Restart signals that a restart has been requested from the solver.
	Restart
)

// Controller wires the tree data, time series, and forecasters together and
// evaluates the restart policy at event boundaries. It is single-threaded:
// the solver drives it from its event loop and callbacks are never reentrant.
type Controller struct {
	solver  engine.Solver
	logger  *slog.Logger
	metrics *observability.Metrics

	treeData  *tree.Data
	allSeries []*series.TimeSeries
	window    *forecast.Window
	backtrack *forecast.BacktrackEstim
	regForest *forest.Forest

	policy            Policy
	estimationMethod  EstimationMethod
	progressMeasure   ProgressMeasure
	forecastMethod    ForecastMethod
	windowSize        int
	useAcceleration   bool
	restartLimit      int
	minNodes          int64
	countOnlyLeaves   bool
	estimationFactor  float64
	hitCounterLimit   int
	printReports      bool
	regForestFilename string

	nRestartsPerformed int
	restartHitCounter  int
	progLastReport     float64
	nReports           int
	forestLoadTried    bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics sets the controller's metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a controller observing the given solver. The configuration is
// validated; an invalid option rejects the whole controller.
func New(solver engine.Solver, cfg config.Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("restart controller: %w", err)
	}

	c := &Controller{
		solver:            solver,
		logger:            slog.Default(),
		metrics:           observability.NewNoopMetrics(),
		treeData:          tree.NewData(solver),
		allSeries:         series.All(solver),
		window:            forecast.NewWindow(),
		backtrack:         forecast.NewBacktrackEstim(forecast.ProgressUniform),
		policy:            parsePolicy(cfg.Policy),
		estimationMethod:  parseEstimationMethod(cfg.EstimationMethod),
		progressMeasure:   parseProgressMeasure(cfg.ProgressMeasure),
		forecastMethod:    parseForecastMethod(cfg.Forecast),
		windowSize:        cfg.WindowSize,
		useAcceleration:   cfg.UseAcceleration,
		restartLimit:      cfg.RestartLimit,
		minNodes:          cfg.MinNodes,
		countOnlyLeaves:   cfg.CountOnlyLeaves,
		estimationFactor:  cfg.Estimation.Factor,
		hitCounterLimit:   cfg.HitCounterLimit,
		printReports:      cfg.PrintReports,
		regForestFilename: cfg.RegForestFilename,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func parsePolicy(s string) Policy {
	switch s {
	case "a":
		return PolicyAlways
	case "e":
		return PolicyEstimation
	case "p":
		return PolicyProgress
	default:
		return PolicyNever
	}
}

func parseEstimationMethod(s string) EstimationMethod {
	if s == "p" {
		return EstimationProfile
	}

	return EstimationTreeSize
}

func parseProgressMeasure(s string) ProgressMeasure {
	switch s {
	case "f":
		return ProgressFixed
	case "g":
		return ProgressGap
	case "r":
		return ProgressRatio
	default:
		return ProgressUniform
	}
}

func parseForecastMethod(s string) ForecastMethod {
	switch s {
	case "b":
		return ForecastBacktrack
	case "w":
		return ForecastWindow
	default:
		return ForecastLinear
	}
}

// TreeData exposes the aggregate tree statistics.
func (c *Controller) TreeData() *tree.Data {
	return c.treeData
}

// Series returns the predefined time series in reporting order.
func (c *Controller) Series() []*series.TimeSeries {
	return c.allSeries
}

// NRestartsPerformed returns the number of restarts requested so far.
func (c *Controller) NRestartsPerformed() int {
	return c.nRestartsPerformed
}

// OnSolveBegin prepares the controller for a fresh run: all statistics,
// series, and forecasters are reset, and the regression forest is loaded on
// the first call when configured. A forest load failure is logged once and
// the controller continues without a forest.
func (c *Controller) OnSolveBegin() {
	c.window.Reset()
	c.backtrack.Reset()

	// The backtrack estimator only supports fixed or uniform probabilities.
	if c.progressMeasure == ProgressFixed {
		c.backtrack.SetMethod(forecast.ProgressFixed)
	} else {
		c.backtrack.SetMethod(forecast.ProgressUniform)
	}

	c.restartHitCounter = 0
	c.progLastReport = 0.0
	c.nReports = 0

	c.treeData.Reset()

	for _, ts := range c.allSeries {
		ts.Reset()
	}

	if !c.forestLoadTried && c.regForestFilename != config.DefaultRegForestFilename {
		c.forestLoadTried = true

		loaded, err := forest.FromFile(c.regForestFilename)
		if err != nil {
			c.logger.Warn("regression forest not loaded",
				slog.String("filename", c.regForestFilename),
				slog.Any("error", err))
		} else {
			c.regForest = loaded
		}
	}
}

// OnSolveEnd releases the controller at the end of a run.
func (c *Controller) OnSolveEnd() {
	// All state is in-memory and reset at the next OnSolveBegin; nothing to
	// release.
}

// OnNodeEvent processes one branched or pruned node event and returns the
// restart decision. nchildren must be nonnegative; the solver reporting a
// negative child count is a programming error.
func (c *Controller) OnNodeEvent(ctx context.Context, node engine.Node, kind engine.EventKind, nchildren int) Decision {
	if nchildren < 0 {
		panic(fmt.Sprintf("restart controller: negative child count %d", nchildren))
	}

	isLeaf := nchildren == 0

	c.treeData.Update(node, nchildren)

	for _, ts := range c.allSeries {
		ts.Update(c.treeData, isLeaf)
	}

	c.metrics.RecordEvent(ctx, kindLabel(kind), c.treeData.SSG().Value(), c.treeData.Progress())

	c.maybeReport()

	if kind != engine.EventPQPruned {
		return Continue
	}

	c.updateSearchProgress(node)
	c.backtrack.AddLeaf(node)

	if !c.checkConditions() {
		return Continue
	}

	if !c.shouldRestart() {
		c.restartHitCounter = 0

		return Continue
	}

	c.restartHitCounter++
	if c.restartHitCounter < c.hitCounterLimit {
		return Continue
	}

	c.nRestartsPerformed++
	c.metrics.RecordRestart(ctx)

	c.logger.Info("restart requested",
		slog.Int("restart", c.nRestartsPerformed),
		slog.Int64("nodes", c.solver.NNodes()),
		slog.Float64("progress", c.treeData.Progress()))

	c.solver.RequestRestart()

	return Restart
}

func kindLabel(kind engine.EventKind) string {
	if kind == engine.EventPQPruned {
		return "pq_pruned"
	}

	return "branched"
}

// maybeReport emits a periodic report once the progress has advanced by at
// least 1/NReports since the last one.
func (c *Controller) maybeReport() {
	if !c.printReports || c.solver.Solved() {
		return
	}

	if c.treeData.Progress() < c.progLastReport+1.0/float64(NReports) {
		return
	}

	c.nReports++
	c.logger.Info("tree size estimation report", slog.Int("report", c.nReports))
	c.logger.Info(c.Report(c.nReports))

	c.progLastReport = float64(int(c.treeData.Progress()*NReports)) / float64(NReports)
}

// updateSearchProgress pushes a new (progress, nodes) sample for the current
// leaf according to the configured progress measure.
func (c *Controller) updateSearchProgress(leaf engine.Node) {
	var current float64

	switch c.progressMeasure {
	case ProgressGap:
		current = 1.0 - math.Min(c.solver.Gap(), 1.0)
	case ProgressUniform:
		current = c.window.CurrentProgress() + math.Pow(0.5, float64(leaf.Depth()))
	case ProgressRatio:
		current = c.window.CurrentProgress() + c.solver.NodeProbability(leaf)
	case ProgressFixed:
		current = c.window.CurrentProgress() + leaf.FixedProbability()
	}

	c.window.AddSample(current, float64(c.solver.NNodes()))
}

// checkConditions gates the restart policy on the restart limit and the
// minimum node count.
func (c *Controller) checkConditions() bool {
	if c.restartLimit != -1 && c.nRestartsPerformed >= c.restartLimit {
		return false
	}

	var nnodes int64
	if c.countOnlyLeaves {
		nnodes = c.solver.NFeasibleLeaves() + c.solver.NInfeasibleLeaves() + c.solver.NObjlimLeaves()
	} else {
		nnodes = c.solver.NNodes()
	}

	return nnodes >= c.minNodes
}

// forecastRemaining predicts the number of remaining nodes with the
// configured forecaster, or a negative value when no forecast is available.
func (c *Controller) forecastRemaining() float64 {
	switch c.forecastMethod {
	case ForecastBacktrack:
		return math.Max(0.0, c.backtrack.Estimate()-float64(c.solver.NNodes()))
	case ForecastLinear:
		return c.window.ForecastLinear(1.0)
	case ForecastWindow:
		return c.window.ForecastWindow(1.0, c.windowSize, c.useAcceleration)
	}

	return -1.0
}

// shouldRestart evaluates the configured restart policy.
func (c *Controller) shouldRestart() bool {
	switch c.policy {
	case PolicyAlways:
		return true
	case PolicyNever:
		return false
	case PolicyEstimation:
		return c.shouldRestartEstimation()
	case PolicyProgress:
		return c.shouldRestartProgress()
	}

	return false
}

// shouldRestartEstimation consults the solver's external tree size estimate.
func (c *Controller) shouldRestartEstimation() bool {
	var estimation float64

	switch c.estimationMethod {
	case EstimationTreeSize:
		estimation = c.solver.EstimateTreeSizeTotal()
	case EstimationProfile:
		estimation = c.solver.EstimateTreeProfile()
	}

	if estimation < 0.0 {
		return false
	}

	return c.exceedsFactor(estimation)
}

// shouldRestartProgress forecasts the remaining nodes from the search
// progress samples.
func (c *Controller) shouldRestartProgress() bool {
	remaining := c.forecastRemaining()
	if remaining < 0.0 {
		return false
	}

	return c.exceedsFactor(float64(c.solver.NNodes()) + remaining)
}

// exceedsFactor reports whether the estimate exceeds the current node count
// by the configured factor. An undefined estimate never exceeds.
func (c *Controller) exceedsFactor(estimation float64) bool {
	nnodes := float64(c.solver.NNodes())

	if estimation > nnodes*c.estimationFactor {
		c.logger.Info("tree size estimate exceeds current nodes",
			slog.Float64("estimation", estimation),
			slog.Int64("nodes", c.solver.NNodes()),
			slog.Float64("factor", estimation/nnodes))

		return true
	}

	return false
}
