package restart_test

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchbound/treewatch/internal/engine"
	"github.com/branchbound/treewatch/internal/restart"
	"github.com/branchbound/treewatch/pkg/config"
	"github.com/branchbound/treewatch/pkg/observability"
)

const delta = 1e-9

type stubNode struct {
	parent *stubNode
	lb     float64
	prob   float64
	depth  int
}

func (n *stubNode) Depth() int          { return n.depth }
func (n *stubNode) LowerBound() float64 { return n.lb }

func (n *stubNode) Parent() engine.Node {
	if n.parent == nil {
		return nil
	}

	return n.parent
}

func (n *stubNode) FixedProbability() float64 { return n.prob }

type stubSolver struct {
	primal           float64
	lower            float64
	nnodes           int64
	nfeasible        int64
	ninfeasible      int64
	nobjlim          int64
	estimateTotal    float64
	estimateProfile  float64
	solved           bool
	inRestart        bool
	restartRequested bool
}

func newStubSolver() *stubSolver {
	return &stubSolver{
		primal:          math.Inf(1),
		lower:           math.Inf(1),
		nnodes:          100,
		estimateTotal:   -1.0,
		estimateProfile: -1.0,
	}
}

func (s *stubSolver) PrimalBound() float64              { return s.primal }
func (s *stubSolver) DualBound() float64                { return s.lower }
func (s *stubSolver) UpperBound() float64               { return s.primal }
func (s *stubSolver) LowerBound() float64               { return s.lower }
func (s *stubSolver) Gap() float64                      { return 1.0 }
func (s *stubSolver) Retransform(bound float64) float64 { return bound }
func (s *stubSolver) NNodes() int64                     { return s.nnodes }
func (s *stubSolver) NFeasibleLeaves() int64            { return s.nfeasible }
func (s *stubSolver) NInfeasibleLeaves() int64          { return s.ninfeasible }
func (s *stubSolver) NObjlimLeaves() int64              { return s.nobjlim }
func (s *stubSolver) FocusNode() engine.Node            { return nil }
func (s *stubSolver) Children() []engine.Node           { return nil }

func (s *stubSolver) OpenNodes() (children, siblings, leaves []engine.Node) {
	return nil, nil, nil
}

func (s *stubSolver) WasFocusNodeBranched() bool { return false }

func (s *stubSolver) NodeProbability(node engine.Node) float64 {
	return math.Pow(0.5, float64(node.Depth()))
}

func (s *stubSolver) InRestart() bool                { return s.inRestart }
func (s *stubSolver) Solved() bool                   { return s.solved }
func (s *stubSolver) EstimateTreeSizeTotal() float64 { return s.estimateTotal }
func (s *stubSolver) EstimateTreeProfile() float64   { return s.estimateProfile }
func (s *stubSolver) RequestRestart()                { s.restartRequested = true }

func quietLogger() restart.Option {
	return restart.WithLogger(observability.NewLogger(io.Discard, "info", observability.FormatText))
}

func newController(t *testing.T, solver engine.Solver, cfg config.Config) *restart.Controller {
	t.Helper()

	ctrl, err := restart.New(solver, cfg, quietLogger())
	require.NoError(t, err)

	ctrl.OnSolveBegin()

	return ctrl
}

func leafEvent(ctrl *restart.Controller, depth int) restart.Decision {
	node := &stubNode{depth: depth, prob: math.Pow(0.5, float64(depth))}

	return ctrl.OnNodeEvent(context.Background(), node, engine.EventPQPruned, 0)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Policy = "x"

	_, err := restart.New(newStubSolver(), cfg, quietLogger())

	assert.ErrorIs(t, err, config.ErrInvalidPolicy)
}

func TestOnNodeEventPanicsOnNegativeChildren(t *testing.T) {
	t.Parallel()

	ctrl := newController(t, newStubSolver(), config.Default())

	assert.Panics(t, func() {
		ctrl.OnNodeEvent(context.Background(), &stubNode{}, engine.EventBranched, -1)
	})
}

func TestPolicyNeverNeverRestarts(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()

	cfg := config.Default()
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 1

	ctrl := newController(t, solver, cfg)

	for range 20 {
		assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))
	}

	assert.Equal(t, 0, ctrl.NRestartsPerformed())
	assert.False(t, solver.restartRequested)
}

func TestPolicyAlwaysWaitsForHitCounter(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()

	cfg := config.Default()
	cfg.Policy = "a"
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 2

	ctrl := newController(t, solver, cfg)

	assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))
	assert.Equal(t, restart.Restart, leafEvent(ctrl, 5))
	assert.Equal(t, 1, ctrl.NRestartsPerformed())
	assert.True(t, solver.restartRequested)
}

func TestBranchedEventsNeverTriggerRestart(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()

	cfg := config.Default()
	cfg.Policy = "a"
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 1

	ctrl := newController(t, solver, cfg)

	decision := ctrl.OnNodeEvent(context.Background(), &stubNode{prob: 1.0}, engine.EventBranched, 2)

	assert.Equal(t, restart.Continue, decision)
	assert.Equal(t, 0, ctrl.NRestartsPerformed())
}

func TestRestartLimitGatesFurtherRestarts(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()

	cfg := config.Default()
	cfg.Policy = "a"
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 1
	cfg.RestartLimit = 1

	ctrl := newController(t, solver, cfg)

	assert.Equal(t, restart.Restart, leafEvent(ctrl, 5))

	for range 5 {
		assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))
	}

	assert.Equal(t, 1, ctrl.NRestartsPerformed())
}

func TestMinNodesGate(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()
	solver.nnodes = 10

	cfg := config.Default()
	cfg.Policy = "a"
	cfg.MinNodes = 1000
	cfg.HitCounterLimit = 1

	ctrl := newController(t, solver, cfg)

	assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))

	solver.nnodes = 1000

	assert.Equal(t, restart.Restart, leafEvent(ctrl, 5))
}

func TestCountOnlyLeavesGate(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()
	solver.nnodes = 100_000

	cfg := config.Default()
	cfg.Policy = "a"
	cfg.MinNodes = 10
	cfg.HitCounterLimit = 1
	cfg.CountOnlyLeaves = true

	ctrl := newController(t, solver, cfg)

	assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))

	solver.nfeasible = 4
	solver.nobjlim = 6

	assert.Equal(t, restart.Restart, leafEvent(ctrl, 5))
}

func TestEstimationPolicyComparesAgainstFactor(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()
	solver.estimateTotal = 150.0

	cfg := config.Default()
	cfg.Policy = "e"
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 1

	ctrl := newController(t, solver, cfg)

	// 150 <= 2*100: keep searching.
	assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))

	solver.estimateTotal = 500.0

	assert.Equal(t, restart.Restart, leafEvent(ctrl, 5))
}

func TestEstimationPolicyUsesProfileMethod(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()
	solver.estimateTotal = 1_000_000.0
	solver.estimateProfile = 150.0

	cfg := config.Default()
	cfg.Policy = "e"
	cfg.EstimationMethod = "p"
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 1

	ctrl := newController(t, solver, cfg)

	assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))

	solver.estimateProfile = 500.0

	assert.Equal(t, restart.Restart, leafEvent(ctrl, 5))
}

func TestHitCounterResetsOnNegativeDecision(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()
	solver.estimateTotal = 500.0

	cfg := config.Default()
	cfg.Policy = "e"
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 2

	ctrl := newController(t, solver, cfg)

	assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))

	// An unavailable estimate clears the accumulated hits.
	solver.estimateTotal = -1.0
	assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))

	solver.estimateTotal = 500.0
	assert.Equal(t, restart.Continue, leafEvent(ctrl, 5))
	assert.Equal(t, restart.Restart, leafEvent(ctrl, 5))
}

func TestProgressPolicyLinearForecast(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()

	cfg := config.Default()
	cfg.Policy = "p"
	cfg.Forecast = "l"
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 1

	ctrl := newController(t, solver, cfg)

	// A depth-10 leaf projects roughly 2047 total nodes against 100 spent.
	assert.Equal(t, restart.Restart, leafEvent(ctrl, 10))
	assert.True(t, solver.restartRequested)
}

func TestProgressPolicyWindowNeedsVelocity(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()

	cfg := config.Default()
	cfg.Policy = "p"
	cfg.Forecast = "w"
	cfg.MinNodes = 0
	cfg.HitCounterLimit = 1

	ctrl := newController(t, solver, cfg)

	// A single sample spans no resources, so the window has no velocity and
	// the forecast is undefined. An undefined forecast never restarts.
	assert.Equal(t, restart.Continue, leafEvent(ctrl, 10))
	assert.False(t, solver.restartRequested)
	assert.Equal(t, 0, ctrl.NRestartsPerformed())

	// The second sample defines the velocity: roughly 0.001 progress per
	// hundred nodes projects far beyond twice the current node count.
	solver.nnodes = 200

	assert.Equal(t, restart.Restart, leafEvent(ctrl, 10))
	assert.True(t, solver.restartRequested)
}

func TestTreeSizeEstimationNeverBelowNodeCount(t *testing.T) {
	t.Parallel()

	ctrl := newController(t, newStubSolver(), config.Default())

	// All series are silent; every term substitutes the current node count.
	assert.InDelta(t, 1.148, ctrl.TreeSizeEstimation(), delta)
	assert.GreaterOrEqual(t, ctrl.TreeSizeEstimation(), float64(ctrl.TreeData().NNodes()))
}

func TestCompletedLinearBlend(t *testing.T) {
	t.Parallel()

	ctrl := newController(t, newStubSolver(), config.Default())

	assert.Equal(t, "unknown", ctrl.CompletedString())

	leafEvent(ctrl, 1)
	leafEvent(ctrl, 1)

	// progress 1, ssg 1: 0.5828 + 0.3667 - 0.6101.
	assert.InDelta(t, 0.3394, ctrl.Completed(), delta)
	assert.Equal(t, "33.94%", ctrl.CompletedString())
}

func TestCompletedUsesRegressionForest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "forest.rfcsv")
	content := "### NTREES=1 FEATURE_DIM=9 LENGTH=3\n0,1,2,0,0.5\n1,-1,-1,-1,0.25\n2,-1,-1,-1,0.75\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := config.Default()
	cfg.RegForestFilename = path

	ctrl := newController(t, newStubSolver(), cfg)

	// Zero progress descends left at the root split.
	assert.InDelta(t, 0.25, ctrl.Completed(), delta)
}

func TestMissingForestFallsBackToLinearBlend(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.RegForestFilename = filepath.Join(t.TempDir(), "absent.rfcsv")

	ctrl := newController(t, newStubSolver(), cfg)

	leafEvent(ctrl, 1)
	leafEvent(ctrl, 1)

	assert.InDelta(t, 0.3394, ctrl.Completed(), delta)
}

func TestReportListsAllEstimators(t *testing.T) {
	t.Parallel()

	ctrl := newController(t, newStubSolver(), config.Default())

	leafEvent(ctrl, 2)

	report := ctrl.Report(3)

	assert.Contains(t, report, "Report 3")
	assert.Contains(t, report, "End of Report 3")
	assert.Contains(t, report, "Tree Data:")
	assert.Contains(t, report, "wbe")
	assert.Contains(t, report, "tree profile")

	for _, name := range []string{"gap", "progress", "leaf-frequency", "ssg", "open-nodes"} {
		assert.Contains(t, report, name)
	}
}

func TestReportWithoutFrame(t *testing.T) {
	t.Parallel()

	ctrl := newController(t, newStubSolver(), config.Default())

	report := ctrl.Report(0)

	assert.NotContains(t, report, "Report 0")
	assert.Contains(t, report, "Tree Data:")
}

func TestOnSolveBeginResetsState(t *testing.T) {
	t.Parallel()

	solver := newStubSolver()
	ctrl := newController(t, solver, config.Default())

	leafEvent(ctrl, 1)
	leafEvent(ctrl, 1)

	require.InDelta(t, 1.0, ctrl.TreeData().Progress(), delta)

	ctrl.OnSolveBegin()

	assert.InDelta(t, 0.0, ctrl.TreeData().Progress(), 0)
	assert.Equal(t, int64(1), ctrl.TreeData().NNodes())

	for _, ts := range ctrl.Series() {
		assert.Equal(t, int64(0), ts.NObs())
	}
}
