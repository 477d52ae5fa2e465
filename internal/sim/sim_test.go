package sim_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchbound/treewatch/internal/engine"
	"github.com/branchbound/treewatch/internal/restart"
	"github.com/branchbound/treewatch/internal/sim"
	"github.com/branchbound/treewatch/pkg/config"
	"github.com/branchbound/treewatch/pkg/observability"
)

func noopHandler(engine.Node, engine.EventKind, int) {}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.NodeLimit = 5000

	first := sim.New(opts)
	second := sim.New(opts)

	assert.Equal(t, first.Run(noopHandler), second.Run(noopHandler))
	assert.InDelta(t, first.PrimalBound(), second.PrimalBound(), 0)
	assert.Equal(t, first.NFeasibleLeaves(), second.NFeasibleLeaves())
	assert.Equal(t, first.NInfeasibleLeaves(), second.NInfeasibleLeaves())
	assert.Equal(t, first.NObjlimLeaves(), second.NObjlimLeaves())
}

func TestRunStopsAtNodeLimit(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.MaxDepth = 30
	opts.NodeLimit = 1000

	solver := sim.New(opts)

	assert.Equal(t, int64(1000), solver.Run(noopHandler))
	assert.Equal(t, int64(1000), solver.NNodes())
	assert.False(t, solver.Solved())
}

func TestRunExhaustsSmallTree(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.MaxDepth = 4
	opts.NodeLimit = 0

	solver := sim.New(opts)
	nprocessed := solver.Run(noopHandler)

	assert.True(t, solver.Solved())
	assert.LessOrEqual(t, nprocessed, int64(31))
	assert.Positive(t, solver.NFeasibleLeaves()+solver.NInfeasibleLeaves()+solver.NObjlimLeaves())
}

func TestEventCountsMatchCounters(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.MaxDepth = 8
	opts.NodeLimit = 0

	solver := sim.New(opts)

	var branched, pruned int64

	solver.Run(func(node engine.Node, kind engine.EventKind, nchildren int) {
		require.NotNil(t, node)

		if kind.IsLeaf() {
			require.Zero(t, nchildren)
			pruned++
		} else {
			require.Equal(t, 2, nchildren)
			branched++
		}
	})

	assert.Equal(t, solver.NNodes(), branched+pruned)
	assert.Equal(t, pruned, solver.NFeasibleLeaves()+solver.NInfeasibleLeaves()+solver.NObjlimLeaves())
}

func TestFocusOnlySetDuringBranchedEvents(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.MaxDepth = 6
	opts.NodeLimit = 0

	solver := sim.New(opts)

	solver.Run(func(node engine.Node, kind engine.EventKind, nchildren int) {
		if kind.IsLeaf() {
			assert.Nil(t, solver.FocusNode())
			assert.Empty(t, solver.Children())
		} else {
			assert.Equal(t, node, solver.FocusNode())
			assert.Len(t, solver.Children(), nchildren)
		}
	})
}

func TestPrimalBoundNeverIncreases(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.MaxDepth = 10
	opts.NodeLimit = 0
	opts.IncumbentChance = 0.5

	solver := sim.New(opts)
	previous := solver.PrimalBound()

	solver.Run(func(engine.Node, engine.EventKind, int) {
		assert.LessOrEqual(t, solver.PrimalBound(), previous)
		previous = solver.PrimalBound()
	})
}

func TestRequestRestartStopsRun(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.MaxDepth = 30
	opts.NodeLimit = 0

	solver := sim.New(opts)

	var events int64

	nprocessed := solver.Run(func(engine.Node, engine.EventKind, int) {
		events++
		if events == 50 {
			solver.RequestRestart()
		}
	})

	assert.True(t, solver.RestartRequested())
	assert.Equal(t, int64(50), nprocessed)
	assert.False(t, solver.Solved())
}

func runController(t *testing.T, solver *sim.Solver, cfg config.Config) *restart.Controller {
	t.Helper()

	logger := observability.NewLogger(io.Discard, "info", observability.FormatText)

	ctrl, err := restart.New(solver, cfg, restart.WithLogger(logger))
	require.NoError(t, err)

	ctrl.OnSolveBegin()
	defer ctrl.OnSolveEnd()

	ctx := context.Background()

	solver.Run(func(node engine.Node, kind engine.EventKind, nchildren int) {
		ctrl.OnNodeEvent(ctx, node, kind, nchildren)
	})

	return ctrl
}

func TestControllerObservesFullRun(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.NodeLimit = 5000

	solver := sim.New(opts)
	ctrl := runController(t, solver, config.Default())

	td := ctrl.TreeData()

	assert.Equal(t, td.NNodes(), td.NVisited()+td.NOpen())
	assert.Equal(t, td.NVisited(), td.NInner()+td.NLeaves())
	assert.GreaterOrEqual(t, td.Progress(), 0.0)
	assert.LessOrEqual(t, td.Progress(), 1.0)
	assert.GreaterOrEqual(t, td.SSG().Value(), 0.0)
	assert.Equal(t, 0, ctrl.NRestartsPerformed())
	assert.False(t, solver.RestartRequested())

	assert.GreaterOrEqual(t, ctrl.TreeSizeEstimation(), float64(td.NNodes()))
}

func TestControllerRestartInterruptsRun(t *testing.T) {
	t.Parallel()

	opts := sim.DefaultOptions()
	opts.NodeLimit = 0

	cfg := config.Default()
	cfg.Policy = "a"
	cfg.MinNodes = 100
	cfg.HitCounterLimit = 10

	solver := sim.New(opts)
	ctrl := runController(t, solver, cfg)

	assert.True(t, solver.RestartRequested())
	assert.Equal(t, 1, ctrl.NRestartsPerformed())
	assert.GreaterOrEqual(t, solver.NNodes(), int64(100))
	assert.False(t, solver.Solved())
}
