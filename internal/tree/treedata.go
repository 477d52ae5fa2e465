package tree

import (
	"math"

	"github.com/branchbound/treewatch/internal/engine"
)

// Data aggregates node counters and the weighted progress of the search. A
// fresh tree consists of the open root node only. Progress sums 2^-depth over
// the visited leaves and reaches 1 exactly when a binary tree is fully
// explored.
type Data struct {
	solver   engine.Solver
	ssg      *SubtreeSumGap
	nnodes   int64
	nopen    int64
	ninner   int64
	nleaves  int64
	nvisited int64
	progress float64
}

// NewData creates tree data observing the given solver.
func NewData(solver engine.Solver) *Data {
	td := &Data{
		solver: solver,
		ssg:    NewSubtreeSumGap(solver),
	}
	td.Reset()

	return td
}

// Reset restores the state of a fresh tree with a single open root node.
func (td *Data) Reset() {
	td.ninner = 0
	td.nleaves = 0
	td.nvisited = 0
	td.progress = 0.0

	td.nnodes = 1
	td.nopen = 1

	td.ssg.Reset()
}

// Update accounts for a processed node and its children, then forwards the
// event to the SSG unless the solver is draining its queue for a restart.
func (td *Data) Update(node engine.Node, nchildren int) {
	td.nvisited++
	td.nopen--

	if nchildren == 0 {
		td.nleaves++
		td.progress += math.Pow(0.5, float64(node.Depth()))
	} else {
		td.nnodes += int64(nchildren)
		td.nopen += int64(nchildren)
		td.ninner++
	}

	if !td.solver.InRestart() {
		td.ssg.Update(node, nchildren)
	}
}

// SSG returns the embedded subtree sum gap.
func (td *Data) SSG() *SubtreeSumGap {
	return td.ssg
}

// NNodes returns the total number of tree nodes, open and closed.
func (td *Data) NNodes() int64 { return td.nnodes }

// NOpen returns the number of open nodes.
func (td *Data) NOpen() int64 { return td.nopen }

// NInner returns the number of branched inner nodes.
func (td *Data) NInner() int64 { return td.ninner }

// NLeaves returns the number of final leaf nodes.
func (td *Data) NLeaves() int64 { return td.nleaves }

// NVisited returns the number of visited nodes, inner plus leaves.
func (td *Data) NVisited() int64 { return td.nvisited }

// Progress returns the weighted leaf progress in [0, 1].
func (td *Data) Progress() float64 { return td.progress }
