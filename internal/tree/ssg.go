// Package tree maintains the aggregate search tree statistics the restart
// controller feeds on: node counters, weighted progress, and the subtree sum
// gap (SSG). The SSG partitions the open nodes into subtrees at every
// incumbent improvement and tracks the scaled sum of the best gap per
// subtree, updated incrementally on branch and prune events.
package tree

import (
	"math"

	"github.com/branchbound/treewatch/internal/engine"
	"github.com/branchbound/treewatch/pkg/alg/pqueue"
	"github.com/branchbound/treewatch/pkg/numeric"
)

// scalingGuard bounds the denominator when the scaling factor is refreshed
// after a split.
const scalingGuard = 1e-6

// nodeInfo is the SSG-owned record for one open node. The node handle is
// non-owning; the solver guarantees it stays valid until the corresponding
// removal event.
type nodeInfo struct {
	node       engine.Node
	lowerBound float64
	subtreeIdx int
	pos        int
}

// SubtreeSumGap tracks the scaled sum, over subtrees, of the gap at each
// subtree's best open node. With a single subtree it degenerates to the
// global gap.
type SubtreeSumGap struct {
	solver        engine.Solver
	nodes         map[engine.Node]*nodeInfo
	queues        []*pqueue.Queue[*nodeInfo]
	value         float64
	scalingFactor float64
	nsubtrees     int
	pbLastSplit   float64
}

// NewSubtreeSumGap creates an SSG observing the given solver.
func NewSubtreeSumGap(solver engine.Solver) *SubtreeSumGap {
	ssg := &SubtreeSumGap{
		solver: solver,
		nodes:  make(map[engine.Node]*nodeInfo),
	}
	ssg.Reset()

	return ssg
}

// Reset clears all subtrees and restores the initial state of a fresh search.
func (ssg *SubtreeSumGap) Reset() {
	clear(ssg.nodes)

	ssg.queues = nil
	ssg.value = 1.0
	ssg.scalingFactor = 1.0
	ssg.nsubtrees = 1
	ssg.pbLastSplit = numeric.Invalid
}

// Value returns the current SSG value.
func (ssg *SubtreeSumGap) Value() float64 {
	return ssg.value
}

// NSubtrees returns the current number of tracked subtrees.
func (ssg *SubtreeSumGap) NSubtrees() int {
	return ssg.nsubtrees
}

// PrimalBoundAtLastSplit returns the primal bound recorded at the last split,
// or numeric.Invalid before the first split.
func (ssg *SubtreeSumGap) PrimalBoundAtLastSplit() float64 {
	return ssg.pbLastSplit
}

// gap computes the normalized distance between the given transformed-space
// lower bound and the current primal bound, in [0, 1].
func (ssg *SubtreeSumGap) gap(lowerBound float64) float64 {
	if numeric.IsInfinite(lowerBound) {
		return 0.0
	}

	if numeric.IsInfinite(ssg.solver.UpperBound()) {
		return 1.0
	}

	db := ssg.solver.Retransform(lowerBound)
	pb := ssg.solver.PrimalBound()

	if numeric.EQ(db, pb) {
		return 0.0
	}

	gap := math.Abs(pb-db) / math.Max(math.Abs(pb), math.Abs(db))

	return math.Min(gap, 1.0)
}

// storeNode labels node with the given subtree index and inserts it into the
// subtree's queue, creating the queue on first use. The node must not be
// tracked already.
func (ssg *SubtreeSumGap) storeNode(node engine.Node, subtreeIdx int) {
	info := &nodeInfo{
		node:       node,
		lowerBound: node.LowerBound(),
		subtreeIdx: subtreeIdx,
		pos:        -1,
	}

	ssg.nodes[node] = info

	if ssg.queues[subtreeIdx] == nil {
		ssg.queues[subtreeIdx] = pqueue.New(
			5,
			func(a, b *nodeInfo) bool { return a.lowerBound < b.lowerBound },
			func(elem *nodeInfo, pos int) { elem.pos = pos },
		)
	}

	ssg.queues[subtreeIdx].Insert(info)
}

// Split makes every currently open node the root of its own tracked subtree.
// The open nodes are labeled in a fixed order: children, siblings, leaves,
// and finally the focus node when includeFocusNode is set.
func (ssg *SubtreeSumGap) Split(includeFocusNode bool) {
	clear(ssg.nodes)
	ssg.queues = nil

	children, siblings, leaves := ssg.solver.OpenNodes()

	ssg.nsubtrees = len(children) + len(siblings) + len(leaves)
	if includeFocusNode {
		ssg.nsubtrees++
	}

	if ssg.nsubtrees <= 1 {
		return
	}

	ssg.queues = make([]*pqueue.Queue[*nodeInfo], ssg.nsubtrees)

	label := 0

	for _, group := range [][]engine.Node{children, siblings, leaves} {
		for _, node := range group {
			ssg.storeNode(node, label)
			label++
		}
	}

	if includeFocusNode {
		ssg.storeNode(ssg.solver.FocusNode(), label)
	}
}

// RemoveNode drops a node from its subtree. Removing the head of a queue
// shifts the SSG value by the scaled gap difference to the new head; removing
// any other element leaves the value unchanged. Unknown nodes are ignored.
func (ssg *SubtreeSumGap) RemoveNode(node engine.Node) {
	if ssg.nsubtrees <= 1 {
		return
	}

	info, ok := ssg.nodes[node]
	if !ok {
		return
	}

	queue := ssg.queues[info.subtreeIdx]
	pos := info.pos

	queue.DeleteAt(pos)

	if pos == 0 {
		oldGap := ssg.gap(info.lowerBound)

		newLowerBound := math.Inf(1)
		if head, hasHead := queue.Peek(); hasHead {
			newLowerBound = head.lowerBound
		}

		newGap := ssg.gap(newLowerBound)
		ssg.value += ssg.scalingFactor * (newGap - oldGap)
	}

	delete(ssg.nodes, node)
}

// insertChildren labels the focus node's children with the focus node's
// subtree index and retires the focus node itself.
func (ssg *SubtreeSumGap) insertChildren() {
	if ssg.nsubtrees == 1 {
		return
	}

	children := ssg.solver.Children()
	if len(children) == 0 {
		return
	}

	focus := ssg.solver.FocusNode()

	focusInfo, ok := ssg.nodes[focus]
	if !ok {
		return
	}

	for _, child := range children {
		ssg.storeNode(child, focusInfo.subtreeIdx)
	}

	ssg.RemoveNode(focus)
}

// Recompute recalculates the SSG value from the queue heads in linear effort
// in the number of subtrees. When updateScaling is set, the scaling factor is
// first refreshed so that the new gap sum reproduces the previous value.
func (ssg *SubtreeSumGap) Recompute(updateScaling bool) {
	if numeric.IsInfinite(ssg.solver.UpperBound()) {
		ssg.value = 1.0

		return
	}

	if ssg.nsubtrees == 1 {
		ssg.value = ssg.gap(ssg.solver.LowerBound())

		return
	}

	gapSum := 0.0

	for _, queue := range ssg.queues {
		head, ok := queue.Peek()
		if !ok || numeric.IsInfinite(head.lowerBound) {
			continue
		}

		gapSum += ssg.gap(head.lowerBound)
	}

	if updateScaling {
		ssg.scalingFactor = ssg.value / math.Max(gapSum, scalingGuard)
	}

	ssg.value = ssg.scalingFactor * gapSum
}

// Update processes a node event. A changed primal bound triggers a split of
// the open nodes into fresh subtrees; otherwise new children inherit the
// focus node's label, and leaf events retire their node.
func (ssg *SubtreeSumGap) Update(node engine.Node, nchildren int) {
	if ssg.solver.Solved() {
		ssg.value = 0.0

		return
	}

	if !numeric.IsInfinite(ssg.solver.UpperBound()) && !numeric.EQ(ssg.solver.PrimalBound(), ssg.pbLastSplit) {
		focusIsUnbranched := ssg.solver.FocusNode() != nil &&
			nchildren == 0 &&
			!ssg.solver.WasFocusNodeBranched()

		ssg.Split(focusIsUnbranched)

		ssg.pbLastSplit = ssg.solver.PrimalBound()

		ssg.Recompute(true)
	} else if ssg.nsubtrees > 1 && nchildren > 0 {
		ssg.insertChildren()
	}

	if nchildren == 0 {
		ssg.RemoveNode(node)
	}
}
