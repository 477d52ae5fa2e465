// Package engine declares the interfaces through which the restart controller
// observes a branch-and-bound solver. The solver owns its nodes and all
// bounds; the controller only reads them through these accessors and signals
// restarts back through the Solver.
package engine

// EventKind classifies the node events the controller receives.
type EventKind int

// Node event kinds.
const (
	// EventBranched is emitted when the focus node has been branched.
	EventBranched EventKind = iota
	// EventPQPruned is emitted when an infeasible leaf surfaces from the
	// solver's priority queue.
	EventPQPruned
)

// IsLeaf reports whether the event marks a final leaf.
func (k EventKind) IsLeaf() bool {
	return k == EventPQPruned
}

// Node is an opaque handle to a search tree node. Implementations must be
// comparable so nodes can serve as map keys. The handle stays valid at least
// until the solver reports the node's removal event.
type Node interface {
	// Depth returns the node's depth in the tree, 0 at the root.
	Depth() int

	// LowerBound returns the node's lower bound in the transformed space.
	// Lower bounds are nondecreasing along root-to-leaf paths.
	LowerBound() float64

	// Parent returns the parent node, or nil at the root.
	Parent() Node

	// FixedProbability returns the solver-assigned sampling probability of
	// reaching this node, used by the fixed progress measure.
	FixedProbability() float64
}

// Solver is the set of pure queries and the restart signal the controller
// exchanges with the branch-and-bound engine. All queries are cheap reads of
// engine state; none may block.
type Solver interface {
	// PrimalBound returns the objective value of the incumbent in the
	// original space, or an infinite value when no incumbent exists.
	PrimalBound() float64

	// DualBound returns the global dual bound in the original space.
	DualBound() float64

	// UpperBound returns the cutoff bound in the transformed space.
	UpperBound() float64

	// LowerBound returns the global lower bound in the transformed space.
	LowerBound() float64

	// Gap returns the solver's current relative primal-dual gap.
	Gap() float64

	// Retransform maps a transformed-space bound into the original space.
	Retransform(bound float64) float64

	// NNodes returns the total number of nodes processed so far.
	NNodes() int64

	// NFeasibleLeaves, NInfeasibleLeaves, and NObjlimLeaves return leaf
	// counts by the reason the leaf was closed.
	NFeasibleLeaves() int64
	NInfeasibleLeaves() int64
	NObjlimLeaves() int64

	// FocusNode returns the node currently being processed, or nil.
	FocusNode() Node

	// Children returns the children created for the focus node.
	Children() []Node

	// OpenNodes returns the current open nodes grouped as children,
	// siblings, and leaves of the solver's node queue.
	OpenNodes() (children, siblings, leaves []Node)

	// WasFocusNodeBranched reports whether the focus node has already been
	// branched during the current event.
	WasFocusNodeBranched() bool

	// NodeProbability returns the ratio-based probability of reaching node.
	NodeProbability(node Node) float64

	// InRestart reports whether the solver is draining its queue to restart.
	InRestart() bool

	// Solved reports whether the instance is solved.
	Solved() bool

	// EstimateTreeSizeTotal returns the solver's probability-based total
	// tree size estimate, or a negative value when unavailable.
	EstimateTreeSizeTotal() float64

	// EstimateTreeProfile returns the solver's profile-based total tree
	// size estimate, or a negative value when unavailable.
	EstimateTreeProfile() float64

	// RequestRestart asks the solver to abort the current run and restart
	// from the root.
	RequestRestart()
}
