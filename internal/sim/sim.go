// Package sim provides a deterministic synthetic branch-and-bound engine
// implementing the solver interfaces. It explores a randomized binary
// minimization tree best-first, occasionally finding incumbents, and drives a
// caller-supplied event handler exactly like a real solver would. The CLI and
// the integration tests run the restart controller against it.
package sim

import (
	"math"
	"math/rand/v2"

	"github.com/branchbound/treewatch/internal/engine"
	"github.com/branchbound/treewatch/pkg/numeric"
)

// Options configure a simulated solve.
type Options struct {
	// Seed makes the run deterministic.
	Seed uint64

	// MaxDepth bounds the tree depth; nodes at MaxDepth become leaves.
	MaxDepth int

	// NodeLimit stops the run after this many processed nodes (0 = none).
	NodeLimit int64

	// IncumbentChance is the probability that a max-depth leaf improves the
	// primal bound.
	IncumbentChance float64

	// BoundStep scales the random lower bound increase per child.
	BoundStep float64
}

// DefaultOptions returns a medium-sized reproducible instance.
func DefaultOptions() Options {
	return Options{
		Seed:            1,
		MaxDepth:        14,
		NodeLimit:       50_000,
		IncumbentChance: 0.1,
		BoundStep:       1.0,
	}
}

// Node is one simulated search tree node.
type Node struct {
	parent     *Node
	lowerBound float64
	fixedProb  float64
	depth      int
	id         int64
}

// Depth returns the node's depth, 0 at the root.
func (n *Node) Depth() int { return n.depth }

// LowerBound returns the node's lower bound.
func (n *Node) LowerBound() float64 { return n.lowerBound }

// Parent returns the parent node, or nil at the root.
func (n *Node) Parent() engine.Node {
	if n.parent == nil {
		return nil
	}

	return n.parent
}

// FixedProbability returns the node's sampling probability, halved per level.
func (n *Node) FixedProbability() float64 { return n.fixedProb }

// Solver is the synthetic engine. It satisfies engine.Solver.
type Solver struct {
	rng  *rand.Rand
	opts Options

	open     []*Node
	children []*Node
	focus    *Node

	primalBound float64
	nextID      int64

	nprocessed        int64
	nfeasibleLeaves   int64
	ninfeasibleLeaves int64
	nobjlimLeaves     int64

	restartRequested bool
	inRestart        bool
	solved           bool

	// External estimates consulted by the estimation policy; negative means
	// unavailable.
	treeSizeEstimate float64
	profileEstimate  float64
}

// New creates a simulated solver.
func New(opts Options) *Solver {
	s := &Solver{
		rng:              rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		opts:             opts,
		primalBound:      math.Inf(1),
		treeSizeEstimate: -1.0,
		profileEstimate:  -1.0,
	}

	root := &Node{lowerBound: 0.0, fixedProb: 1.0, id: s.nextID}
	s.nextID++
	s.open = append(s.open, root)

	return s
}

// SetTreeSizeEstimate fixes the probability-based total size estimate.
func (s *Solver) SetTreeSizeEstimate(estimate float64) { s.treeSizeEstimate = estimate }

// SetProfileEstimate fixes the profile-based total size estimate.
func (s *Solver) SetProfileEstimate(estimate float64) { s.profileEstimate = estimate }

// PrimalBound returns the incumbent objective, or +Inf without an incumbent.
func (s *Solver) PrimalBound() float64 { return s.primalBound }

// DualBound returns the global lower bound.
func (s *Solver) DualBound() float64 { return s.LowerBound() }

// UpperBound returns the cutoff bound; the simulation has no transformation,
// so it equals the primal bound.
func (s *Solver) UpperBound() float64 { return s.primalBound }

// LowerBound returns the minimum bound over the open nodes, or the primal
// bound once the tree is exhausted.
func (s *Solver) LowerBound() float64 {
	if len(s.open) == 0 && s.focus == nil {
		return s.primalBound
	}

	lb := math.Inf(1)
	if s.focus != nil {
		lb = s.focus.lowerBound
	}

	for _, n := range s.open {
		lb = math.Min(lb, n.lowerBound)
	}

	for _, n := range s.children {
		lb = math.Min(lb, n.lowerBound)
	}

	return lb
}

// Gap returns the relative primal-dual gap in [0, 1].
func (s *Solver) Gap() float64 {
	pb := s.PrimalBound()
	db := s.DualBound()

	if numeric.IsInfinite(pb) || numeric.IsInfinite(db) {
		return 1.0
	}

	if numeric.EQ(pb, db) {
		return 0.0
	}

	denom := math.Max(math.Abs(pb), math.Abs(db))
	if denom == 0.0 {
		return 0.0
	}

	return math.Min(math.Abs(pb-db)/denom, 1.0)
}

// Retransform maps transformed bounds to the original space; the simulation
// uses the identity.
func (s *Solver) Retransform(bound float64) float64 { return bound }

// NNodes returns the number of processed nodes.
func (s *Solver) NNodes() int64 { return s.nprocessed }

// NFeasibleLeaves returns the number of leaves that produced an incumbent.
func (s *Solver) NFeasibleLeaves() int64 { return s.nfeasibleLeaves }

// NInfeasibleLeaves returns the number of infeasible leaves.
func (s *Solver) NInfeasibleLeaves() int64 { return s.ninfeasibleLeaves }

// NObjlimLeaves returns the number of leaves pruned by bound.
func (s *Solver) NObjlimLeaves() int64 { return s.nobjlimLeaves }

// FocusNode returns the node being branched, or nil during leaf events.
func (s *Solver) FocusNode() engine.Node {
	if s.focus == nil {
		return nil
	}

	return s.focus
}

// Children returns the children created for the focus node.
func (s *Solver) Children() []engine.Node {
	children := make([]engine.Node, len(s.children))
	for i, n := range s.children {
		children[i] = n
	}

	return children
}

// OpenNodes returns the open nodes grouped as children, siblings, and queue
// leaves.
func (s *Solver) OpenNodes() (children, siblings, leaves []engine.Node) {
	leaves = make([]engine.Node, len(s.open))
	for i, n := range s.open {
		leaves[i] = n
	}

	return s.Children(), nil, leaves
}

// WasFocusNodeBranched reports whether the focus node already branched.
func (s *Solver) WasFocusNodeBranched() bool {
	return s.focus != nil && len(s.children) > 0
}

// NodeProbability returns the ratio-based reach probability; the simulated
// tree is binary, so it matches the fixed probability.
func (s *Solver) NodeProbability(node engine.Node) float64 {
	return node.FixedProbability()
}

// InRestart reports whether a restart request is being honored.
func (s *Solver) InRestart() bool { return s.inRestart }

// Solved reports whether the instance is solved.
func (s *Solver) Solved() bool { return s.solved }

// EstimateTreeSizeTotal returns the configured probability-based estimate.
func (s *Solver) EstimateTreeSizeTotal() float64 { return s.treeSizeEstimate }

// EstimateTreeProfile returns the configured profile-based estimate.
func (s *Solver) EstimateTreeProfile() float64 { return s.profileEstimate }

// RequestRestart records the restart request; the run loop honors it at the
// next event boundary.
func (s *Solver) RequestRestart() { s.restartRequested = true }

// RestartRequested reports whether a restart was requested.
func (s *Solver) RestartRequested() bool { return s.restartRequested }

// Handler consumes one node event and reports whether to continue.
type Handler func(node engine.Node, kind engine.EventKind, nchildren int)

// popBest removes the open node with the smallest lower bound.
func (s *Solver) popBest() *Node {
	best := 0
	for i, n := range s.open {
		if n.lowerBound < s.open[best].lowerBound {
			best = i
		}
	}

	node := s.open[best]
	s.open = append(s.open[:best], s.open[best+1:]...)

	return node
}

// branch creates two children of node with randomly increased bounds.
func (s *Solver) branch(node *Node) {
	s.children = s.children[:0]

	for range 2 {
		child := &Node{
			parent:     node,
			lowerBound: node.lowerBound + s.rng.Float64()*s.opts.BoundStep,
			fixedProb:  node.fixedProb / 2.0,
			depth:      node.depth + 1,
			id:         s.nextID,
		}
		s.nextID++
		s.children = append(s.children, child)
	}
}

// Step processes the next open node and fires the corresponding event.
// It returns false when no open node remains.
func (s *Solver) Step(handler Handler) bool {
	if len(s.open) == 0 {
		s.solved = true

		return false
	}

	node := s.popBest()
	s.nprocessed++

	cutoff := !numeric.IsInfinite(s.primalBound) && node.lowerBound >= s.primalBound

	switch {
	case cutoff:
		s.nobjlimLeaves++
		s.leafEvent(node, handler)
	case node.depth >= s.opts.MaxDepth:
		if s.rng.Float64() < s.opts.IncumbentChance {
			s.primalBound = math.Min(s.primalBound, node.lowerBound)
			s.nfeasibleLeaves++
		} else {
			s.ninfeasibleLeaves++
		}

		s.leafEvent(node, handler)
	default:
		s.focus = node
		s.branch(node)

		handler(node, engine.EventBranched, len(s.children))

		s.open = append(s.open, s.children...)
		s.children = s.children[:0]
		s.focus = nil
	}

	if len(s.open) == 0 {
		s.solved = true
	}

	return true
}

// leafEvent fires a pruned-leaf event for node.
func (s *Solver) leafEvent(node *Node, handler Handler) {
	s.focus = nil
	s.children = s.children[:0]

	handler(node, engine.EventPQPruned, 0)
}

// Run processes nodes until the tree is exhausted, the node limit is hit, or
// a restart is requested. It returns the number of processed nodes.
func (s *Solver) Run(handler Handler) int64 {
	for s.Step(handler) {
		if s.restartRequested {
			break
		}

		if s.opts.NodeLimit > 0 && s.nprocessed >= s.opts.NodeLimit {
			break
		}
	}

	return s.nprocessed
}
