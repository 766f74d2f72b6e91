package engine

import "sync"

// Kind distinguishes the handful of node shapes the runtime understands.
// See spec.md §3 Data Model.
type Kind int

const (
	KindCell Kind = iota
	KindComputed
	KindComputedUncached
	KindReactive
	KindSubscription
	KindEffect
)

func (k Kind) String() string {
	switch k {
	case KindCell:
		return "cell"
	case KindComputed:
		return "computed"
	case KindComputedUncached:
		return "computed-uncached"
	case KindReactive:
		return "reactive"
	case KindSubscription:
		return "subscription"
	case KindEffect:
		return "effect"
	default:
		return "unknown"
	}
}

// State is a node's position in the state machine of spec.md §4.3.
type State int

const (
	StateClean State = iota
	StateStale
	StateComputing
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateStale:
		return "stale"
	case StateComputing:
		return "computing"
	case StateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Directive is the propagation decision a reactive callback, or a
// Cell.Update closure, hands back to the propagator.
type Directive int

const (
	// Propagate keeps walking the dependent graph as usual.
	Propagate Directive = iota
	// Halt stops eager propagation at the returning node; dependents stay
	// Stale and recompute lazily on next read.
	Halt
	// FlushOut marks a one-shot forced teardown propagation for the next
	// time the node stops being subscribed.
	FlushOut
)

type flags uint8

const (
	flagInHeap flags = 1 << iota
	flagDistinct
	flagFlushPending
)

// edge is an intrusive doubly-linked list node used for both a node's
// dependency set and its inverse dependent set, following the teacher's
// DependencyLink representation (one allocation per edge, O(1) unlink).
type edge struct {
	dep *Node
	sub *Node

	prevDep, nextDep *edge
	prevSub, nextSub *edge
}

// Node is a single signal in the registry: a cell, a cached or uncached
// computed, a reactive cell with an on-change callback, or a subscription /
// effect handle node. Every field touched by propagation is guarded by the
// owning Runtime's registry lock; the cached value slot has its own lock so
// concurrent readers never block on graph mutation (spec.md §5).
type Node struct {
	id   ID
	kind Kind
	rt   *Runtime

	// valueMu guards value/hasValue/generation (a counter bumped on every
	// write): the "guard / read API" lives here, independent of the registry
	// lock.
	valueMu    sync.RWMutex
	value      any
	hasValue   bool
	generation uint64

	// graph fields: guarded by rt.mu.
	state    State
	height   int
	flags    flags
	depsHead *edge
	subsHead *edge
	subCount int64

	// direct (non-transitive) subscription contribution from Subscribe/
	// Effect handles pointing straight at this node.
	directSubs int64

	// ownerRefs counts outstanding owning handles (Cell[T], Computed[T],
	// Subscription handle, ...). Constructors set it to 1 and nothing
	// decrements it; a node is dropped only by an explicit Drop.
	ownerRefs int64

	err error // sticky error from the most recent failed compute, if any

	compute  func(*Node) (any, error) // Cell: nil. Computed/Effect: required.
	onChange func(old any, subscribed bool) (any, Directive)
	teardown func(prev any)

	// version is the scheduler clock tick at which this node was last
	// recomputed (writes do not update it); used only for diagnostics.
	version Tick
}

func newNode(rt *Runtime, kind Kind) *Node {
	return &Node{
		id:   rt.ids.allocate(),
		kind: kind,
		rt:   rt,
	}
}

func (n *Node) hasFlag(f flags) bool { return n.flags&f != 0 }
func (n *Node) addFlag(f flags)      { n.flags |= f }
func (n *Node) removeFlag(f flags)   { n.flags &^= f }

// link records that sub reads dep. Must be called with rt.mu held.
func (sub *Node) link(dep *Node) *edge {
	e := &edge{dep: dep, sub: sub}
	sub.addDepEdge(e)
	dep.addSubEdge(e)

	if dep.height >= sub.height {
		sub.height = dep.height + 1
	}
	return e
}

func (n *Node) addDepEdge(e *edge) {
	if n.depsHead == nil {
		n.depsHead = e
		e.prevDep = e
		e.nextDep = nil
		return
	}
	tail := n.depsHead.prevDep
	tail.nextDep = e
	e.prevDep = tail
	e.nextDep = nil
	n.depsHead.prevDep = e
}

func (n *Node) addSubEdge(e *edge) {
	if n.subsHead == nil {
		n.subsHead = e
		e.prevSub = e
		e.nextSub = nil
		return
	}
	tail := n.subsHead.prevSub
	tail.nextSub = e
	e.prevSub = tail
	e.nextSub = nil
	n.subsHead.prevSub = e
}

func (n *Node) removeSubEdge(e *edge) {
	if e.prevSub == e {
		n.subsHead = nil
		e.prevSub, e.nextSub = nil, nil
		return
	}
	if e == n.subsHead {
		n.subsHead = e.nextSub
	} else {
		e.prevSub.nextSub = e.nextSub
	}
	if e.nextSub != nil {
		e.nextSub.prevSub = e.prevSub
	} else {
		n.subsHead.prevSub = e.prevSub
	}
	e.prevSub, e.nextSub = nil, nil
}

// deps iterates the dependency set. Must be called with rt.mu held.
func (n *Node) deps(yield func(*Node) bool) {
	for e := n.depsHead; e != nil; e = e.nextDep {
		if !yield(e.dep) {
			return
		}
	}
}

// subs iterates the dependent set. Must be called with rt.mu held.
func (n *Node) subs(yield func(*Node) bool) {
	for e := n.subsHead; e != nil; e = e.nextSub {
		if !yield(e.sub) {
			return
		}
	}
}

// clearDeps removes every outgoing dependency edge (and the matching
// incoming edge on each dependency), returning the set of nodes that were
// unlinked. It does NOT rebalance their subscription counts itself —
// addSubscription must never be called while rt.mu is held, so that is left
// to the caller once it has released the lock. Must be called with rt.mu
// held.
func (n *Node) clearDeps() []*Node {
	var removed []*Node
	for e := n.depsHead; e != nil; {
		next := e.nextDep
		e.dep.removeSubEdge(e)
		removed = append(removed, e.dep)
		e = next
	}
	n.depsHead = nil
	return removed
}

// subscribed reports whether this node is kept eagerly refreshed.
func (n *Node) subscribed() bool { return n.subCount > 0 }

func (n *Node) maxDepHeight() int {
	max := 0
	for e := n.depsHead; e != nil; e = e.nextDep {
		if e.dep.height >= max {
			max = e.dep.height + 1
		}
	}
	return max
}
