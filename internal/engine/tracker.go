package engine

import "github.com/petermattis/goid"

// frame is one entry of the evaluator stack: the node currently being
// refreshed and the dependency set it has observed so far (spec.md §4.1).
type frame struct {
	node *Node
	deps map[*Node]struct{}
	seen []*Node // preserves read order, returned by pop
}

// Tracker is the per-runtime "current evaluator" stack. A frame is only
// valid on the goroutine that pushed it; reads from any other goroutine do
// not register a dependency. Reads are not checked against a single-thread
// runtime's owning goroutine (see Runtime.checkGoroutine for what is).
type Tracker struct {
	stack []frame
	// owningGID is set while a frame is active, recording which goroutine
	// is allowed to keep pushing onto this stack. Used by the reentrant
	// write detector: a write from this goroutine while the stack is
	// non-empty is a same-cycle reentrant write.
	owningGID int64
	tracking  bool
}

func newTracker() *Tracker {
	return &Tracker{tracking: true}
}

func (t *Tracker) active() bool { return len(t.stack) > 0 }

func (t *Tracker) current() *Node {
	if !t.active() {
		return nil
	}
	return t.stack[len(t.stack)-1].node
}

// push begins evaluation of node on the calling goroutine.
func (t *Tracker) push(n *Node) {
	if len(t.stack) == 0 {
		t.owningGID = goid.Get()
	}
	t.stack = append(t.stack, frame{node: n, deps: make(map[*Node]struct{})})
}

// pop ends evaluation of the top frame and returns the dependency set
// observed, in first-read order.
func (t *Tracker) pop() []*Node {
	top := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return top.seen
}

// track registers dep as having been read by the currently evaluating node,
// if tracking is enabled, a frame is active, and we're still on the
// goroutine that owns the stack.
func (t *Tracker) track(dep *Node) {
	if !t.tracking || !t.active() {
		return
	}
	if goid.Get() != t.owningGID {
		return
	}
	top := &t.stack[len(t.stack)-1]
	if top.node == dep {
		// A node reading itself is a cycle, not a self-dependency; the
		// propagator reports this explicitly rather than silently looping.
		panic(&CycleError{Node: dep.id})
	}
	if _, ok := top.deps[dep]; ok {
		return
	}
	top.deps[dep] = struct{}{}
	top.seen = append(top.seen, dep)
}

// untrack runs fn with dependency tracking suspended, regardless of whether
// a frame is active.
func (t *Tracker) untrack(fn func()) {
	prev := t.tracking
	t.tracking = false
	defer func() { t.tracking = prev }()
	fn()
}

// reentrant reports whether the calling goroutine is currently inside this
// tracker's evaluator stack (i.e. a blocking write from here would have to
// wait on a cycle it is itself part of).
func (t *Tracker) reentrant() bool {
	return t.active() && goid.Get() == t.owningGID
}
