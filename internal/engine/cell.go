package engine

import "github.com/petermattis/goid"

// NewCell allocates a writable leaf node holding initial directly. Whether a
// given write discards a no-op value is chosen per-call (Set vs SetDistinct,
// spec.md §4.5 "_distinct_ variants"), not fixed at construction.
func (r *Runtime) NewCell(initial any) *Node {
	n := newNode(r, KindCell)
	n.value = initial
	n.hasValue = true
	n.ownerRefs = 1
	return n
}

// write installs val in n's slot and, unless it was discarded by a distinct
// check, stages the dirty walk. Returns whether the write actually applied.
// The value is written to the slot before propagation begins, per spec.md
// §4.5 "All modes ultimately enter the propagator... The value is written to
// the cell's slot before propagation begins."
func (n *Node) write(val any, distinct bool) bool {
	n.valueMu.Lock()
	if distinct && n.hasValue && isEqual(n.value, val) {
		n.valueMu.Unlock()
		return false
	}
	n.value = val
	n.hasValue = true
	n.generation++
	n.valueMu.Unlock()

	n.rt.mu.Lock()
	n.rt.dirty(n)
	shouldFlush := !n.rt.batcher.active() && n.rt.flushingGID != goid.Get()
	n.rt.mu.Unlock()

	if shouldFlush {
		n.rt.flush()
	}
	return true
}

// SetBlocking writes val and, unless an enclosing batch is active, does not
// return until the resulting propagation cycle has completed
// (spec.md §4.5 "replace_blocking / set_blocking").
func (n *Node) SetBlocking(val any) {
	n.checkReentrant()
	n.write(val, false)
}

// SetBlockingDistinct is SetBlocking with a no-op check against the current
// value.
func (n *Node) SetBlockingDistinct(val any) {
	n.checkReentrant()
	n.write(val, true)
}

// Set writes val; propagation is kicked off synchronously but the call does
// not wait for it (spec.md §4.5 "replace / set (eager)"). In this engine
// propagation is itself synchronous once started, so Set and SetBlocking
// propagate identically from the same goroutine, except that Set skips
// SetBlocking's reentrancy and goroutine checks; the distinction matters to
// callers that would otherwise await a future, which belongs to the public
// wrapper layer (SetAsync below).
func (n *Node) Set(val any) {
	n.write(val, false)
}

// SetDistinct is Set with a no-op check against the current value.
func (n *Node) SetDistinct(val any) {
	n.write(val, true)
}

// SetAsync writes val and returns a channel that closes once the resulting
// propagation cycle completes (spec.md §4.5 "replace_async"). If the write
// is coalesced into an enclosing batch, the channel closes when that batch's
// flush completes instead.
func (n *Node) SetAsync(val any) <-chan struct{} {
	n.checkReentrant()

	n.valueMu.Lock()
	n.value = val
	n.hasValue = true
	n.generation++
	n.valueMu.Unlock()

	ch := make(chan struct{})
	n.rt.mu.Lock()
	n.rt.dirty(n)
	n.rt.asyncWaiters = append(n.rt.asyncWaiters, ch)
	shouldFlush := !n.rt.batcher.active() && n.rt.flushingGID != goid.Get()
	n.rt.mu.Unlock()

	if shouldFlush {
		n.rt.flush()
	}
	return ch
}

// Update runs fn with a borrow of the current value; fn returns the new
// value and a propagation Directive. The value is always written to the
// slot before propagation begins, per spec.md §4.5's unconditional rule for
// every write mode including update*. Propagate and FlushOut go on to walk
// and eagerly refresh subscribed dependents as usual, with FlushOut
// additionally arming the one-shot teardown refresh described in spec.md
// §4.6; Halt writes the slot and marks dependents Stale but stops there —
// they recompute lazily on their next read rather than being refreshed now.
func (n *Node) Update(fn func(old any) (any, Directive)) {
	n.checkReentrant()

	n.valueMu.RLock()
	old := n.value
	n.valueMu.RUnlock()

	newVal, dir := fn(old)

	if dir == Halt {
		n.valueMu.Lock()
		n.value = newVal
		n.hasValue = true
		n.generation++
		n.valueMu.Unlock()

		n.rt.mu.Lock()
		n.rt.markStaleOnly(n)
		n.rt.mu.Unlock()
		return
	}

	if dir == FlushOut {
		n.rt.mu.Lock()
		n.addFlag(flagFlushPending)
		n.rt.mu.Unlock()
	}

	n.write(newVal, false)
}

// checkReentrant panics with ReentrantWriteError if called from inside this
// cell's own runtime's active refresh on the same goroutine (spec.md §5
// "Suspension points": blocking writes from within a refresh would have to
// wait on a cycle they are themselves part of).
func (n *Node) checkReentrant() {
	n.rt.checkGoroutine()
	if n.rt.tracker.reentrant() {
		panic(&ReentrantWriteError{Node: n.id})
	}
}
