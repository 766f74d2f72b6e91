package engine

// NewComputed allocates a cached, lazily-evaluated derived node. Unlike the
// teacher's Computed (which recomputes eagerly in its constructor), this one
// starts Stale-with-no-value: it is left alone until something reads it or
// subscribes to it, matching spec.md §4.3's "Stale-but-unsubscribed nodes...
// are recomputed lazily on the next external read."
//
// A computed opts into value-based short-circuiting (spec.md §4.2 step 4's
// "distinct variant") only when MarkDistinct is called on it, as the
// wrapper layer's NewComputedDistinct does; ordinary computeds never compare.
func (r *Runtime) NewComputed(compute func(*Node) (any, error)) *Node {
	n := newNode(r, KindComputed)
	n.compute = compute
	n.state = StateStale
	n.ownerRefs = 1
	return n
}

// MarkDistinct opts a cached computed into downstream short-circuiting when
// a refresh produces an unchanged value (spec.md §4.2 step 4). Must be
// called before the node is ever read.
func (n *Node) MarkDistinct() { n.addFlag(flagDistinct) }

// NewUncachedComputed allocates a KindComputedUncached marker node. The
// public wrapper layer does not install this in the dependency graph at
// all: spec.md's diamond-refresh trace (an uncached computed observed
// mid-subscribe as `sub_aa, aa, c, d`) only matches if the uncached node is
// fully transparent to the tracker, attributing its reads directly to
// whichever frame invoked it rather than interposing a node of its own
// (confirmed against the original Rust crate's flourish/tests/heap.rs).
// Kept for API symmetry and for callers that want one graph-backed anyway.
func (r *Runtime) NewUncachedComputed(compute func(*Node) (any, error)) *Node {
	n := newNode(r, KindComputedUncached)
	n.compute = compute
	n.state = StateStale
	n.ownerRefs = 1
	return n
}

// NewReactive allocates a reactive cell: a writable leaf whose on-change
// callback fires on subscription status transitions rather than on writes
// (spec.md §4.6, confirmed against the teacher's flourish-bound flushing
// tests — the callback signature is (old, subscribed) -> (new, Directive),
// not (old, new) -> Directive).
func (r *Runtime) NewReactive(initial any, onChange func(old any, subscribed bool) (any, Directive)) *Node {
	n := newNode(r, KindReactive)
	n.value = initial
	n.hasValue = true
	n.onChange = onChange
	n.ownerRefs = 1
	return n
}
