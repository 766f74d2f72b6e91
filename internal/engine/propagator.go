package engine

import "github.com/petermattis/goid"

// isEqual is the default equality used by the _distinct_ write/compute
// variants. Values flowing through the engine are boxed in `any`; most
// client types are comparable, matching the teacher's own `isEqual`.
func isEqual(a, b any) bool {
	defer func() { recover() }() // uncomparable dynamic types: never equal
	return a == b
}

// dirty is called with the registry lock held. It stages a written cell for
// propagation: if a batch is active the root is simply remembered, and the
// caller is expected to flush once the outermost batch exits.
func (r *Runtime) dirty(root *Node) {
	r.scheduled = true
	r.markStaleAndSeed(root)
}

// markStaleAndSeed performs the staleness BFS of spec.md §4.2 step 2,
// seeding the height heap with every subscribed node it reaches so the
// refresh phase (drain) processes exactly the subscribed frontier in
// dependency order. Must be called with r.mu held.
func (r *Runtime) markStaleAndSeed(root *Node) {
	queue := make([]*Node, 0, 8)
	root.subs(func(s *Node) bool {
		queue = append(queue, s)
		return true
	})

	visited := make(map[*Node]bool, len(queue))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true

		if n.state == StateDropped {
			continue
		}
		n.state = StateStale
		if n.subscribed() {
			r.heap.Insert(n)
		}
		n.subs(func(s *Node) bool {
			if !visited[s] {
				queue = append(queue, s)
			}
			return true
		})
	}
}

// markStaleOnly performs the same staleness BFS as markStaleAndSeed, but
// never seeds the height heap: used where a directive (Halt) says
// dependents must transition to Stale without being eagerly refreshed
// (spec.md §4.6's Halt — "downstream dependents remain Stale (and will pull
// on next read)"). Must be called with r.mu held.
func (r *Runtime) markStaleOnly(root *Node) {
	queue := make([]*Node, 0, 8)
	root.subs(func(s *Node) bool {
		queue = append(queue, s)
		return true
	})

	visited := make(map[*Node]bool, len(queue))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true

		if n.state == StateDropped {
			continue
		}
		n.state = StateStale
		n.subs(func(s *Node) bool {
			if !visited[s] {
				queue = append(queue, s)
			}
			return true
		})
	}
}

// flush drains the height heap, refreshing every subscribed stale node in
// dependency order, then runs staged async/effect completions. It must be
// called with no lock held, and only when not already batching.
func (r *Runtime) flush() {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	r.clock++
	r.flushingGID = goid.Get()
	r.heap.min = 0
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.flushingGID = 0
		r.mu.Unlock()
	}()

	for {
		r.mu.Lock()
		if r.heap.Empty() {
			r.mu.Unlock()
			break
		}
		var n *Node
		for r.heap.min <= r.heap.max {
			if r.heap.min >= len(r.heap.buckets) {
				r.heap.min = r.heap.max + 1
				break
			}
			if r.heap.buckets[r.heap.min] != nil {
				n = r.heap.buckets[r.heap.min].node
				r.heap.Remove(n)
				break
			}
			r.heap.min++
		}
		r.mu.Unlock()
		if n == nil {
			break
		}
		r.recompute(n)
	}

	r.mu.Lock()
	r.scheduled = false
	waiters := r.asyncWaiters
	r.asyncWaiters = nil
	r.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// pullThrough refreshes n synchronously if it is Stale, whether or not it
// is subscribed (spec.md §4.3 "Read operations on a Stale cached node
// refresh it synchronously").
func (r *Runtime) pullThrough(n *Node) {
	r.mu.Lock()
	if n.state != StateStale {
		r.mu.Unlock()
		return
	}
	if n.hasFlag(flagInHeap) {
		r.heap.Remove(n)
	}
	r.mu.Unlock()

	r.recompute(n)
}

// recompute re-evaluates a cached node's closure, rebuilding its dependency
// set and rebalancing subscription counts. Safe to call re-entrantly from
// within another recompute (pull-through of a dependency).
func (r *Runtime) recompute(n *Node) {
	r.mu.Lock()
	if n.state == StateDropped {
		r.mu.Unlock()
		return
	}
	n.state = StateComputing
	oldDeps := n.clearDeps()
	subCountBefore := n.subCount
	r.mu.Unlock()

	if subCountBefore > 0 {
		for _, d := range oldDeps {
			r.addSubscription(d, -subCountBefore)
		}
	}

	r.tracker.push(n)
	var result any
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.tracker.pop()
				r.mu.Lock()
				n.state = StateStale
				r.mu.Unlock()
				panic(rec)
			}
		}()
		result, err = n.compute(n)
	}()
	deps := r.tracker.pop()

	r.mu.Lock()
	for _, d := range deps {
		n.link(d)
	}
	subCount := n.subCount
	r.mu.Unlock()

	if subCount > 0 {
		for _, d := range deps {
			r.addSubscription(d, subCount)
		}
	}

	changed := true
	n.valueMu.Lock()
	if n.hasFlag(flagDistinct) && n.hasValue {
		changed = !isEqual(n.value, result)
	}
	n.value = result
	n.hasValue = true
	n.valueMu.Unlock()

	r.mu.Lock()
	n.err = err
	n.state = StateClean
	n.version = r.clock
	height := n.maxDepHeight()
	n.height = height
	r.mu.Unlock()

	if !changed {
		r.shortCircuitSubs(n)
	}
}

// shortCircuitSubs implements the distinct-computed optimization of
// spec.md §4.2 step 4: a node whose value did not change need not force its
// already-stale-and-seeded dependents to actually recompute, provided none
// of their OTHER dependencies are still stale. It recurses, since skipping
// one node can make its own dependents eligible too.
func (r *Runtime) shortCircuitSubs(n *Node) {
	r.mu.Lock()
	var candidates []*Node
	n.subs(func(s *Node) bool {
		if s.state == StateStale {
			candidates = append(candidates, s)
		}
		return true
	})
	var resolved []*Node
	for _, s := range candidates {
		if s.hasFlag(flagDistinct) {
			// distinct nodes should skip recompute entirely; non-distinct
			// dependents still need to run once to observe the (possibly
			// unrelated) changes from other dependencies, so only demote a
			// dependent here if every one of its dependencies has resolved.
		}
		stillStale := false
		s.deps(func(d *Node) bool {
			if d.state == StateStale {
				stillStale = true
				return false
			}
			return true
		})
		if stillStale {
			continue
		}
		if s.hasFlag(flagInHeap) {
			r.heap.Remove(s)
		}
		s.state = StateClean
		resolved = append(resolved, s)
	}
	r.mu.Unlock()

	for _, s := range resolved {
		r.shortCircuitSubs(s)
	}
}

// addSubscription applies a subscription-count delta to n and recursively
// to n's dependencies (spec.md §4.4). It must be called with no lock held.
func (r *Runtime) addSubscription(n *Node, delta int64) {
	r.mu.Lock()
	before := n.subCount
	n.subCount += delta
	after := n.subCount
	kind := n.kind
	deps := make([]*Node, 0, 4)
	n.deps(func(d *Node) bool { deps = append(deps, d); return true })
	r.mu.Unlock()

	crossedUp := before == 0 && after > 0
	crossedDown := before > 0 && after == 0

	if kind == KindReactive && (crossedUp || crossedDown) {
		r.invokeStatusCallback(n, crossedUp)
	}

	for _, d := range deps {
		r.addSubscription(d, delta)
	}

	switch {
	case crossedUp:
		r.mu.Lock()
		needsRefresh := n.compute != nil && n.state == StateStale
		r.mu.Unlock()
		if needsRefresh {
			r.recompute(n)
		}
	case crossedDown:
		r.mu.Lock()
		flush := n.hasFlag(flagFlushPending)
		if flush {
			n.removeFlag(flagFlushPending)
		}
		var subs []*Node
		if flush {
			n.subs(func(s *Node) bool { subs = append(subs, s); return true })
		}
		r.mu.Unlock()
		for _, s := range subs {
			if s.compute != nil {
				r.recompute(s)
			}
		}
	}
}

// invokeStatusCallback runs a Reactive node's on-change callback for a
// subscription status transition (spec.md §4.6, §3 "Side-effect closures").
// Propagate behaves like an ordinary write: n's dependents are marked stale
// and, if subscribed, refreshed. Halt updates n's own slot and marks
// dependents Stale too, but stops there — they are not eagerly refreshed,
// only recomputed lazily on their next read (spec.md §4.6, §4.3). FlushOut
// does what Propagate does now, plus arms the one-shot forced refresh of
// n's direct dependents for the next time n loses its last subscriber
// (spec.md §4.6).
func (r *Runtime) invokeStatusCallback(n *Node, subscribed bool) {
	n.valueMu.RLock()
	old := n.value
	n.valueMu.RUnlock()

	newVal, dir := n.onChange(old, subscribed)

	n.valueMu.Lock()
	n.value = newVal
	n.hasValue = true
	n.valueMu.Unlock()

	if dir == FlushOut {
		r.mu.Lock()
		n.addFlag(flagFlushPending)
		r.mu.Unlock()
	}

	switch dir {
	case Propagate, FlushOut:
		r.mu.Lock()
		r.dirty(n)
		shouldFlush := !r.batcher.active() && r.flushingGID != goid.Get()
		r.mu.Unlock()
		if shouldFlush {
			r.flush()
		}
	case Halt:
		r.mu.Lock()
		r.markStaleOnly(n)
		r.mu.Unlock()
	}
}
