package engine

// Guard is a scoped, lock-held borrow of a node's cached value slot
// (spec.md §4.9). While a Guard is open, the node's value cannot be
// refreshed out from under the reader; multiple guards on the same node may
// coexist (the lock is a RWMutex held for read).
type Guard struct {
	n   *Node
	val any
}

// Value returns the borrowed value. Valid only until Release is called.
func (g Guard) Value() any { return g.val }

// Release ends the borrow. Guards must not outlive the node; callers must
// not retain a Guard past the scope that produced it.
func (g Guard) Release() { g.n.valueMu.RUnlock() }

// Read produces a Guard over n's current value, refreshing first if n is
// Stale (pull-through, spec.md §4.3), and registers n as a dependency of
// whatever frame is currently evaluating.
func (n *Node) Read() Guard {
	n.rt.mu.Lock()
	n.rt.tracker.track(n)
	n.rt.mu.Unlock()

	n.rt.pullThrough(n)
	n.valueMu.RLock()
	return Guard{n: n, val: n.value}
}
