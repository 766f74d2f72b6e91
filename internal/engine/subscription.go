package engine

// Handle is a non-computing subscription that keeps a target node eagerly
// refreshed for as long as it is open (spec.md §4.4 "Subscription
// accounting"). Opening one is what turns a lazy, pull-only node into part
// of the eagerly-refreshed frontier; unsubscribing may let the target (and,
// transitively, whatever it alone was keeping alive) go back to lazy.
type Handle struct {
	target *Node
}

// Subscribe opens a direct subscription to n. If this is n's first
// subscriber, it is pulled through synchronously before returning (spec.md
// §4.4 "crossing 0→positive triggers an eager pull-through refresh").
func (n *Node) Subscribe() Handle {
	n.rt.mu.Lock()
	n.directSubs++
	n.rt.mu.Unlock()

	n.rt.addSubscription(n, 1)
	return Handle{target: n}
}

// Unsubscribe ends the subscription. If this was the target's last
// subscriber and it carried a pending FlushOut directive, the one-shot
// teardown refresh of spec.md §4.6 runs before Unsubscribe returns.
func (h Handle) Unsubscribe() {
	h.target.rt.mu.Lock()
	h.target.directSubs--
	h.target.rt.mu.Unlock()

	h.target.rt.addSubscription(h.target, -1)
}

// NewSubscription wraps target in its own KindSubscription node: a
// transparent, eagerly-refreshed mirror of target's value. This is what the
// public wrapper layer's Subscription[T] holds onto, since a bare Handle has
// no value of its own to read back.
func (r *Runtime) NewSubscription(target *Node) *Node {
	n := newNode(r, KindSubscription)
	n.compute = func(_ *Node) (any, error) {
		g := target.Read()
		v := g.Value()
		g.Release()
		target.rt.mu.Lock()
		err := target.err
		target.rt.mu.Unlock()
		return v, err
	}
	n.state = StateStale
	n.ownerRefs = 1
	n.directSubs = 1
	n.subCount = 1

	n.rt.recompute(n)

	return n
}

// NewEffect constructs and immediately runs setup, then keeps it eagerly
// refreshed until the returned node is dropped with Drop. teardown,
// if non-nil, runs with the most recent setup result whenever the effect is
// about to re-run and, finally, when it is torn down entirely.
func (r *Runtime) NewEffect(setup func() (any, error), teardown func(prev any)) *Node {
	n := newNode(r, KindEffect)
	n.teardown = teardown
	n.compute = func(_ *Node) (any, error) {
		if n.teardown != nil {
			n.valueMu.RLock()
			prev, has := n.value, n.hasValue
			n.valueMu.RUnlock()
			if has {
				n.teardown(prev)
			}
		}
		return setup()
	}
	n.state = StateStale
	n.ownerRefs = 1
	n.directSubs = 1
	n.subCount = 1

	n.rt.recompute(n)

	return n
}

// Drop tears an effect node down: it stops being recomputed and, if it has a
// teardown closure, runs it one final time against its last value.
func (n *Node) Drop() {
	n.rt.mu.Lock()
	if n.state == StateDropped {
		n.rt.mu.Unlock()
		return
	}
	n.state = StateDropped
	deps := n.clearDeps()
	n.rt.mu.Unlock()

	for _, d := range deps {
		n.rt.addSubscription(d, -1)
	}

	if n.teardown != nil {
		n.valueMu.RLock()
		prev, has := n.value, n.hasValue
		n.valueMu.RUnlock()
		if has {
			n.teardown(prev)
		}
	}
}
