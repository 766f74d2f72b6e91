package engine

// heightHeap orders pending refreshes by dependency height so a drain visits
// every node only after all of its stale dependencies have already been
// visited (spec.md §4.2's "Kahn-style processing over a queue keyed by
// (number of stale dependencies remaining)", realized here — as in the
// teacher's PriorityHeap — by height buckets instead, which is equivalent
// for a DAG and lets Drain run in O(nodes + edges) instead of needing a
// priority queue).
type heightHeap struct {
	min, max int
	buckets  []*heapEntry
	index    map[*Node]*heapEntry
}

type heapEntry struct {
	node       *Node
	prev, next *heapEntry
}

func newHeightHeap() *heightHeap {
	return &heightHeap{
		buckets: make([]*heapEntry, 64),
		index:   make(map[*Node]*heapEntry),
	}
}

func (h *heightHeap) growTo(height int) {
	if height < len(h.buckets) {
		return
	}
	next := make([]*heapEntry, height*2+1)
	copy(next, h.buckets)
	h.buckets = next
}

func (h *heightHeap) Insert(n *Node) {
	if n.hasFlag(flagInHeap) {
		return
	}
	n.addFlag(flagInHeap)

	h.growTo(n.height)
	entry := &heapEntry{node: n}
	h.index[n] = entry

	head := h.buckets[n.height]
	if head == nil {
		h.buckets[n.height] = entry
		entry.prev = entry
		entry.next = nil
	} else {
		tail := head.prev
		tail.next = entry
		entry.prev = tail
		entry.next = nil
		head.prev = entry
	}

	if n.height > h.max {
		h.max = n.height
	}
}

func (h *heightHeap) InsertSubs(n *Node) {
	n.subs(func(sub *Node) bool {
		h.Insert(sub)
		return true
	})
}

func (h *heightHeap) Remove(n *Node) {
	if !n.hasFlag(flagInHeap) {
		return
	}
	n.removeFlag(flagInHeap)

	entry, ok := h.index[n]
	if !ok {
		return
	}
	delete(h.index, n)

	height := n.height
	head := h.buckets[height]

	if entry.prev == entry {
		h.buckets[height] = nil
		entry.prev, entry.next = nil, nil
		return
	}

	if entry == head {
		h.buckets[height] = entry.next
	} else {
		entry.prev.next = entry.next
	}

	next := entry.next
	if next == nil {
		next = h.buckets[height]
	}
	if next != nil {
		next.prev = entry.prev
	}

	entry.prev, entry.next = nil, nil
}

// Drain processes every pending entry in non-decreasing height order,
// leaving the heap empty. process may insert new entries (e.g. because a
// refresh discovered a dependent at a greater height); those are visited in
// the same pass since the loop re-reads h.max each iteration.
func (h *heightHeap) Drain(process func(*Node)) {
	for h.min = 0; h.min <= h.max; h.min++ {
		if h.min >= len(h.buckets) {
			break
		}
		for {
			entry := h.buckets[h.min]
			if entry == nil {
				break
			}
			h.Remove(entry.node)
			process(entry.node)
		}
	}
	h.max = 0
	h.min = 0
}

func (h *heightHeap) Empty() bool {
	return len(h.index) == 0
}
