package sig_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatoleLucet/sig"
)

// TestDiamondRefresh exercises spec scenario 1: a diamond of cached
// computeds feeding an uncached computed, observed through a subscribing
// effect.
func TestDiamondRefresh(t *testing.T) {
	scope := sig.NewScope()
	var order []string
	var result int

	a := sig.NewCellIn(scope, 1)
	b := sig.NewCellIn(scope, 2)
	c := sig.NewComputedIn(scope, func() int {
		order = append(order, "c")
		return a.Get() + b.Get()
	})
	d := sig.NewComputedIn(scope, func() int {
		order = append(order, "d")
		return a.Get() - b.Get()
	})
	aa := sig.NewUncachedComputed(func() int {
		order = append(order, "aa")
		return c.Get() + d.Get()
	})

	effect := sig.NewEffectIn(scope, func() {
		order = append(order, "sub_aa")
		result = aa.Get()
	})
	defer effect.Close()

	assert.Equal(t, 2, result)
	assert.Equal(t, []string{"sub_aa", "aa", "c", "d"}, order)

	order = nil
	b.SetBlocking(2) // same value, non-distinct: still recomputes everything
	assert.Equal(t, 2, result)
	assert.ElementsMatch(t, []string{"c", "d", "sub_aa", "aa"}, order)

	a.SetBlocking(0)
	assert.Equal(t, 0, result)
}

// TestBranchSwitching exercises spec scenario 2: a computed selecting among
// several cells by index, re-subscribing only to the currently-selected
// branch.
func TestBranchSwitching(t *testing.T) {
	scope := sig.NewScope()

	index := sig.NewCellIn(scope, 1)
	cells := map[int]*sig.Cell[string]{
		1: sig.NewCellIn(scope, "a1"),
		2: sig.NewCellIn(scope, "a2"),
	}
	selected := sig.NewComputedIn(scope, func() string {
		return cells[index.Get()].Get()
	})

	var seen []string
	effect := sig.NewEffectIn(scope, func() {
		seen = append(seen, selected.Get())
	})
	defer effect.Close()

	require.Equal(t, []string{"a1"}, seen)

	cells[1].SetBlocking("aa")
	assert.Equal(t, []string{"a1", "aa"}, seen)

	index.SetBlocking(2)
	assert.Equal(t, []string{"a1", "aa", "a2"}, seen)

	cells[1].SetBlocking("changed-again")
	assert.Len(t, seen, 3, "writing the no-longer-selected branch must not re-run the observer")

	cells[2].SetBlocking("a2-updated")
	assert.Equal(t, []string{"a1", "aa", "a2", "a2-updated"}, seen)
}

// TestFlushOut exercises spec scenario 3: a reactive cell whose on-change
// callback returns FlushOut, forcing one more downstream refresh on the next
// unsubscribe even though the unsubscribed node itself stops updating.
func TestFlushOut(t *testing.T) {
	scope := sig.NewScope()

	toggle := sig.NewReactiveIn(scope, false, func(cur bool, subscribed bool) (bool, sig.Directive) {
		return subscribed, sig.FlushOut
	})

	var seen []bool

	h := toggle.Subscribe()
	seen = append(seen, toggle.Get())
	h.Unsubscribe()
	seen = append(seen, toggle.Get())

	assert.Equal(t, []bool{true, false}, seen)

	// A second subscribe/unsubscribe cycle still emits false exactly once on
	// teardown.
	seen = nil
	h2 := toggle.Subscribe()
	seen = append(seen, toggle.Get())
	h2.Unsubscribe()
	seen = append(seen, toggle.Get())
	assert.Equal(t, []bool{true, false}, seen)
}

// TestBatchedDedup exercises spec scenario 4: writes outside a batch each
// produce an effect invocation, the same writes inside Batch coalesce into
// one.
func TestBatchedDedup(t *testing.T) {
	scope := sig.NewScope()

	a := sig.NewCellIn(scope, 0)
	b := sig.NewCellIn(scope, 0)

	runs := 0
	effect := sig.NewEffectIn(scope, func() {
		a.Get()
		b.Get()
		runs++
	})
	defer effect.Close()

	require.Equal(t, 1, runs)

	a.SetBlocking(1)
	b.SetBlocking(1)
	assert.Equal(t, 3, runs, "two writes outside a batch produce two more invocations")

	runs = 0
	scope.Batch(func() {
		a.SetBlocking(2)
		b.SetBlocking(2)
	})
	assert.Equal(t, 1, runs, "the same writes inside a batch coalesce into one invocation")
}

// TestCyclicWeak exercises spec scenario 5: a reactive cell whose callback
// holds a weak handle to itself.
func TestCyclicWeak(t *testing.T) {
	scope := sig.NewScope()

	upgradedDuringCallback := false
	cell := sig.NewCyclicReactive(func(self *sig.Weak[int]) (int, func(int, bool) (int, sig.Directive)) {
		return 0, func(cur int, subscribed bool) (int, sig.Directive) {
			if subscribed {
				_, ok := self.Upgrade()
				upgradedDuringCallback = ok
			}
			return cur + 1, sig.Propagate
		}
	})
	_ = scope

	h := cell.Subscribe()
	assert.True(t, upgradedDuringCallback)
	h.Unsubscribe()
}

// TestDelta exercises spec scenario 6: an uncached computed returning
// current-minus-previous over a driven input sequence.
func TestDelta(t *testing.T) {
	input := []int{1, 1, 2, 3, 3, 4, 5, 5, 5, 6, 6, 6, 7, 7, 7, 7, 8, 9, 9, 0}
	wantDeltas := []int{0, 1, 1, 0, 1, 1, 0, 0, 1, 0, 0, 1, 0, 0, 0, 1, 1, 0, -9}

	scope := sig.NewScope()
	cell := sig.NewCellIn(scope, input[0])
	prev := input[0]

	var deltas []int
	delta := sig.NewUncachedComputed(func() int {
		cur := cell.Get()
		d := cur - prev
		prev = cur
		return d
	})

	for _, v := range input[1:] {
		cell.SetBlocking(v)
		deltas = append(deltas, delta.Get())
	}

	assert.Equal(t, wantDeltas, deltas)
}

// TestCellUpdateHalt exercises Cell.Update's Halt directive: the slot must
// still be written (spec.md §4.5's unconditional write-before-propagation
// rule), but a subscribed dependent must not be eagerly refreshed — only
// made Stale, picking the new value up on its next read.
func TestCellUpdateHalt(t *testing.T) {
	scope := sig.NewScope()

	cell := sig.NewCellIn(scope, 1)
	runs := 0
	doubled := sig.NewComputedIn(scope, func() int {
		runs++
		return cell.Get() * 2
	})

	h := doubled.Subscribe()
	defer h.Unsubscribe()
	require.Equal(t, 2, doubled.Get())
	require.Equal(t, 1, runs)

	cell.Update(func(cur int) (int, sig.Directive) {
		return cur + 10, sig.Halt
	})

	assert.Equal(t, 1, runs, "Halt must not eagerly refresh a subscribed dependent")
	assert.Equal(t, 22, doubled.Get(), "the write must still have landed in the cell's slot")
	assert.Equal(t, 2, runs, "the dependent recomputes lazily on its next read")
}

// TestCellUpdatePropagate exercises Cell.Update's Propagate directive: an
// ordinary write-and-refresh, same as Set.
func TestCellUpdatePropagate(t *testing.T) {
	scope := sig.NewScope()

	cell := sig.NewCellIn(scope, 1)
	var seen []int
	effect := sig.NewEffectIn(scope, func() {
		seen = append(seen, cell.Get())
	})
	defer effect.Close()

	cell.Update(func(cur int) (int, sig.Directive) {
		return cur + 1, sig.Propagate
	})

	assert.Equal(t, []int{1, 2}, seen)
}

// TestCellSetAsync exercises SetAsync: the returned channel closes once the
// write's propagation cycle has completed.
func TestCellSetAsync(t *testing.T) {
	scope := sig.NewScope()

	cell := sig.NewCellIn(scope, 1)
	doubled := sig.NewComputedIn(scope, func() int { return cell.Get() * 2 })
	h := doubled.Subscribe()
	defer h.Unsubscribe()

	done := cell.SetAsync(5)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetAsync never resolved")
	}
	assert.Equal(t, 10, doubled.Get())
}

// TestReactiveHalt exercises a Reactive cell whose onChange callback returns
// Halt: the new value must still land in the cell's slot, and a subscribed
// dependent must transition to Stale without being eagerly refreshed,
// recomputing only on its next read (spec.md §4.6).
func TestReactiveHalt(t *testing.T) {
	scope := sig.NewScope()

	toggle := sig.NewReactiveIn(scope, 0, func(cur int, subscribed bool) (int, sig.Directive) {
		return cur + 1, sig.Halt
	})
	runs := 0
	mirror := sig.NewComputedIn(scope, func() int {
		runs++
		return toggle.Get()
	})

	require.Equal(t, 0, mirror.Get())
	require.Equal(t, 1, runs)

	h := toggle.Subscribe()
	defer h.Unsubscribe()

	assert.Equal(t, 1, runs, "Halt must not eagerly refresh mirror on subscribe")
	assert.Equal(t, 1, toggle.Get())
	assert.Equal(t, 1, mirror.Get(), "mirror recomputes lazily and observes the Halted value on next read")
	assert.Equal(t, 2, runs)
}
