package future_test

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/AnatoleLucet/sig"
	"github.com/AnatoleLucet/sig/future"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("time.Sleep"))
}

func TestFilteredReady(t *testing.T) {
	count := sig.NewCell(0)

	ch := future.Filtered(func() int {
		return count.Get()
	}, func(v int) bool {
		return v >= 3
	})

	count.SetBlocking(1)
	count.SetBlocking(2)
	count.SetBlocking(3)

	select {
	case v := <-ch:
		if v != 3 {
			t.Fatalf("want 3, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("filtered never resolved")
	}
}

func TestSkippedWhileReady(t *testing.T) {
	count := sig.NewCell(0)

	ch := future.SkippedWhile(func() int {
		return count.Get()
	}, func(v int) bool {
		return v < 3
	})

	count.SetBlocking(1)
	count.SetBlocking(2)
	count.SetBlocking(3)

	select {
	case v := <-ch:
		if v != 3 {
			t.Fatalf("want 3, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("skipped_while never resolved")
	}
}

func TestDebounce(t *testing.T) {
	count := sig.NewCell(0)
	d := future.Debounce(func() int { return count.Get() }, 20*time.Millisecond)
	defer d.Close()

	count.SetBlocking(1)
	count.SetBlocking(2)
	count.SetBlocking(3)

	time.Sleep(50 * time.Millisecond)
	if got := d.Get(); got != 3 {
		t.Fatalf("want 3, got %d", got)
	}
}

// TestDeltaEagerBaseline exercises the case a lazily-captured baseline gets
// wrong: the source changes before Delta's first .Get() call, so the
// baseline must come from Delta's construction time, not from whatever
// value the source holds on first read.
func TestDeltaEagerBaseline(t *testing.T) {
	cell := sig.NewCell(5)
	delta := future.Delta(func() int { return cell.Get() })

	cell.SetBlocking(8) // source changes before Delta is ever read

	if got := delta.Get(); got != 3 {
		t.Fatalf("want 3 (8-5, baseline taken at construction), got %d", got)
	}
}

func TestDelta(t *testing.T) {
	input := []int{1, 1, 2, 3, 3, 4, 5, 5, 5, 6, 6, 6, 7, 7, 7, 7, 8, 9, 9, 0}
	want := []int{0, 1, 1, 0, 1, 1, 0, 0, 1, 0, 0, 1, 0, 0, 0, 1, 1, 0, -9}

	cell := sig.NewCell(input[0])
	delta := future.Delta(func() int { return cell.Get() })

	var got []int
	for _, v := range input[1:] {
		cell.SetBlocking(v)
		got = append(got, delta.Get())
	}

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %d want %d (full: %v)", i, got[i], want[i], got)
		}
	}
}
