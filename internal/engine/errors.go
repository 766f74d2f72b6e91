package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCrossGoroutine is panicked when a single-thread runtime is touched from
// a goroutine other than the one that created it (spec.md §5).
var ErrCrossGoroutine = errors.New("engine: local runtime touched from foreign goroutine")

// ReentrantWriteError is panicked when a blocking write is attempted from
// inside the refresh of the same propagation cycle it would need to join
// (spec.md §7, §5 "Suspension points").
type ReentrantWriteError struct {
	Node ID
}

func (e *ReentrantWriteError) Error() string {
	return fmt.Sprintf("engine: reentrant blocking write to node %d during its own propagation cycle", e.Node)
}

// CycleError is panicked when the dependency tracker observes the frame
// currently being evaluated appear again as one of its own dependencies.
type CycleError struct {
	Node ID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("engine: cycle in value dependencies detected at node %d", e.Node)
}
