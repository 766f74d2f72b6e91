// Command example is a small, runnable walkthrough of the sig API: a
// computed sum over two cells, a batched pair of writes, and the resulting
// deduplicated refresh.
package main

import (
	"fmt"

	"github.com/AnatoleLucet/sig"
)

func main() {
	a := sig.NewCell(1)
	b := sig.NewCell(2)

	sum := sig.NewComputed(func() int {
		result := a.Get() + b.Get()
		fmt.Println("  [COMPUTED] sum:", result)
		return result
	})

	effect := sig.NewEffect(func() {
		fmt.Println("  [EFFECT] sum is:", sum.Get())
	})
	defer effect.Close()

	fmt.Println("\nUpdating both a and b in a batch...")
	sig.Batch(func() {
		a.Set(10)
		b.Set(20)
	})

	fmt.Println("\nsum recomputes once, the effect runs once more:", sum.Get())
}
