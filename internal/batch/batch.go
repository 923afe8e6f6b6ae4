// Package batch runs a function over a list in fixed-size windows.
//
// Items inside a window run concurrently, one goroutine each, and the window is
// joined before the next one starts. Windows never overlap, so at most size calls
// are in flight at any time. Results keep the input order.
package batch

import (
	"context"
	"sync"
)

// DefaultSize is the window size used when a non-positive size is given
const DefaultSize = 3

// Func processes one item. index is the item's position in the input list.
type Func[T any] func(ctx context.Context, index int, item T) T

// Run applies fn to every item, size items at a time. When ctx is cancelled no
// further windows are started and the remaining items are returned unchanged.
func Run[T any](ctx context.Context, items []T, size int, fn Func[T]) []T {
	if size <= 0 {
		size = DefaultSize
	}

	out := make([]T, len(items))
	copy(out, items)

	for start := 0; start < len(items); start += size {
		if ctx.Err() != nil {
			break
		}
		end := min(start+size, len(items))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i] = fn(ctx, i, items[i])
			}(i)
		}
		wg.Wait()
	}

	return out
}

// Windows returns the number of windows Run will use for n items
func Windows(n, size int) int {
	if size <= 0 {
		size = DefaultSize
	}
	return (n + size - 1) / size
}
