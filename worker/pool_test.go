package worker

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapBoundedPreservesResultOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := MapBounded(context.Background(), 2, items, func(_ context.Context, n int) int {
		return n * n
	})
	assert.Equal(t, []int{1, 4, 9, 16, 25}, results)
}

func TestMapBoundedNeverExceedsLimit(t *testing.T) {
	items := make([]int, 20)
	var inFlight, maxInFlight int64

	MapBounded(context.Background(), 3, items, func(_ context.Context, _ int) struct{} {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			observed := atomic.LoadInt64(&maxInFlight)
			if cur <= observed || atomic.CompareAndSwapInt64(&maxInFlight, observed, cur) {
				break
			}
		}
		atomic.AddInt64(&inFlight, -1)
		return struct{}{}
	})

	assert.LessOrEqual(t, maxInFlight, int64(3))
}

func TestMapBoundedHandlesEmptyInput(t *testing.T) {
	results := MapBounded(context.Background(), 2, []int{}, func(_ context.Context, n int) int { return n })
	assert.Empty(t, results)
}
