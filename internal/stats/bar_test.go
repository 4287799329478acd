package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/heap/heaptest"
)

func objects(h *heap.Heap, idx []int) []*heap.Object {
	out := make([]*heap.Object, len(idx))
	for i, x := range idx {
		out[i] = h.Object(x)
	}
	return out
}

func TestBarOverhead(t *testing.T) {
	f := heaptest.New()
	var tall, wide, mixed []int
	for i := 0; i < 100; i++ {
		tall = append(tall, f.IntArray(int32(i), int32(-i)))
	}
	wide = append(wide, f.IntArray(make([]int32, 100)...), f.IntArray(make([]int32, 100)...))
	mixed = append(mixed, f.IntArray(1, 2), f.IntArray(3, 4), f.Int(5))
	h := f.Build(t)

	tests := []struct {
		name string
		subs []int
		want int
	}{
		// 100 int[2] of 24 bytes plus 100 pointers, against 2 int[100] of 416 bytes plus 2 pointers
		{"many short rows", tall, 2800 - 840},
		{"few long rows", wide, 0},
		{"not all arrays", mixed, 0},
		{"single row", tall[:1], 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BarOverhead(h.Layout(), objects(h, tt.subs)))
		})
	}
}
