package support

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/heapscan/internal/heap"
)

func TestShortArrayStats_Add(t *testing.T) {
	var s ShortArrayStats
	for _, n := range []int{0, 1, 1, 2, 4, 5, 8, 9, 100} {
		s.Add(n)
	}
	assert.Equal(t, 1, s.N0)
	assert.Equal(t, 2, s.N1)
	assert.Equal(t, 2, s.N4)
	assert.Equal(t, 2, s.N8)
}

func TestHeapStats_Setters(t *testing.T) {
	var colTally, arrTally Tally
	colTally.Add(Empty, 64)
	arrTally.Add(LengthZero, 16)

	hs := (&HeapStats{}).
		SetGeneralStats(heap.DefaultLayout(), 3, 10, 6, 2, 400, 200, 100).
		SetCollectionStats(4, colTally).
		SetObjArrayStats(2, arrTally).
		SetValueArrayStats(1, Tally{})

	assert.Equal(t, 10, hs.NObjects)
	assert.Equal(t, int64(400), hs.TotalObjSize)
	assert.Equal(t, 4, hs.NumCols)
	assert.Equal(t, int64(80), hs.TotalProblemOverhead())
}
