package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscan/internal/heap"
)

func TestFieldStats(t *testing.T) {
	b := heap.NewBuilder(heap.DefaultLayout())
	obj := b.DefineClass(heap.ClassObject, nil)
	point := b.DefineClass("app.Point", obj,
		heap.Field{Name: "x", Type: heap.TypeInt},
		heap.Field{Name: "y", Type: heap.TypeLong},
		heap.Field{Name: "name", Type: heap.TypeObject},
		heap.Field{Name: "ratio", Type: heap.TypeDouble},
	)
	fs := NewFieldStats(point, 4)
	require.Equal(t, 4, fs.NumFields())

	rows := [][]heap.FieldValue{
		{heap.Prim(heap.TypeInt, 0), heap.Prim(heap.TypeLong, 0), heap.Null(), heap.Prim(heap.TypeDouble, 0)},
		{heap.Prim(heap.TypeInt, 5), heap.Prim(heap.TypeLong, 70000), heap.Ref(0), heap.Prim(heap.TypeDouble, 1)},
		{heap.Prim(heap.TypeInt, 0), heap.Prim(heap.TypeLong, 1 << 40), heap.Null(), heap.Prim(heap.TypeDouble, 0)},
	}
	for _, r := range rows {
		fs.HandleFields(r)
	}

	assert.Equal(t, 1, fs.NumAllNullInstances())
	assert.Equal(t, []int{1, 2, 1, 1}, []int{fs.NonNullCount(0), fs.NonNullCount(1), fs.NonNullCount(2), fs.NonNullCount(3)})
	assert.Equal(t, []int{0, 2, 3}, fs.PercentileEmptyFields(1))
	assert.Empty(t, fs.PercentileEmptyFields(0))

	uf := fs.UnusedHiBytesFields(1)
	require.NotNil(t, uf)
	// x fits a byte in all three instances; y needs four bytes at most in two
	assert.Equal(t, []int{0, 1}, uf.FieldIndices)
	assert.Equal(t, []int64{9, 8}, uf.Overheads)

	assert.Nil(t, fs.UnusedHiBytesFields(4))
}

func TestFieldStats_ArrayClass(t *testing.T) {
	b := heap.NewBuilder(heap.DefaultLayout())
	b.DefineClass(heap.ClassObject, nil)
	fs := NewFieldStats(b.ArrayClass(heap.TypeInt), 4)
	assert.Zero(t, fs.NumFields())
	fs.HandleFields(nil)
	assert.Equal(t, 1, fs.NumAllNullInstances())
}
