package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/heap/heaptest"
	"github.com/heapscan/internal/support"
	apperrors "github.com/heapscan/pkg/errors"
)

func TestOverallCalculator(t *testing.T) {
	f := heaptest.New()
	unmodMap := f.B.DefineClass("java.util.Collections$UnmodifiableMap", f.Object)
	unmodList := f.B.DefineClass("java.util.Collections$UnmodifiableList", f.Object)
	syncMap := f.B.DefineClass("java.util.Collections$SynchronizedMap", f.Object)
	entry := f.B.DefineClass("app.Cache$Entry", f.Object)

	i1, _, l1 := f.Int(1), f.Int(2), f.LongBox(3)
	f.Instance(unmodMap)
	f.Instance(unmodMap)
	f.Instance(unmodList)
	f.Instance(syncMap)
	e := f.Instance(entry)
	empty1, _, one := f.ObjArray(heap.ClassObject), f.ObjArray(heap.ClassObject), f.ObjArray(heap.ClassObject, i1)
	f.IntArray(7)
	d1, _ := f.IntArray(5, 5), f.IntArray(5, 5)
	c1, _ := f.CharArray("zz"), f.CharArray("zz")
	h := f.Build(t)

	marks := heap.NewMarksFor(h)
	calc := NewOverallCalculator(h, marks, nil)
	hs, err := calc.Calculate()
	require.NoError(t, err)

	var total int64
	for i := 0; i < h.NumObjects(); i++ {
		total += int64(h.Object(i).Size)
	}
	layout := h.Layout()
	assert.Equal(t, h.NumObjects(), hs.NObjects)
	assert.Equal(t, total, hs.TotalObjSize)
	assert.Equal(t, 3, hs.NObjectArrays)
	assert.Equal(t, int64(h.NumObjects()*layout.ObjectHeaderSize), hs.OvhdObjHeaders)
	assert.Equal(t, 1, hs.NEntryInstances)
	assert.Equal(t, int64(h.Object(e).Size), hs.EntryClassSize)

	intSize, longSize := h.Object(i1).Size, h.Object(l1).Size
	assert.Equal(t, 3, hs.NBoxedNumbers)
	assert.Equal(t, int64(2*(intSize-4+4)+(longSize-8+4)), hs.OvhdBoxedNumbers)

	assert.Equal(t, []support.WrapperCount{
		{ClassName: unmodMap.Name, Count: 2},
		{ClassName: unmodList.Name, Count: 1},
	}, hs.UnmodifiableClasses)
	assert.Equal(t, []support.WrapperCount{{ClassName: syncMap.Name, Count: 1}}, hs.SynchronizedClasses)

	assert.Equal(t, 2, hs.ShortObjArrays.N0)
	assert.Equal(t, int64(2*h.Object(empty1).Size), hs.ShortObjArrays.Ovhd0)
	assert.Equal(t, 1, hs.ShortObjArrays.N1)
	assert.Equal(t, int64(h.Object(one).Size), hs.ShortObjArrays.Ovhd1)
	assert.Equal(t, 1, hs.ShortValueArrays.N1)
	assert.Equal(t, int64(layout.ArrayHeaderSize()), hs.ShortValueArrays.Ovhd1)

	assert.Equal(t, 1, hs.Classloaders.NumLoaders)
	require.Len(t, hs.Classloaders.Top, 1)
	assert.Equal(t, "<bootstrap>", hs.Classloaders.Top[0].LoaderClass)
	assert.Equal(t, h.NumClasses(), hs.Classloaders.Top[0].NumClasses)

	require.NotNil(t, hs.DupArrays)
	assert.Equal(t, 4, hs.DupArrays.NDupArrays)
	assert.Equal(t, 2, hs.DupArrays.NUniqueDupArrays)
	assert.Equal(t, int64(h.Object(d1).Size+h.Object(c1).Size), hs.DupArrays.Overhead)

	require.NotNil(t, hs.DupStrings)
	assert.Zero(t, hs.DupStrings.NStrings)
	assert.Equal(t, 2, hs.Histogram.Entry(f.Integer).NumInstances)
	assert.Equal(t, 99, calc.Progress())
}

func TestOverallCalculator_Cancel(t *testing.T) {
	f := heaptest.New()
	f.Int(1)
	h := f.Build(t)

	calc := NewOverallCalculator(h, heap.NewMarksFor(h), nil)
	calc.Cancel()
	hs, err := calc.Calculate()
	assert.ErrorIs(t, err, apperrors.ErrCancelled)
	assert.Nil(t, hs)
}
