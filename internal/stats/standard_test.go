package stats

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/heap/heaptest"
	"github.com/heapscan/internal/support"
	apperrors "github.com/heapscan/pkg/errors"
)

type finding struct {
	obj  int
	kind support.ProblemKind
	ovhd int
}

type dupString struct {
	obj, inclusive, ovhd int
	dupBacking           bool
	chain                string
}

// captureRecorder keeps every finding it receives.
type captureRecorder struct {
	support.NopRecorder
	initialized bool
	findings    []finding
	good        []int
	dupStrings  []dupString
	plain       []int
	onGood      func()
}

func (r *captureRecorder) Initialize(heap.Snapshot, *support.HeapStats) {
	r.initialized = true
}

func (r *captureRecorder) RecordProblematicCollection(col *heap.Object, _ support.CollectionInfo,
	kind support.ProblemKind, ovhd int, _ support.Chain) {
	r.findings = append(r.findings, finding{col.Index, kind, ovhd})
}

func (r *captureRecorder) RecordGoodCollection(col *heap.Object, _ support.CollectionInfo, _ support.Chain) {
	r.good = append(r.good, col.Index)
	if r.onGood != nil {
		r.onGood()
	}
}

func (r *captureRecorder) RecordDuplicateString(str *heap.Object, _ string, inclusive, ovhd int,
	dupBacking bool, referer support.Chain) {
	r.dupStrings = append(r.dupStrings, dupString{str.Index, inclusive, ovhd, dupBacking, referer.String()})
}

func (r *captureRecorder) RecordNonDuplicateString(str *heap.Object, _ int, _ support.Chain) {
	r.plain = append(r.plain, str.Index)
}

type calcFixture struct {
	h                        *heap.Heap
	emptyUnused, emptyUsed   int
	list, arr0, lzt, goodArr int
	dup1, dup2, unique       int
}

func buildCalcFixture(t *testing.T) calcFixture {
	f := heaptest.New()
	var fx calcFixture
	holder := f.B.DefineClass("app.Holder", f.Object,
		heap.Field{Name: "a", Type: heap.TypeObject},
		heap.Field{Name: "b", Type: heap.TypeObject})

	fx.emptyUnused = f.HashMapCap(f.HashMap, 0, 0)
	fx.emptyUsed = f.HashMapCap(f.HashMap, 0, 3)
	fx.list = f.ArrayListOf(10, f.Int(1), f.Int(2))
	fx.arr0 = f.ObjArray(heap.ClassObject)
	fx.lzt = f.IntArray(1, 2, 3, 4, 0, 0, 0, 0)
	fx.goodArr = f.IntArray(1, 1<<30, 7)
	fx.dup1, fx.dup2 = f.Str("dup"), f.Str("dup")
	fx.unique = f.Str("unique")
	h := f.Instance(holder, heap.Ref(fx.dup1), heap.Ref(fx.dup2))
	for _, r := range []int{fx.emptyUnused, fx.emptyUsed, fx.list, fx.arr0, fx.lzt, fx.goodArr, h, fx.unique} {
		f.Root(r)
	}
	fx.h = f.Build(t)
	return fx
}

func TestStandardCalculator(t *testing.T) {
	for _, order := range []ScanOrder{BreadthFirst, DepthFirst} {
		t.Run(string(order), func(t *testing.T) {
			fx := buildCalcFixture(t)
			rec := &captureRecorder{}
			opts := DefaultOptions()
			opts.Order = order
			calc := NewStandardCalculator(fx.h, rec, opts)
			assert.Equal(t, 0, calc.ProgressPercentage())

			hs, err := calc.Calculate(context.Background())
			require.NoError(t, err)
			assert.True(t, rec.initialized)
			assert.Equal(t, 100, calc.ProgressPercentage())

			// map 40 bytes, list 24 + Object[10] 56
			assert.Contains(t, rec.findings, finding{fx.emptyUnused, support.EmptyUnused, 40})
			assert.Contains(t, rec.findings, finding{fx.emptyUsed, support.EmptyUsed, 40})
			assert.Contains(t, rec.findings, finding{fx.list, support.SparseSmall, 8 * 4})
			assert.Contains(t, rec.findings, finding{fx.list, support.Small, 80 - (2*4 + 16)})
			assert.Contains(t, rec.findings, finding{fx.list, support.Boxed, 80 + (16+4-4)*2 - 16})
			assert.Contains(t, rec.findings, finding{fx.arr0, support.LengthZero, 16})
			assert.Contains(t, rec.findings, finding{fx.lzt, support.LZT, 16})
			assert.Contains(t, rec.findings, finding{fx.lzt, support.UnusedHiBytes, 24})
			assert.Contains(t, rec.good, fx.goodArr)

			assert.Equal(t, 3, hs.NumCols)
			assert.Equal(t, 1, hs.ColProblems.Count(support.EmptyUnused))
			assert.Equal(t, int64(40), hs.ColProblems.Overhead(support.EmptyUnused))
			assert.Equal(t, int64(56), hs.ColProblems.Overhead(support.Small))
			assert.Equal(t, 1, hs.NumObjArrays)
			assert.Equal(t, 1, hs.ObjArrayProblems.Count(support.LengthZero))
			assert.Equal(t, 2, hs.NumValueArrays)
			assert.Equal(t, int64(16), hs.ValueArrayProblems.Overhead(support.LZT))
			assert.Equal(t, 1, hs.ValueArrayProblems.Count(support.UnusedHiBytes))
			assert.Equal(t, int64(24), hs.ValueArrayProblems.Overhead(support.UnusedHiBytes))

			require.GreaterOrEqual(t, len(hs.OverheadsByClass), 2)
			assert.Equal(t, "java.util.ArrayList", hs.OverheadsByClass[0].ClassName)
			assert.Equal(t, int64(32+56+96), hs.OverheadsByClass[0].Tally.TotalOverhead())
			assert.Equal(t, "java.util.HashMap", hs.OverheadsByClass[1].ClassName)

			require.Len(t, rec.dupStrings, 2)
			shallow := fx.h.Object(fx.dup1).Size
			backing := fx.h.Object(fx.h.Object(fx.dup1).Field(0).Ref).Size
			for _, d := range rec.dupStrings {
				assert.Equal(t, shallow+backing, d.inclusive)
				// one redundant String and half of the two backing arrays, split over two instances
				assert.Equal(t, (shallow+backing)/2, d.ovhd)
				assert.True(t, d.dupBacking)
				assert.Contains(t, d.chain, "app.Holder.")
			}
			assert.Equal(t, []int{fx.unique}, rec.plain)

			require.NotNil(t, hs.DupStrings)
			assert.Equal(t, 2, hs.DupStrings.NDupStrings)
			assert.Positive(t, hs.TotalProblemOverhead())
		})
	}
}

func TestStandardCalculator_SingleZeroElement(t *testing.T) {
	f := heaptest.New()
	arr := f.IntArray(0)
	f.Root(arr)
	h := f.Build(t)

	rec := &captureRecorder{}
	hs, err := NewStandardCalculator(h, rec, DefaultOptions()).Calculate(context.Background())
	require.NoError(t, err)

	size := h.Object(arr).Size
	assert.ElementsMatch(t, []finding{
		{arr, support.LengthOne, size + h.Layout().PointerSize - 4},
		{arr, support.Empty, size},
		{arr, support.LZT, 4},
		{arr, support.UnusedHiBytes, 3},
	}, rec.findings)
	assert.Empty(t, rec.good)
	assert.Equal(t, 1, hs.NumValueArrays)
}

func sortedFindings(fs []finding) []finding {
	out := append([]finding(nil), fs...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].obj != out[j].obj {
			return out[i].obj < out[j].obj
		}
		if out[i].kind != out[j].kind {
			return out[i].kind < out[j].kind
		}
		return out[i].ovhd < out[j].ovhd
	})
	return out
}

func TestStandardCalculator_SameFindingsEitherOrder(t *testing.T) {
	results := make(map[ScanOrder][]finding)
	for _, order := range []ScanOrder{DepthFirst, BreadthFirst} {
		h := buildScanFixture(t).h
		rec := &captureRecorder{}
		opts := DefaultOptions()
		opts.Order = order
		_, err := NewStandardCalculator(h, rec, opts).Calculate(context.Background())
		require.NoError(t, err)
		results[order] = sortedFindings(rec.findings)
	}
	assert.NotEmpty(t, results[DepthFirst])
	assert.Equal(t, results[DepthFirst], results[BreadthFirst])
}

func TestStandardCalculator_Cancel(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		fx := buildCalcFixture(t)
		calc := NewStandardCalculator(fx.h, nil, DefaultOptions())
		calc.Cancel()
		hs, err := calc.Calculate(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrCancelled)
		assert.Nil(t, hs)
		assert.Less(t, calc.ProgressPercentage(), 100)
	})

	t.Run("context done", func(t *testing.T) {
		fx := buildCalcFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calc := NewStandardCalculator(fx.h, nil, DefaultOptions())
		_, err := calc.Calculate(ctx)
		assert.True(t, apperrors.IsCancelled(err))
	})

	t.Run("during detailed pass", func(t *testing.T) {
		fx := buildCalcFixture(t)
		rec := &captureRecorder{}
		calc := NewStandardCalculator(fx.h, rec, DefaultOptions())
		rec.onGood = calc.Cancel
		hs, err := calc.Calculate(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrCancelled)
		assert.Nil(t, hs)
		assert.Less(t, calc.ProgressPercentage(), 100)
	})
}

func TestParseScanOrder(t *testing.T) {
	o, err := ParseScanOrder("dfs")
	require.NoError(t, err)
	assert.Equal(t, DepthFirst, o)
	_, err = ParseScanOrder("random")
	assert.Error(t, err)
}
