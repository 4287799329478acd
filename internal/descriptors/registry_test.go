package descriptors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/heap/heaptest"
	"github.com/heapscan/internal/support"
)

type element struct{ key, value int }

func elements(in Instance) []element {
	var out []element
	in.Iterate(VisitorFuncs{Elem: func(k, v int) bool {
		out = append(out, element{k, v})
		return true
	}})
	return out
}

func newRegistry(t *testing.T, f *heaptest.Fixture) (*heap.Heap, *heap.Marks, *Registry) {
	t.Helper()
	h := f.Build(t)
	marks := heap.NewMarksFor(h)
	return h, marks, NewRegistry(h, marks)
}

func TestRegistry_HashMap(t *testing.T) {
	f := heaptest.New()
	k1, v1, k2, v2 := f.Str("a"), f.Int(1), f.Str("b"), f.Int(2)
	m := f.HashMapOf(heaptest.KV{K: k1, V: v1}, heaptest.KV{K: k2, V: v2})
	h, marks, r := newRegistry(t, f)

	in := r.Describe(h.Object(m))
	require.NotNil(t, in)
	d := in.ClassDescriptor()
	assert.True(t, d.IsMap())
	assert.True(t, d.CanDetermineModCount())
	assert.True(t, d.IsImplClass(f.HashMapNode))
	assert.False(t, d.IsImplClass(f.Integer))
	assert.True(t, d.IsInImplementationOf("java.util.HashSet"))
	assert.False(t, d.HasOtherCollectionInImpl())
	assert.Equal(t, int64(2), in.ModCount())

	assert.Equal(t, 2, in.NumElements())
	// map 40 + Node[16] 80 + 2 nodes of 32
	assert.Equal(t, 184, in.ImplSize())
	table := h.Object(m).Field(f.HashMap.FieldIndex("table")).Ref
	assert.True(t, marks.IsImpl(table))
	assert.False(t, marks.IsImpl(k1), "keys are not implementation objects")

	assert.ElementsMatch(t, []element{{k1, v1}, {k2, v2}}, elements(in))

	sp, ok := in.(Sparse)
	require.True(t, ok)
	assert.Equal(t, 16, sp.Capacity())
	assert.Equal(t, 16, sp.DefaultCapacity())
	assert.Equal(t, (16-2)*4, sp.SparsenessOverhead(4))

	key, value := in.SampleKeyValue()
	require.NotNil(t, key)
	require.NotNil(t, value)
	assert.Equal(t, heap.ClassString, key.Class.Name)
	assert.Equal(t, "java.lang.Integer", value.Class.Name)

	again := r.Describe(h.Object(m))
	assert.Equal(t, h.Object(m).Size, again.ImplSize(), "flagged objects are not counted twice")
}

func TestRegistry_DenseHashMapIsNotSparse(t *testing.T) {
	f := heaptest.New()
	entries := make([]heaptest.KV, 12)
	for i := range entries {
		entries[i] = heaptest.KV{K: f.Int(int32(i)), V: f.Int(int32(-i))}
	}
	m := f.HashMapOf(entries...)
	h, _, r := newRegistry(t, f)

	sp := r.Describe(h.Object(m)).(Sparse)
	assert.Equal(t, -1, sp.SparsenessOverhead(4))
}

func TestRegistry_HashSet(t *testing.T) {
	f := heaptest.New()
	a, b := f.Str("a"), f.Str("b")
	s := f.HashSetOf(a, b)
	h, _, r := newRegistry(t, f)

	assert.True(t, r.IsCollection(f.HashSet))
	assert.True(t, r.HasCollectionInImpl(f.HashSet))
	assert.False(t, r.HasCollectionInImpl(f.HashMap))

	in := r.Describe(h.Object(s))
	require.NotNil(t, in)
	assert.False(t, in.ClassDescriptor().IsMap())
	assert.True(t, in.ClassDescriptor().IsImplClass(f.HashMap))
	assert.Equal(t, 2, in.NumElements())
	// set 16 + map 40 + Node[16] 80 + 2 nodes of 32
	assert.Equal(t, 200, in.ImplSize())
	assert.ElementsMatch(t, []element{{a, heap.NoRef}, {b, heap.NoRef}}, elements(in))

	sp, ok := in.(Sparse)
	require.True(t, ok)
	assert.Equal(t, 16, sp.Capacity())
}

func TestRegistry_ArrayList(t *testing.T) {
	f := heaptest.New()
	i1, i2, s1 := f.Int(1), f.Int(2), f.Str("x")
	ints := f.ArrayListOf(10, i1, i2)
	mixed := f.ArrayListOf(0, i1, s1)
	empty := f.ArrayListOf(0)
	h, _, r := newRegistry(t, f)

	in := r.Describe(h.Object(ints))
	require.NotNil(t, in)
	assert.Equal(t, 2, in.NumElements())
	// list 24 + Object[10] 56
	assert.Equal(t, 80, in.ImplSize())
	assert.Equal(t, []element{{i1, heap.NoRef}, {i2, heap.NoRef}}, elements(in))
	sample := in.SampleElement()
	require.NotNil(t, sample)
	assert.Equal(t, "java.lang.Integer", sample.Class.Name)

	sp := in.(Sparse)
	assert.Equal(t, 10, sp.Capacity())
	assert.Equal(t, 10, sp.DefaultCapacity())
	assert.Equal(t, 8*4, sp.SparsenessOverhead(4))

	assert.Nil(t, r.Describe(h.Object(mixed)).SampleElement(), "elements of different classes")

	e := r.Describe(h.Object(empty))
	assert.Equal(t, 0, e.NumElements())
	assert.Empty(t, elements(e))
	assert.False(t, e.HasExtraObjFields())
}

func TestRegistry_LinkedList(t *testing.T) {
	f := heaptest.New()
	a, b, c := f.Int(1), f.Int(2), f.Int(3)
	l := f.LinkedListOf(a, b, c)
	h, marks, r := newRegistry(t, f)

	in := r.Describe(h.Object(l))
	require.NotNil(t, in)
	_, sparse := in.(Sparse)
	assert.False(t, sparse)
	assert.Equal(t, 3, in.NumElements())
	// list 32 + 3 nodes of 24
	assert.Equal(t, 104, in.ImplSize())
	assert.Equal(t, []element{{a, heap.NoRef}, {b, heap.NoRef}, {c, heap.NoRef}}, elements(in))
	assert.True(t, marks.IsImpl(h.Object(l).Field(f.LinkedList.FieldIndex("first")).Ref))

	assert.Equal(t, []int{f.LinkedList.FieldIndex("last")}, r.BannedFields(f.LinkedList))
	assert.False(t, in.HasExtraObjFields(), "head, banned tail and primitives are all known")
}

func TestRegistry_WeakHashMap(t *testing.T) {
	f := heaptest.New()
	k, v := f.Str("key"), f.Int(7)
	m := f.WeakHashMapOf(heaptest.KV{K: k, V: v})
	h, _, r := newRegistry(t, f)

	in := r.Describe(h.Object(m))
	require.NotNil(t, in)
	assert.Equal(t, []element{{k, v}}, elements(in))

	refNext := f.WeakHashMapEntry.FieldIndex("next")
	ownNext := f.WeakHashMapEntry.LastFieldIndex("next")
	require.NotEqual(t, refNext, ownNext)
	assert.Contains(t, r.BannedFields(f.WeakHashMapEntry), refNext)
	assert.NotContains(t, r.BannedFields(f.WeakHashMapEntry), ownNext)
	assert.Empty(t, r.BannedFields(f.WeakReference))
}

func TestRegistry_LinkedHashMapBannedFields(t *testing.T) {
	f := heaptest.New()
	h, _, r := newRegistry(t, f)

	banned := r.BannedFields(f.LinkedHashMap)
	assert.ElementsMatch(t, []int{
		f.LinkedHashMap.FieldIndex("head"),
		f.LinkedHashMap.FieldIndex("tail"),
	}, banned)
	assert.ElementsMatch(t, []int{
		f.LinkedHashMapEntry.FieldIndex("before"),
		f.LinkedHashMapEntry.FieldIndex("after"),
	}, r.BannedFields(f.LinkedHashMapEntry))
	assert.Same(t, f.LinkedHashMap, r.ClassDescriptor(h.ClassByName("java.util.LinkedHashMap")).Class)
}

func TestRegistry_TreeMap(t *testing.T) {
	f := heaptest.New()
	k1, k2, k3 := f.Int(1), f.Int(2), f.Int(3)
	left := f.Instance(f.TreeMapEntry, heap.Ref(k1), heap.Ref(k1))
	right := f.Instance(f.TreeMapEntry, heap.Ref(k3), heap.Ref(k3))
	root := f.Instance(f.TreeMapEntry, heap.Ref(k2), heap.Ref(k2), heap.Ref(left), heap.Ref(right))
	m := f.Instance(f.TreeMap, heap.Null(), heap.Ref(root), heap.Prim(heap.TypeInt, 3))
	h, _, r := newRegistry(t, f)

	in := r.Describe(h.Object(m))
	require.NotNil(t, in)
	assert.Equal(t, 3, in.NumElements())
	assert.Equal(t, []element{{k2, k2}, {k1, k1}, {k3, k3}}, elements(in))
	assert.Equal(t, h.Object(m).Size+3*f.TreeMapEntry.InstanceSize, in.ImplSize())
}

func TestRegistry_StopsIteration(t *testing.T) {
	f := heaptest.New()
	l := f.ArrayListOf(0, f.Int(1), f.Int(2), f.Int(3))
	h, _, r := newRegistry(t, f)

	n := 0
	r.Describe(h.Object(l)).Iterate(VisitorFuncs{Elem: func(int, int) bool {
		n++
		return false
	}})
	assert.Equal(t, 1, n)

	skipped := 0
	r.Describe(h.Object(l)).Iterate(VisitorFuncs{
		Impl: func(*heap.Object) bool { return false },
		Elem: func(int, int) bool { skipped++; return true },
	})
	assert.Zero(t, skipped, "rejecting the backing array skips its elements")
}

func TestRegistry_Subclass(t *testing.T) {
	f := heaptest.New()
	cache := f.B.DefineClass("app.Cache", f.HashMap, heap.Field{Name: "owner", Type: heap.TypeObject})
	owner := f.Str("owner")
	k := f.Int(1)
	m := f.HashMapCap(cache, 16, 1, heaptest.KV{K: k, V: k})
	f.Set(m, "owner", owner)
	h, _, r := newRegistry(t, f)

	d := r.ClassDescriptor(cache)
	require.NotNil(t, d)
	assert.Equal(t, "app.Cache", d.Name())
	assert.True(t, d.IsMap())
	assert.True(t, d.IsImplClass(f.HashMapNode))
	assert.NotSame(t, r.ClassDescriptor(f.HashMap), d)

	in := r.Describe(h.Object(m))
	assert.Equal(t, 1, in.NumElements())
	require.True(t, in.HasExtraObjFields())
	fields := append([]heap.FieldValue(nil), h.Object(m).Fields...)
	in.FilterExtraObjFields(fields)
	var kept []string
	for i, v := range fields {
		if v.Ref >= 0 {
			kept = append(kept, cache.FieldAt(i).Name)
		}
	}
	assert.Equal(t, []string{"owner"}, kept, "entrySet is null, table is implementation")

	d.AddProblem(support.Small, 10)
	assert.Zero(t, r.ClassDescriptor(f.HashMap).Tally.TotalCount(), "subclass tallies are separate")
}

func TestRegistry_NotACollection(t *testing.T) {
	f := heaptest.New()
	s := f.Str("plain")
	arr := f.IntArray(1, 2)
	h, _, r := newRegistry(t, f)

	assert.Nil(t, r.Describe(h.Object(s)))
	assert.Nil(t, r.Describe(h.Object(arr)))
	assert.Nil(t, r.Describe(nil))
	assert.False(t, r.IsCollection(f.String))
	assert.Nil(t, r.ClassDescriptor(f.Integer))
	assert.Same(t, h, r.Snapshot())
}

func TestRegistry_OverheadsByClass(t *testing.T) {
	f := heaptest.New()
	arr := f.ObjArray(heap.ClassObject)
	h, _, r := newRegistry(t, f)

	ad := r.ArrayDescriptor(h.Object(arr))
	assert.True(t, ad.IsArray())
	assert.Same(t, ad, r.ArrayDescriptor(h.Object(arr)))

	r.ClassDescriptor(f.HashMap).AddProblem(support.Boxed, 100)
	r.ClassDescriptor(f.ArrayList).AddProblem(support.Small, 150)
	r.ClassDescriptor(f.ArrayList).AddProblem(support.SparseSmall, 50)
	ad.AddProblem(support.LengthZero, 16)

	got := r.OverheadsByClass()
	require.Len(t, got, 3)
	assert.Equal(t, "java.util.ArrayList", got[0].ClassName)
	assert.Equal(t, int64(200), got[0].Tally.TotalOverhead())
	assert.Equal(t, 2, got[0].Tally.TotalCount())
	assert.Equal(t, "java.util.HashMap", got[1].ClassName)
	assert.Equal(t, "java.lang.Object[]", got[2].ClassName)

	info := ArrayInfo{Length: 3, Size: 32}
	assert.Equal(t, 3, info.NumElements())
	assert.Equal(t, 32, info.ImplSize())
}
