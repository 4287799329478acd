package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/heap/heaptest"
	"github.com/heapscan/internal/support"
	apperrors "github.com/heapscan/pkg/errors"
)

// recordingChecker counts handler calls per object and remembers the
// chain reported for each.
type recordingChecker struct {
	reg     *descriptors.Registry
	marks   *heap.Marks
	scanner Scanner

	seen   map[int]int
	chains map[int]string
	// visited lists handled objects in visit order.
	visited []int
	// cancelAfter cancels the scan once that many objects were handled.
	cancelAfter int
	// mismatches counts objects whose incrementally built chain differs
	// from one condensed from scratch.
	mismatches int
}

// rebuild discards the cache and condenses the whole concrete chain.
func (t *StackTracker) rebuild() support.Chain {
	t.valid = 0
	return t.Last()
}

func newRecordingChecker(reg *descriptors.Registry, marks *heap.Marks) *recordingChecker {
	return &recordingChecker{reg: reg, marks: marks, seen: make(map[int]int), chains: make(map[int]string)}
}

func (c *recordingChecker) record(o *heap.Object) {
	c.seen[o.Index]++
	c.visited = append(c.visited, o.Index)
	if c.cancelAfter > 0 && len(c.visited) == c.cancelAfter {
		c.scanner.Cancel()
	}
	last := c.scanner.Tracker().Last()
	c.chains[o.Index] = last.FullString()
	if st, ok := c.scanner.Tracker().(*StackTracker); ok && !st.rebuild().Equal(last) {
		c.mismatches++
	}
}

func (c *recordingChecker) HandleInstance(o *heap.Object) descriptors.Instance {
	c.record(o)
	if c.marks.IsImpl(o.Index) {
		return nil
	}
	col := c.reg.Describe(o)
	if col == nil {
		return nil
	}
	if p := c.scanner.Tracker().PointingObject(); p != nil && col.ClassDescriptor().IsInImplementationOf(p.Class.Name) {
		return nil
	}
	col.ImplSize()
	return col
}

func (c *recordingChecker) HandleObjectArray(arr *heap.Object) { c.record(arr) }

func (c *recordingChecker) HandleValueArray(arr *heap.Object) { c.record(arr) }

func (c *recordingChecker) HandleString(str *heap.Object) { c.record(str) }

type scanFixture struct {
	h *heap.Heap
	// named objects whose chains are compared across scanners
	named map[string]int
}

func node(f *heaptest.Fixture) *heap.Class {
	return f.B.DefineClass("app.Node", f.Object,
		heap.Field{Name: "next", Type: heap.TypeObject},
		heap.Field{Name: "val", Type: heap.TypeObject})
}

func buildScanFixture(t *testing.T) scanFixture {
	f := heaptest.New()
	named := make(map[string]int)
	nodeClass := node(f)

	// a hand-made linked list with a string on the first, second and last node
	nodes := make([]int, 6)
	for i := range nodes {
		nodes[i] = f.Instance(nodeClass)
	}
	for i := 0; i < len(nodes)-1; i++ {
		f.Set(nodes[i], "next", nodes[i+1])
	}
	named["first val"] = f.Str("v0")
	f.Set(nodes[0], "val", named["first val"])
	named["second val"] = f.Str("v1")
	f.Set(nodes[1], "val", named["second val"])
	named["last val"] = f.Str("v5")
	f.Set(nodes[5], "val", named["last val"])
	f.Root(nodes[0])

	// a list of subclass nodes continued by plain nodes
	subClass := f.B.DefineClass("app.SubNode", nodeClass)
	mixed := make([]int, 6)
	for i := range mixed {
		if i < 3 {
			mixed[i] = f.Instance(subClass)
		} else {
			mixed[i] = f.Instance(nodeClass)
		}
	}
	for i := 0; i < len(mixed)-1; i++ {
		f.Set(mixed[i], "next", mixed[i+1])
	}
	named["mixed sub val"] = f.Str("s2")
	f.Set(mixed[2], "val", named["mixed sub val"])
	named["mixed first plain val"] = f.Str("n3")
	f.Set(mixed[3], "val", named["mixed first plain val"])
	named["mixed last val"] = f.Str("n5")
	f.Set(mixed[5], "val", named["mixed last val"])
	f.Root(mixed[0])

	named["map key"] = f.Str("key")
	m := f.HashMapOf(heaptest.KV{K: named["map key"], V: f.Int(1)}, heaptest.KV{K: f.Str("k2"), V: f.Int(2)})
	f.Root(m)

	named["set element"] = f.Str("elem")
	f.Root(f.HashSetOf(named["set element"], f.Str("other")))

	named["list element"] = f.Int(42)
	named["list"] = f.LinkedListOf(named["list element"], f.Int(43))
	f.Root(named["list"])

	al := f.ArrayListOf(4, f.Str("a"), f.Str("b"))
	arr := f.ObjArray(heap.ClassObject, al, f.IntArray(1, 2))
	f.Root(arr)

	// a cycle and garbage nobody reaches
	a, b := f.Instance(nodeClass), f.Instance(nodeClass)
	f.Set(a, "next", b)
	f.Set(b, "next", a)
	f.Set(a, "val", f.Str("cyclic"))
	f.HashMapOf(heaptest.KV{K: f.Str("lost"), V: f.Int(9)})
	f.HashSetOf(f.Int(10))

	return scanFixture{h: f.Build(t), named: named}
}

func runScanner(t *testing.T, h *heap.Heap, order ScanOrder) *recordingChecker {
	t.Helper()
	marks := heap.NewMarksFor(h)
	reg := descriptors.NewRegistry(h, marks)
	c := newRecordingChecker(reg, marks)
	if order == DepthFirst {
		c.scanner = NewDepthFirstScanner(reg, marks, c, nil, nil)
	} else {
		c.scanner = NewBreadthFirstScanner(reg, marks, c, true, nil)
	}
	require.NoError(t, c.scanner.ScanFromRoots())
	require.NoError(t, c.scanner.ScanRemaining())

	for i := 0; i < h.NumObjects()+h.NumClasses(); i++ {
		assert.True(t, marks.IsVisited(i), "object %d not visited", i)
	}
	return c
}

func TestScanners_VisitEveryObjectOnce(t *testing.T) {
	fx := buildScanFixture(t)
	for _, order := range []ScanOrder{DepthFirst, BreadthFirst} {
		t.Run(string(order), func(t *testing.T) {
			c := runScanner(t, fx.h, order)
			for i := 0; i < fx.h.NumObjects(); i++ {
				assert.Equal(t, 1, c.seen[i], "object %d (%s)", i, fx.h.Object(i).Class.Name)
			}
			assert.Equal(t, 99, c.scanner.Progress())
		})
	}
}

func TestScanners_SameChains(t *testing.T) {
	fx := buildScanFixture(t)
	dfs := runScanner(t, fx.h, DepthFirst)
	bfs := runScanner(t, fx.h, BreadthFirst)
	assert.Zero(t, dfs.mismatches, "incremental chains differ from rebuilt ones")

	for name, idx := range fx.named {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, dfs.chains[idx], bfs.chains[idx])
		})
	}
	assert.Contains(t, dfs.chains[fx.named["last val"]], "{app.Node.next}")
	assert.Contains(t, dfs.chains[fx.named["mixed sub val"]], "{app.SubNode.next}")
	assert.Contains(t, dfs.chains[fx.named["mixed last val"]], "{app.Node.next}")
	assert.NotContains(t, dfs.chains[fx.named["mixed last val"]], "{app.SubNode.next}")
	assert.Contains(t, dfs.chains[fx.named["map key"]], "{java.util.HashMap}")
	assert.Contains(t, dfs.chains[fx.named["set element"]], "{java.util.HashSet}")
	assert.Contains(t, dfs.chains[fx.named["list element"]], "{java.util.LinkedList}")
}

func TestScanners_Cancel(t *testing.T) {
	f := heaptest.New()
	elems := make([]int, 3000)
	for i := range elems {
		elems[i] = f.Int(int32(i))
	}
	f.Root(f.ObjArray("java.lang.Integer", elems...))
	h := f.Build(t)

	for _, order := range []ScanOrder{DepthFirst, BreadthFirst} {
		t.Run(string(order), func(t *testing.T) {
			c := runCancelled(h, order)
			err := c.scanner.ScanFromRoots()
			assert.ErrorIs(t, err, apperrors.ErrCancelled)
			assert.True(t, apperrors.IsCancelled(err))
			assert.Less(t, len(c.seen), len(elems))
			assert.Less(t, c.scanner.Progress(), 100)
		})
	}

	for _, order := range []ScanOrder{DepthFirst, BreadthFirst} {
		t.Run(string(order)+" mid scan", func(t *testing.T) {
			marks := heap.NewMarksFor(h)
			reg := descriptors.NewRegistry(h, marks)
			c := newRecordingChecker(reg, marks)
			c.cancelAfter = 10
			if order == DepthFirst {
				c.scanner = NewDepthFirstScanner(reg, marks, c, nil, nil)
			} else {
				c.scanner = NewBreadthFirstScanner(reg, marks, c, true, nil)
			}
			err := c.scanner.ScanFromRoots()
			assert.ErrorIs(t, err, apperrors.ErrCancelled)
			assert.Len(t, c.visited, 10, "no object is handled after Cancel")
		})
	}
}

func runCancelled(h *heap.Heap, order ScanOrder) *recordingChecker {
	marks := heap.NewMarksFor(h)
	reg := descriptors.NewRegistry(h, marks)
	c := newRecordingChecker(reg, marks)
	if order == DepthFirst {
		c.scanner = NewDepthFirstScanner(reg, marks, c, NewClosestOffset(), nil)
	} else {
		c.scanner = NewBreadthFirstScanner(reg, marks, c, false, nil)
	}
	c.scanner.Cancel()
	return c
}

func TestScanners_SkipUnresolvedRefs(t *testing.T) {
	f := heaptest.New()
	n := f.Instance(node(f), heap.Ref(heap.Unresolved), heap.Null())
	arr := f.ObjArray(heap.ClassObject, heap.Unresolved, n)
	f.Root(arr)
	f.B.AddRoot(heap.Unresolved, heap.RootJavaFrame, "dangling")
	h := f.Build(t)

	for _, order := range []ScanOrder{DepthFirst, BreadthFirst} {
		t.Run(string(order), func(t *testing.T) {
			c := runScanner(t, h, order)
			assert.Equal(t, 1, c.seen[n])
			assert.Equal(t, 1, c.seen[arr])
		})
	}
}

func TestBreadthFirstScanner_VisitOrder(t *testing.T) {
	f := heaptest.New()
	fan := f.B.DefineClass("app.Fan", f.Object,
		heap.Field{Name: "a", Type: heap.TypeObject},
		heap.Field{Name: "b", Type: heap.TypeObject},
		heap.Field{Name: "c", Type: heap.TypeObject})
	objs := make([]int, 10)
	for i := range objs {
		objs[i] = f.Instance(fan)
	}
	// 9 -> 6 7 8, whose children interleave: 6 -> 5 1, 7 -> 4 0, 8 -> 3 2
	f.Set(objs[9], "a", objs[8])
	f.Set(objs[9], "b", objs[6])
	f.Set(objs[9], "c", objs[7])
	f.Set(objs[6], "a", objs[1])
	f.Set(objs[6], "b", objs[5])
	f.Set(objs[7], "a", objs[0])
	f.Set(objs[7], "b", objs[4])
	f.Set(objs[8], "a", objs[2])
	f.Set(objs[8], "b", objs[3])
	f.Root(objs[9])
	h := f.Build(t)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, objs)

	tests := []struct {
		name      string
		alternate bool
		want      []int
	}{
		{name: "alternating", alternate: true, want: []int{9, 6, 7, 8, 5, 4, 3, 2, 1, 0}},
		{name: "ascending", alternate: false, want: []int{9, 6, 7, 8, 0, 1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marks := heap.NewMarksFor(h)
			reg := descriptors.NewRegistry(h, marks)
			c := newRecordingChecker(reg, marks)
			c.scanner = NewBreadthFirstScanner(reg, marks, c, tt.alternate, nil)
			require.NoError(t, c.scanner.ScanFromRoots())
			assert.Equal(t, tt.want, c.visited)
		})
	}
}
