// Package heaptest builds small JDK-shaped heaps for tests.
package heaptest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heapscan/internal/heap"
)

// KV is one map entry given by global indices.
type KV struct {
	K, V int
}

// Fixture defines the JDK classes used by collection and string tests and
// offers shortcuts to populate them.
type Fixture struct {
	B *heap.Builder

	Object, Number, String                                  *heap.Class
	Integer, Long, Short, Byte, Character, Boolean, Float   *heap.Class
	Double                                                  *heap.Class
	HashMap, HashMapNode, LinkedHashMap, LinkedHashMapEntry *heap.Class
	HashSet, LinkedHashSet, Hashtable, HashtableEntry       *heap.Class
	AbstractList, ArrayList, Vector                         *heap.Class
	LinkedList, LinkedListNode                              *heap.Class
	Reference, WeakReference, WeakHashMap, WeakHashMapEntry *heap.Class
	ConcurrentLinkedQueue, ConcurrentLinkedQueueNode        *heap.Class
	TreeMap, TreeMapEntry, ArrayDeque                       *heap.Class
	ConcurrentHashMap, ConcurrentHashMapNode                *heap.Class

	present int
}

func ref(name string) heap.Field { return heap.Field{Name: name, Type: heap.TypeObject} }
func i32(name string) heap.Field { return heap.Field{Name: name, Type: heap.TypeInt} }
func prim(name string, t heap.BasicType) heap.Field {
	return heap.Field{Name: name, Type: t}
}

// New creates a fixture with the default compressed-oops layout.
func New() *Fixture {
	return NewWithLayout(heap.DefaultLayout())
}

// NewWithLayout creates a fixture for the given layout.
func NewWithLayout(l heap.Layout) *Fixture {
	b := heap.NewBuilder(l)
	f := &Fixture{B: b, present: heap.NoRef}

	f.Object = b.DefineClass(heap.ClassObject, nil)
	f.Number = b.DefineClass("java.lang.Number", f.Object)
	f.String = b.DefineClass(heap.ClassString, f.Object, ref("value"), i32("hash"))
	f.Integer = b.DefineClass("java.lang.Integer", f.Number, i32("value"))
	f.Long = b.DefineClass("java.lang.Long", f.Number, prim("value", heap.TypeLong))
	f.Short = b.DefineClass("java.lang.Short", f.Number, prim("value", heap.TypeShort))
	f.Byte = b.DefineClass("java.lang.Byte", f.Number, prim("value", heap.TypeByte))
	f.Float = b.DefineClass("java.lang.Float", f.Number, prim("value", heap.TypeFloat))
	f.Double = b.DefineClass("java.lang.Double", f.Number, prim("value", heap.TypeDouble))
	f.Character = b.DefineClass("java.lang.Character", f.Object, prim("value", heap.TypeChar))
	f.Boolean = b.DefineClass("java.lang.Boolean", f.Object, prim("value", heap.TypeBoolean))

	abstractMap := b.DefineClass("java.util.AbstractMap", f.Object)
	f.HashMap = b.DefineClass("java.util.HashMap", abstractMap,
		ref("table"), ref("entrySet"), i32("size"), i32("modCount"), i32("threshold"),
		prim("loadFactor", heap.TypeFloat))
	f.HashMapNode = b.DefineClass("java.util.HashMap$Node", f.Object,
		i32("hash"), ref("key"), ref("value"), ref("next"))
	f.LinkedHashMap = b.DefineClass("java.util.LinkedHashMap", f.HashMap,
		ref("head"), ref("tail"), prim("accessOrder", heap.TypeBoolean))
	f.LinkedHashMapEntry = b.DefineClass("java.util.LinkedHashMap$Entry", f.HashMapNode,
		ref("before"), ref("after"))
	b.ObjectArrayClass(f.HashMapNode.Name)

	abstractSet := b.DefineClass("java.util.AbstractSet", f.Object)
	f.HashSet = b.DefineClass("java.util.HashSet", abstractSet, ref("map"))
	f.LinkedHashSet = b.DefineClass("java.util.LinkedHashSet", f.HashSet)

	dict := b.DefineClass("java.util.Dictionary", f.Object)
	f.Hashtable = b.DefineClass("java.util.Hashtable", dict,
		ref("table"), i32("count"), i32("threshold"), prim("loadFactor", heap.TypeFloat), i32("modCount"))
	f.HashtableEntry = b.DefineClass("java.util.Hashtable$Entry", f.Object,
		i32("hash"), ref("key"), ref("value"), ref("next"))
	b.ObjectArrayClass(f.HashtableEntry.Name)

	f.AbstractList = b.DefineClass("java.util.AbstractList", f.Object, i32("modCount"))
	f.ArrayList = b.DefineClass("java.util.ArrayList", f.AbstractList, ref("elementData"), i32("size"))
	f.Vector = b.DefineClass("java.util.Vector", f.AbstractList,
		ref("elementData"), i32("elementCount"), i32("capacityIncrement"))

	seqList := b.DefineClass("java.util.AbstractSequentialList", f.AbstractList)
	f.LinkedList = b.DefineClass("java.util.LinkedList", seqList, i32("size"), ref("first"), ref("last"))
	f.LinkedListNode = b.DefineClass("java.util.LinkedList$Node", f.Object, ref("item"), ref("next"), ref("prev"))

	f.Reference = b.DefineClass(heap.ClassReference, f.Object,
		ref("referent"), ref("queue"), ref("next"), ref("discovered"))
	f.WeakReference = b.DefineClass("java.lang.ref.WeakReference", f.Reference)
	f.WeakHashMap = b.DefineClass("java.util.WeakHashMap", abstractMap,
		ref("table"), i32("size"), i32("threshold"), prim("loadFactor", heap.TypeFloat), ref("queue"), i32("modCount"))
	f.WeakHashMapEntry = b.DefineClass("java.util.WeakHashMap$Entry", f.WeakReference,
		ref("value"), i32("hash"), ref("next"))
	b.ObjectArrayClass(f.WeakHashMapEntry.Name)

	f.ConcurrentLinkedQueue = b.DefineClass("java.util.concurrent.ConcurrentLinkedQueue", f.Object,
		ref("head"), ref("tail"))
	f.ConcurrentLinkedQueueNode = b.DefineClass("java.util.concurrent.ConcurrentLinkedQueue$Node", f.Object,
		ref("item"), ref("next"))

	f.TreeMap = b.DefineClass("java.util.TreeMap", abstractMap,
		ref("comparator"), ref("root"), i32("size"), i32("modCount"))
	f.TreeMapEntry = b.DefineClass("java.util.TreeMap$Entry", f.Object,
		ref("key"), ref("value"), ref("left"), ref("right"), ref("parent"), prim("color", heap.TypeBoolean))

	f.ArrayDeque = b.DefineClass("java.util.ArrayDeque", f.Object, ref("elements"), i32("head"), i32("tail"))

	f.ConcurrentHashMap = b.DefineClass("java.util.concurrent.ConcurrentHashMap", abstractMap,
		ref("table"), ref("nextTable"), prim("baseCount", heap.TypeLong), i32("sizeCtl"))
	f.ConcurrentHashMapNode = b.DefineClass("java.util.concurrent.ConcurrentHashMap$Node", f.Object,
		i32("hash"), ref("key"), ref("val"), ref("next"))
	b.ObjectArrayClass(f.ConcurrentHashMapNode.Name)
	return f
}

// Build finalizes the heap and fails the test on error.
func (f *Fixture) Build(t testing.TB) *heap.Heap {
	t.Helper()
	h, err := f.B.Build()
	require.NoError(t, err)
	return h
}

// Root registers idx as a Java frame root.
func (f *Fixture) Root(idx int) {
	f.B.AddRoot(idx, heap.RootJavaFrame, "")
}

// Instance adds an instance of c.
func (f *Fixture) Instance(c *heap.Class, values ...heap.FieldValue) int {
	return f.B.AddInstance(c, values...)
}

// Set sets a named field to reference target.
func (f *Fixture) Set(obj int, field string, target int) {
	f.B.SetField(obj, field, heap.Ref(target))
}

// SetInt sets a named primitive field.
func (f *Fixture) SetInt(obj int, field string, v int64) {
	f.B.SetField(obj, field, heap.Prim(heap.TypeInt, v))
}

// CharArray adds a char[] holding s.
func (f *Fixture) CharArray(s string) int {
	return f.B.AddValueArray(heap.TypeChar, heap.CharArrayData(s))
}

// IntArray adds an int[].
func (f *Fixture) IntArray(vals ...int32) int {
	return f.B.AddValueArray(heap.TypeInt, heap.IntArrayData(vals...))
}

// Str adds a String with its own backing char[].
func (f *Fixture) Str(s string) int {
	return f.StrOn(f.CharArray(s))
}

// StrOn adds a String backed by an existing char[].
func (f *Fixture) StrOn(backing int) int {
	return f.B.AddInstance(f.String, heap.Ref(backing))
}

// Int adds a java.lang.Integer.
func (f *Fixture) Int(v int32) int {
	return f.B.AddInstance(f.Integer, heap.Prim(heap.TypeInt, int64(v)))
}

// LongBox adds a java.lang.Long.
func (f *Fixture) LongBox(v int64) int {
	return f.B.AddInstance(f.Long, heap.Prim(heap.TypeLong, v))
}

// ObjArray adds an array of elemClass holding the given references.
func (f *Fixture) ObjArray(elemClass string, elems ...int) int {
	return f.B.AddObjectArray(f.B.ObjectArrayClass(elemClass), elems...)
}

// Present returns the shared value object used by HashSet-backed maps.
func (f *Fixture) Present() int {
	if f.present == heap.NoRef {
		f.present = f.Instance(f.Object)
	}
	return f.present
}

// HashMapCap adds a HashMap with a table of capacity cap, or no table when
// cap is 0. Entry i goes to bucket i%cap; colliding entries are chained.
func (f *Fixture) HashMapCap(cls *heap.Class, cap int, modCount int, entries ...KV) int {
	m := f.Instance(cls)
	f.SetInt(m, "size", int64(len(entries)))
	f.SetInt(m, "modCount", int64(modCount))
	if cap == 0 {
		return m
	}
	f.SetInt(m, "threshold", int64(cap*3/4))
	nodeClass := f.HashMapNode
	if cls.IsSubclassOf(f.LinkedHashMap.Name) {
		nodeClass = f.LinkedHashMapEntry
	}
	table := make([]int, cap)
	for i := range table {
		table[i] = heap.NoRef
	}
	prev := heap.NoRef
	for i, e := range entries {
		n := f.Instance(nodeClass, heap.Prim(heap.TypeInt, int64(i)), heap.Ref(e.K), heap.Ref(e.V), heap.Null())
		slot := i % cap
		if table[slot] == heap.NoRef {
			table[slot] = n
		} else {
			last := table[slot]
			for {
				next := f.B.Object(last).Field(nodeClass.FieldIndex("next")).Ref
				if next == heap.NoRef {
					break
				}
				last = next
			}
			f.Set(last, "next", n)
		}
		if nodeClass == f.LinkedHashMapEntry {
			if prev == heap.NoRef {
				f.Set(m, "head", n)
			} else {
				f.Set(prev, "after", n)
				f.Set(n, "before", prev)
			}
			f.Set(m, "tail", n)
			prev = n
		}
	}
	t := f.B.AddObjectArray(f.B.ObjectArrayClass(f.HashMapNode.Name), table...)
	f.Set(m, "table", t)
	return m
}

// HashMapOf adds a java.util.HashMap sized the way the JDK would size it.
func (f *Fixture) HashMapOf(entries ...KV) int {
	return f.HashMapCap(f.HashMap, tableCapacity(len(entries)), len(entries), entries...)
}

// HashSetOf adds a java.util.HashSet of the given elements.
func (f *Fixture) HashSetOf(elems ...int) int {
	entries := make([]KV, len(elems))
	for i, e := range elems {
		entries[i] = KV{K: e, V: f.Present()}
	}
	m := f.HashMapOf(entries...)
	s := f.Instance(f.HashSet)
	f.Set(s, "map", m)
	return s
}

// ArrayListOf adds a java.util.ArrayList with the given capacity.
func (f *Fixture) ArrayListOf(capacity int, elems ...int) int {
	l := f.Instance(f.ArrayList)
	f.SetInt(l, "size", int64(len(elems)))
	f.SetInt(l, "modCount", int64(len(elems)))
	if capacity < len(elems) {
		capacity = len(elems)
	}
	data := make([]int, capacity)
	for i := range data {
		data[i] = heap.NoRef
	}
	copy(data, elems)
	arr := f.ObjArray(heap.ClassObject, data...)
	f.Set(l, "elementData", arr)
	return l
}

// LinkedListOf adds a java.util.LinkedList.
func (f *Fixture) LinkedListOf(elems ...int) int {
	l := f.Instance(f.LinkedList)
	f.SetInt(l, "size", int64(len(elems)))
	f.SetInt(l, "modCount", int64(len(elems)))
	prev := heap.NoRef
	for _, e := range elems {
		n := f.Instance(f.LinkedListNode, heap.Ref(e), heap.Null(), heap.Ref(prev))
		if prev == heap.NoRef {
			f.Set(l, "first", n)
		} else {
			f.Set(prev, "next", n)
		}
		prev = n
	}
	if prev != heap.NoRef {
		f.Set(l, "last", prev)
	}
	return l
}

// WeakHashMapOf adds a java.util.WeakHashMap whose entries weakly refer to keys.
func (f *Fixture) WeakHashMapOf(entries ...KV) int {
	m := f.Instance(f.WeakHashMap)
	f.SetInt(m, "size", int64(len(entries)))
	f.SetInt(m, "modCount", int64(len(entries)))
	cap := tableCapacity(len(entries))
	table := make([]int, cap)
	for i := range table {
		table[i] = heap.NoRef
	}
	for i, e := range entries {
		n := f.Instance(f.WeakHashMapEntry, heap.Ref(e.K))
		f.Set(n, "value", e.V)
		slot := i % cap
		if table[slot] != heap.NoRef {
			f.Set(n, "next", table[slot])
		}
		table[slot] = n
	}
	t := f.B.AddObjectArray(f.B.ObjectArrayClass(f.WeakHashMapEntry.Name), table...)
	f.Set(m, "table", t)
	return m
}

// WeakRef adds a java.lang.ref.WeakReference to target.
func (f *Fixture) WeakRef(target int) int {
	return f.Instance(f.WeakReference, heap.Ref(target))
}

func tableCapacity(n int) int {
	cap := 16
	for cap*3/4 < n {
		cap *= 2
	}
	return cap
}
