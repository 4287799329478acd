package descriptors

import (
	"sort"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// family registers one JDK collection class. The first binder that fits
// the class in the snapshot wins, which covers layout changes between JDK
// versions.
type family struct {
	name    string
	isMap   bool
	impl    []string
	parents []string
	binders []binder
}

const (
	hashMap       = "java.util.HashMap"
	linkedHashMap = "java.util.LinkedHashMap"
	hashSet       = "java.util.HashSet"
	linkedHashSet = "java.util.LinkedHashSet"
	treeMap       = "java.util.TreeMap"
	treeSet       = "java.util.TreeSet"
	chm           = "java.util.concurrent.ConcurrentHashMap"
	cowList       = "java.util.concurrent.CopyOnWriteArrayList"
	cowSet        = "java.util.concurrent.CopyOnWriteArraySet"
)

var (
	hashMapImpl = []string{
		"java.util.HashMap$Node", "java.util.HashMap$Node[]", "java.util.HashMap$TreeNode",
		"java.util.HashMap$Entry", "java.util.HashMap$Entry[]",
	}
	linkedHashMapImpl = append([]string{"java.util.LinkedHashMap$Entry"}, hashMapImpl...)
	hashtableImpl     = []string{"java.util.Hashtable$Entry", "java.util.Hashtable$Entry[]"}
	chmImpl           = []string{
		"java.util.concurrent.ConcurrentHashMap$Node", "java.util.concurrent.ConcurrentHashMap$Node[]",
		"java.util.concurrent.ConcurrentHashMap$TreeBin", "java.util.concurrent.ConcurrentHashMap$TreeNode",
		"java.util.concurrent.ConcurrentHashMap$ForwardingNode",
	}
	treeMapImpl = []string{"java.util.TreeMap$Entry", "java.util.TreeMap$Node"}
)

var families = []family{
	{name: hashMap, isMap: true, impl: hashMapImpl, parents: []string{hashSet},
		binders: []binder{hashTable("size", "table", "key", "value", 16)}},
	{name: linkedHashMap, isMap: true, impl: linkedHashMapImpl, parents: []string{linkedHashSet},
		binders: []binder{hashTable("size", "table", "key", "value", 16)}},
	{name: hashSet, impl: append([]string{hashMap}, hashMapImpl...),
		binders: []binder{wrapper("map", true)}},
	{name: linkedHashSet, impl: append([]string{linkedHashMap}, linkedHashMapImpl...),
		binders: []binder{wrapper("map", true)}},
	{name: "java.util.ArrayList", binders: []binder{arrayBacked("size", "elementData|array", 10)}},
	{name: "java.util.Vector", binders: []binder{arrayBacked("elementCount", "elementData", 10)}},
	{name: "java.util.Stack", binders: []binder{arrayBacked("elementCount", "elementData", 10)}},
	{name: "java.util.Hashtable", isMap: true, impl: hashtableImpl,
		binders: []binder{hashTable("count|size", "table", "key", "value", 11)}},
	{name: "java.util.Properties", isMap: true, impl: append([]string{chm}, append(chmImpl, hashtableImpl...)...),
		binders: []binder{wrapper("map", false), hashTable("count|size", "table", "key", "value", 11)}},
	{name: chm, isMap: true, impl: chmImpl, parents: []string{"java.util.Properties"},
		binders: []binder{hashTable("", "table", "key", "val", 16)}},
	{name: "java.util.WeakHashMap", isMap: true,
		impl:    []string{"java.util.WeakHashMap$Entry", "java.util.WeakHashMap$Entry[]"},
		binders: []binder{hashTable("size", "table", "referent", "value", 16)}},
	{name: treeMap, isMap: true, impl: treeMapImpl, parents: []string{treeSet},
		binders: []binder{tree("size", "root", "key", "value")}},
	{name: treeSet, impl: append([]string{treeMap}, treeMapImpl...),
		binders: []binder{wrapper("m", true)}},
	{name: "java.util.LinkedList",
		impl:    []string{"java.util.LinkedList$Node", "java.util.LinkedList$Entry"},
		binders: []binder{linked("size", "header|first|voidLink", "element|item|data")}},
	{name: "java.util.concurrent.ArrayBlockingQueue", binders: []binder{arrayBacked("count", "items", 0)}},
	{name: "java.util.ArrayDeque", binders: []binder{arrayBacked("", "elements", 16)}},
	{name: "java.util.concurrent.ConcurrentLinkedQueue",
		impl:    []string{"java.util.concurrent.ConcurrentLinkedQueue$Node"},
		binders: []binder{linked("", "head", "item")}},
	{name: cowList, parents: []string{cowSet}, binders: []binder{fullArray("array")}},
	{name: cowSet, impl: []string{cowList}, binders: []binder{wrapper("al", false)}},
	{name: "java.util.PriorityQueue", binders: []binder{arrayBacked("size", "queue", 11)}},
}

// bannedFields lists back and tail links that scanners never follow.
var bannedFields = []struct {
	class  string
	fields []string
}{
	{linkedHashMap, []string{"header", "head", "tail"}},
	{"java.util.LinkedHashMap$Entry", []string{"before", "after"}},
	{"java.util.LinkedList", []string{"last"}},
	{"java.util.concurrent.ConcurrentLinkedQueue", []string{"tail"}},
}

// weakEntryClass has two "next" fields; the one inherited from
// java.lang.ref.Reference is banned.
const weakEntryClass = "java.util.WeakHashMap$Entry"

// Registry maps classes of one snapshot to collection descriptors.
// It is not safe for concurrent use.
type Registry struct {
	snap    heap.Snapshot
	marks   *heap.Marks
	byClass []*ClassDescriptor
	arrays  map[*heap.Class]*ClassDescriptor
	banned  [][]int
}

// NewRegistry recognizes the collection classes of snap. Implementation
// objects are flagged in marks as their collections are sized.
func NewRegistry(snap heap.Snapshot, marks *heap.Marks) *Registry {
	classes := snap.Classes()
	r := &Registry{
		snap:    snap,
		marks:   marks,
		byClass: make([]*ClassDescriptor, len(classes)),
		arrays:  make(map[*heap.Class]*ClassDescriptor),
		banned:  make([][]int, len(classes)),
	}
	r.resolveBannedFields(classes)

	registered := make(map[*heap.Class]*ClassDescriptor)
	for i := range families {
		c := snap.ClassByName(families[i].name)
		if c == nil {
			continue
		}
		if d := r.newDescriptor(c, &families[i]); d != nil {
			registered[c] = d
			r.byClass[c.Index] = d
		}
	}
	for _, c := range classes {
		if r.byClass[c.Index] != nil {
			continue
		}
		for s := c.Super; s != nil; s = s.Super {
			if base, ok := registered[s]; ok {
				sub := base.forSubclass(c)
				sub.known = r.knownFields(c, base.layout)
				r.byClass[c.Index] = sub
				break
			}
		}
	}
	return r
}

func (r *Registry) newDescriptor(c *heap.Class, f *family) *ClassDescriptor {
	var l layout
	for _, b := range f.binders {
		if l = b(c); l != nil {
			break
		}
	}
	if l == nil {
		return nil
	}
	d := &ClassDescriptor{
		Class:             c,
		isMap:             f.isMap,
		modCountIdx:       -1,
		implClasses:       make(map[string]struct{}, len(f.impl)),
		parents:           f.parents,
		hasOtherColInImpl: isWrapper(l),
		layout:            l,
		known:             r.knownFields(c, l),
	}
	for _, name := range f.impl {
		d.implClasses[name] = struct{}{}
	}
	if i := c.FieldIndex("modCount"); i >= 0 {
		if t := c.FieldAt(i).Type; t == heap.TypeInt || t == heap.TypeLong {
			d.modCountIdx = i
		}
	}
	return d
}

func isWrapper(l layout) bool {
	_, ok := l.(*wrapperLayout)
	return ok
}

// knownFields returns the indices of implementation, banned and primitive
// fields of c, or nil if c has no other reference fields.
func (r *Registry) knownFields(c *heap.Class, l layout) []int {
	n := c.NumInstanceFields()
	known := make([]bool, n)
	for _, i := range r.banned[c.Index] {
		known[i] = true
	}
	for _, name := range l.knownFields() {
		if i := c.LastFieldIndex(name); i >= 0 {
			known[i] = true
		}
	}
	var out []int
	for i, f := range c.InstanceFields() {
		if f.Type != heap.TypeObject {
			known[i] = true
		}
		if known[i] {
			out = append(out, i)
		}
	}
	if len(out) == n {
		return nil
	}
	return out
}

func (r *Registry) resolveBannedFields(classes []*heap.Class) {
	own := make(map[*heap.Class][]int)
	for _, b := range bannedFields {
		c := r.snap.ClassByName(b.class)
		if c == nil {
			continue
		}
		for _, f := range b.fields {
			if i := c.LastFieldIndex(f); i >= 0 {
				own[c] = append(own[c], i)
			}
		}
	}
	if c := r.snap.ClassByName(weakEntryClass); c != nil {
		if first, last := c.FieldIndex("next"), c.LastFieldIndex("next"); first >= 0 && first != last {
			own[c] = append(own[c], first)
		}
	}
	for _, c := range classes {
		var banned []int
		for s := c; s != nil; s = s.Super {
			banned = append(banned, own[s]...)
		}
		r.banned[c.Index] = banned
	}
}

// Snapshot returns the snapshot the registry describes.
func (r *Registry) Snapshot() heap.Snapshot {
	return r.snap
}

// BannedFields returns the flat indices of fields of c that scanners skip.
func (r *Registry) BannedFields(c *heap.Class) []int {
	return r.banned[c.Index]
}

// IsCollection reports whether c is a recognized collection class.
func (r *Registry) IsCollection(c *heap.Class) bool {
	return r.byClass[c.Index] != nil
}

// ClassDescriptor returns the descriptor of collection class c, or nil.
func (r *Registry) ClassDescriptor(c *heap.Class) *ClassDescriptor {
	return r.byClass[c.Index]
}

// HasCollectionInImpl reports whether c is a collection wrapping another one.
func (r *Registry) HasCollectionInImpl(c *heap.Class) bool {
	d := r.byClass[c.Index]
	return d != nil && d.hasOtherColInImpl
}

// Describe returns a descriptor for o if it is an instance of a collection
// class, otherwise nil. Instances backed by a slot array also implement Sparse.
func (r *Registry) Describe(o *heap.Object) Instance {
	if o == nil || o.Kind != heap.KindInstance {
		return nil
	}
	d := r.byClass[o.Class.Index]
	if d == nil {
		return nil
	}
	c := &collection{reg: r, obj: o, desc: d, implSize: -1, numEls: -1}
	if sl, ok := d.layout.(sparseLayout); ok {
		return sparseCollection{collection: c, sparse: sl}
	}
	return c
}

// ArrayDescriptor returns the descriptor of the class of a standalone array.
func (r *Registry) ArrayDescriptor(arr *heap.Object) *ClassDescriptor {
	if d, ok := r.arrays[arr.Class]; ok {
		return d
	}
	d := &ClassDescriptor{Class: arr.Class, isArray: true, modCountIdx: -1}
	r.arrays[arr.Class] = d
	return d
}

// OverheadsByClass returns the problem tally of every collection and array
// class with non-zero overhead, largest first.
func (r *Registry) OverheadsByClass() []support.ClassOverhead {
	var out []support.ClassOverhead
	add := func(d *ClassDescriptor) {
		if d != nil && d.Tally.TotalOverhead() != 0 {
			out = append(out, support.ClassOverhead{ClassName: d.Class.Name, Tally: d.Tally})
		}
	}
	for _, d := range r.byClass {
		add(d)
	}
	for _, d := range r.arrays {
		add(d)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := out[i].Tally.TotalOverhead(), out[j].Tally.TotalOverhead()
		if oi != oj {
			return oi > oj
		}
		return out[i].ClassName < out[j].ClassName
	})
	return out
}
