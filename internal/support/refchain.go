package support

import (
	"fmt"
	"strings"

	"github.com/heapscan/internal/heap"
)

// ElementKind identifies one abstracted hop of a reference chain.
type ElementKind uint8

const (
	ElemGCRoot ElementKind = iota
	ElemInstanceField
	ElemStaticField
	ElemArray
	ElemCollection
	ElemLinkedList
)

func (k ElementKind) String() string {
	switch k {
	case ElemGCRoot:
		return "gc-root"
	case ElemInstanceField:
		return "instance-field"
	case ElemStaticField:
		return "static-field"
	case ElemArray:
		return "array"
	case ElemCollection:
		return "collection"
	case ElemLinkedList:
		return "linked-list"
	default:
		return "unknown"
	}
}

// ElementID addresses a node in a RefTree.
type ElementID int32

// NoElement is the parent of GC root nodes.
const NoElement ElementID = -1

type element struct {
	kind   ElementKind
	class  *heap.Class
	field  int
	root   *heap.Root
	parent ElementID
}

type elementKey struct {
	parent ElementID
	kind   ElementKind
	class  string
	field  int
}

// RefTree is an arena of reference chain nodes. Each node stores its parent
// index, and a node is created once per distinct (parent, kind, class, field),
// so chains with a common prefix share their nodes.
type RefTree struct {
	nodes []element
	index map[elementKey]ElementID
	roots map[*heap.Root]ElementID
}

// NewRefTree creates an empty tree.
func NewRefTree() *RefTree {
	return &RefTree{
		index: make(map[elementKey]ElementID),
		roots: make(map[*heap.Root]ElementID),
	}
}

// Len returns the number of nodes.
func (t *RefTree) Len() int {
	return len(t.nodes)
}

// Root returns the node for a GC root.
func (t *RefTree) Root(r *heap.Root) Chain {
	if id, ok := t.roots[r]; ok {
		return Chain{tree: t, id: id}
	}
	id := t.add(element{kind: ElemGCRoot, root: r, field: -1, parent: NoElement})
	t.roots[r] = id
	return Chain{tree: t, id: id}
}

// Child returns the node below parent with the given shape, creating it on first use.
func (t *RefTree) Child(parent Chain, kind ElementKind, class *heap.Class, field int) Chain {
	key := elementKey{parent: parent.id, kind: kind, field: field}
	if class != nil {
		key.class = class.Name
	}
	if id, ok := t.index[key]; ok {
		return Chain{tree: t, id: id}
	}
	id := t.add(element{kind: kind, class: class, field: field, parent: parent.id})
	t.index[key] = id
	return Chain{tree: t, id: id}
}

// InstanceField returns the node for a hop through instance field idx of class.
func (t *RefTree) InstanceField(parent Chain, class *heap.Class, idx int) Chain {
	return t.Child(parent, ElemInstanceField, class, idx)
}

// StaticField returns the node for a hop through static field idx of class.
func (t *RefTree) StaticField(parent Chain, class *heap.Class, idx int) Chain {
	return t.Child(parent, ElemStaticField, class, idx)
}

// Array returns the node for a hop through an element of an array of class.
func (t *RefTree) Array(parent Chain, class *heap.Class) Chain {
	return t.Child(parent, ElemArray, class, -1)
}

// Collection returns the node for a hop through an element of a collection of class.
func (t *RefTree) Collection(parent Chain, class *heap.Class) Chain {
	return t.Child(parent, ElemCollection, class, -1)
}

// LinkedList returns the node for a run of hops through field idx of linked class instances.
func (t *RefTree) LinkedList(parent Chain, class *heap.Class, idx int) Chain {
	return t.Child(parent, ElemLinkedList, class, idx)
}

func (t *RefTree) add(e element) ElementID {
	t.nodes = append(t.nodes, e)
	return ElementID(len(t.nodes) - 1)
}

// Chain is a handle to one node of a RefTree; it stands for the whole path
// from the GC root down to that node. The zero Chain is "no chain".
type Chain struct {
	tree *RefTree
	id   ElementID
}

func (c Chain) node() *element {
	return &c.tree.nodes[c.id]
}

// IsZero reports whether c refers to no node.
func (c Chain) IsZero() bool {
	return c.tree == nil
}

// ID returns the node index.
func (c Chain) ID() ElementID {
	return c.id
}

// Kind returns the kind of the last hop.
func (c Chain) Kind() ElementKind {
	return c.node().kind
}

// Class returns the class of the last hop; nil for GC roots.
func (c Chain) Class() *heap.Class {
	return c.node().class
}

// FieldIndex returns the field index of a field or linked-list hop, else -1.
func (c Chain) FieldIndex() int {
	return c.node().field
}

// GCRoot returns the root of a GC root node, else nil.
func (c Chain) GCRoot() *heap.Root {
	return c.node().root
}

// Referer returns the chain one hop closer to the root, or the zero Chain.
func (c Chain) Referer() Chain {
	if c.IsZero() {
		return Chain{}
	}
	p := c.node().parent
	if p == NoElement {
		return Chain{}
	}
	return Chain{tree: c.tree, id: p}
}

// Depth returns the number of hops including the root.
func (c Chain) Depth() int {
	n := 0
	for e := c; !e.IsZero(); e = e.Referer() {
		n++
	}
	return n
}

// Path returns the hops from the root down to c.
func (c Chain) Path() []Chain {
	path := make([]Chain, c.Depth())
	i := len(path) - 1
	for e := c; !e.IsZero(); e = e.Referer() {
		path[i] = e
		i--
	}
	return path
}

// Equal reports whether both handles denote the same node.
func (c Chain) Equal(o Chain) bool {
	return c.tree == o.tree && c.id == o.id
}

// String formats the last hop:
// "Cls.field", "{Cls.field}" for linked lists, "Cls:field" for statics,
// "{Cls}" for collections and the class name for arrays.
func (c Chain) String() string {
	if c.IsZero() {
		return "<none>"
	}
	n := c.node()
	switch n.kind {
	case ElemGCRoot:
		return n.root.String()
	case ElemInstanceField:
		return n.class.Name + "." + fieldName(n.class, n.field)
	case ElemLinkedList:
		return "{" + n.class.Name + "." + fieldName(n.class, n.field) + "}"
	case ElemStaticField:
		name := fmt.Sprintf("#%d", n.field)
		if n.field >= 0 && n.field < len(n.class.StaticFields) {
			name = n.class.StaticFields[n.field].Name
		}
		return n.class.Name + ":" + name
	case ElemCollection:
		return "{" + n.class.Name + "}"
	case ElemArray:
		return n.class.Name
	}
	return "?"
}

// FullString formats the whole chain, innermost hop first, one per line.
func (c Chain) FullString() string {
	var sb strings.Builder
	for e := c; !e.IsZero(); e = e.Referer() {
		if sb.Len() > 0 {
			sb.WriteString("\n  <-- ")
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}

func fieldName(c *heap.Class, idx int) string {
	if idx >= 0 && idx < c.NumInstanceFields() {
		return c.FieldAt(idx).Name
	}
	return fmt.Sprintf("#%d", idx)
}
