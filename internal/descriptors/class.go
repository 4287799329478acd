// Package descriptors recognizes JDK collection classes in a heap snapshot
// and describes their instances: element count, implementation size,
// capacity, and iteration over logical elements.
package descriptors

import (
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// ClassDescriptor describes a collection class, or an array class when the
// array is analyzed on its own. It also accumulates the problems found in
// instances of that class.
type ClassDescriptor struct {
	Class *heap.Class
	Tally support.Tally

	isMap             bool
	isArray           bool
	modCountIdx       int
	implClasses       map[string]struct{}
	parents           []string
	hasOtherColInImpl bool
	layout            layout
	// known holds the indices of implementation, banned and primitive
	// fields; nil when the class has no other reference fields.
	known []int
}

// Name returns the class name.
func (d *ClassDescriptor) Name() string {
	return d.Class.Name
}

// IsMap reports whether instances hold key/value pairs.
func (d *ClassDescriptor) IsMap() bool {
	return d.isMap
}

// IsArray reports whether this describes a standalone array class.
func (d *ClassDescriptor) IsArray() bool {
	return d.isArray
}

// CanDetermineModCount reports whether instances carry an int or long modCount field.
func (d *ClassDescriptor) CanDetermineModCount() bool {
	return d.modCountIdx >= 0
}

// IsImplClass reports whether objects of class c belong to the
// implementation of collections of this class.
func (d *ClassDescriptor) IsImplClass(c *heap.Class) bool {
	_, ok := d.implClasses[c.Name]
	return ok
}

// IsInImplementationOf reports whether instances of this class are used to
// implement collections of class name, like HashMap inside HashSet.
func (d *ClassDescriptor) IsInImplementationOf(name string) bool {
	for _, p := range d.parents {
		if p == name {
			return true
		}
	}
	return false
}

// HasOtherCollectionInImpl reports whether instances wrap another collection.
func (d *ClassDescriptor) HasOtherCollectionInImpl() bool {
	return d.hasOtherColInImpl
}

// AddProblem records one problematic instance.
func (d *ClassDescriptor) AddProblem(kind support.ProblemKind, ovhd int) {
	d.Tally.Add(kind, ovhd)
}

// forSubclass returns a descriptor for a subclass of d's class with the
// same layout and a fresh tally.
func (d *ClassDescriptor) forSubclass(c *heap.Class) *ClassDescriptor {
	sub := *d
	sub.Class = c
	sub.Tally = support.Tally{}
	return &sub
}

// ArrayInfo is the CollectionInfo of a standalone array.
type ArrayInfo struct {
	Length int
	Size   int
}

// NumElements returns the array length.
func (a ArrayInfo) NumElements() int { return a.Length }

// ImplSize returns the array size.
func (a ArrayInfo) ImplSize() int { return a.Size }
