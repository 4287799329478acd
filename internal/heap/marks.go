package heap

import "github.com/heapscan/pkg/collections"

// Marks holds the per-session visited flags, keyed by global index.
// The object graph itself never records traversal state.
type Marks struct {
	visited *collections.Bitset
	impl    *collections.Bitset
	other   *collections.Bitset
}

// NewMarks creates an empty mark set for a snapshot with n global indices.
func NewMarks(n int) *Marks {
	return &Marks{
		visited: collections.NewBitset(n),
		impl:    collections.NewBitset(n),
		other:   collections.NewBitset(n),
	}
}

// NewMarksFor sizes a mark set for s.
func NewMarksFor(s Snapshot) *Marks {
	return NewMarks(s.NumObjects() + s.NumClasses())
}

// Visit marks idx visited and reports whether it was not visited before.
func (m *Marks) Visit(idx int) bool {
	return !m.visited.TestAndSet(idx)
}

// IsVisited reports whether idx was visited.
func (m *Marks) IsVisited(idx int) bool {
	return m.visited.Test(idx)
}

// MarkImpl flags idx as part of a collection or string implementation and
// reports whether it was not flagged before.
func (m *Marks) MarkImpl(idx int) bool {
	return !m.impl.TestAndSet(idx)
}

// IsImpl reports whether idx belongs to a collection or string implementation.
func (m *Marks) IsImpl(idx int) bool {
	return m.impl.Test(idx)
}

// MarkOther sets the auxiliary flag and reports whether it was not set before.
func (m *Marks) MarkOther(idx int) bool {
	return !m.other.TestAndSet(idx)
}

// IsOther reports whether the auxiliary flag is set.
func (m *Marks) IsOther(idx int) bool {
	return m.other.Test(idx)
}

// NumVisited returns the count of visited indices.
func (m *Marks) NumVisited() int {
	return m.visited.Count()
}
