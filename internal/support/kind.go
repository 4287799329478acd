// Package support holds the result-side types shared by the analysis and
// its consumers: problem kinds, reference chains, the recorder sink and the
// aggregate heap statistics.
package support

// ProblemKind enumerates memory overhead anti-patterns.
type ProblemKind int

const (
	// EmptyUnused is an empty collection that was never modified.
	EmptyUnused ProblemKind = iota
	// EmptyUsed is an empty collection that held elements at some point.
	EmptyUsed
	// Empty is an empty collection or array whose history is unknown.
	Empty
	// SparseSmall is a collection with mostly empty slots and at most default capacity.
	SparseSmall
	// SparseLarge is a collection with mostly empty slots above default capacity.
	SparseLarge
	// Boxed is a collection or array holding boxed numbers.
	Boxed
	// Bar is a "vertical bar" 2-D structure: many tiny inner arrays.
	Bar
	// WeakMapWithBackRefs is a weak map whose values strongly refer to its keys.
	WeakMapWithBackRefs
	// LengthZero is an array of length 0.
	LengthZero
	// LengthOne is an array of length 1.
	LengthOne
	// LZT is a primitive array with a long zero tail.
	LZT
	// UnusedHiBytes is a primitive array whose values never use their high bytes.
	UnusedHiBytes
	// Small is a collection with few elements relative to its fixed cost.
	Small
	// SparseArray is an object array with more than half of its slots null.
	SparseArray

	NumProblemKinds
)

var kindNames = [NumProblemKinds]string{
	EmptyUnused:         "EMPTY_UNUSED",
	EmptyUsed:           "EMPTY_USED",
	Empty:               "EMPTY",
	SparseSmall:         "SPARSE_SMALL",
	SparseLarge:         "SPARSE_LARGE",
	Boxed:               "BOXED",
	Bar:                 "BAR",
	WeakMapWithBackRefs: "WEAK_MAP_WITH_BACK_REFS",
	LengthZero:          "LENGTH_ZERO",
	LengthOne:           "LENGTH_ONE",
	LZT:                 "LZT",
	UnusedHiBytes:       "UNUSED_HI_BYTES",
	Small:               "SMALL",
	SparseArray:         "SPARSE_ARRAY",
}

var kindDescriptions = [NumProblemKinds]string{
	EmptyUnused:         "empty, never used",
	EmptyUsed:           "empty, used before",
	Empty:               "empty",
	SparseSmall:         "sparse, small",
	SparseLarge:         "sparse, large",
	Boxed:               "boxed numbers",
	Bar:                 "vertical bar",
	WeakMapWithBackRefs: "weak map with value-to-key references",
	LengthZero:          "length 0",
	LengthOne:           "length 1",
	LZT:                 "long zero tail",
	UnusedHiBytes:       "unused high bytes",
	Small:               "small",
	SparseArray:         "sparse array",
}

func (k ProblemKind) String() string {
	if k < 0 || k >= NumProblemKinds {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// Description returns a short human-readable label.
func (k ProblemKind) Description() string {
	if k < 0 || k >= NumProblemKinds {
		return "unknown"
	}
	return kindDescriptions[k]
}

// ParseProblemKind returns the kind with the given String form.
func ParseProblemKind(s string) (ProblemKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return ProblemKind(k), true
		}
	}
	return 0, false
}

// Tally counts findings and sums their overhead per kind.
type Tally struct {
	Counts    [NumProblemKinds]int
	Overheads [NumProblemKinds]int64
}

// Add records one finding.
func (t *Tally) Add(k ProblemKind, ovhd int) {
	t.Counts[k]++
	t.Overheads[k] += int64(ovhd)
}

// Count returns the number of findings of kind k.
func (t *Tally) Count(k ProblemKind) int {
	return t.Counts[k]
}

// Overhead returns the summed overhead of kind k.
func (t *Tally) Overhead(k ProblemKind) int64 {
	return t.Overheads[k]
}

// TotalOverhead sums overhead over all kinds.
func (t *Tally) TotalOverhead() int64 {
	var sum int64
	for _, o := range t.Overheads {
		sum += o
	}
	return sum
}

// TotalCount sums findings over all kinds.
func (t *Tally) TotalCount() int {
	n := 0
	for _, c := range t.Counts {
		n += c
	}
	return n
}

// Merge adds other into t.
func (t *Tally) Merge(other *Tally) {
	for k := range t.Counts {
		t.Counts[k] += other.Counts[k]
		t.Overheads[k] += other.Overheads[k]
	}
}
