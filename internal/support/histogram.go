package support

import (
	"math/bits"
	"sort"

	"github.com/heapscan/internal/heap"
)

// LengthHistogram buckets lengths by powers of two: bucket 0 holds length 0,
// bucket i > 0 holds [2^(i-1), 2^i).
type LengthHistogram struct {
	Counts []int `json:"counts"`
}

// LengthBucket is one populated histogram bucket.
type LengthBucket struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Count int `json:"count"`
}

// Add counts one length.
func (l *LengthHistogram) Add(length int) {
	b := 0
	if length > 0 {
		b = bits.Len(uint(length))
	}
	for len(l.Counts) <= b {
		l.Counts = append(l.Counts, 0)
	}
	l.Counts[b]++
}

// Buckets returns the non-empty buckets in ascending order.
func (l *LengthHistogram) Buckets() []LengthBucket {
	var out []LengthBucket
	for b, n := range l.Counts {
		if n == 0 {
			continue
		}
		if b == 0 {
			out = append(out, LengthBucket{Min: 0, Max: 0, Count: n})
			continue
		}
		out = append(out, LengthBucket{Min: 1 << (b - 1), Max: 1<<b - 1, Count: n})
	}
	return out
}

// FieldReporter exposes per-class field usage collected during the detailed pass.
type FieldReporter interface {
	NumFields() int
	NonNullCount(fieldIdx int) int
	// PercentileEmptyFields returns fields non-null in at most maxNonNull instances.
	PercentileEmptyFields(maxNonNull int) []int
	// UnusedHiBytesFields returns fields that waste high bytes in at least
	// minBad instances, or nil.
	UnusedHiBytesFields(minBad int) *UnderutilizedFields
}

// UnderutilizedFields lists fields with unused high bytes and the bytes wasted per field.
type UnderutilizedFields struct {
	FieldIndices []int
	Overheads    []int64
}

// ClassStats is the per-class aggregate maintained by the analysis.
type ClassStats struct {
	Class         *heap.Class
	NumInstances  int
	ShallowSize   int64
	InclusiveSize int64
	Fields        FieldReporter
}

// FieldsStatus classifies a ProblemFieldsEntry.
type FieldsStatus string

const (
	SomeFieldsEmpty         FieldsStatus = "SOME_FIELDS_EMPTY"
	AllFieldsEmpty          FieldsStatus = "ALL_FIELDS_EMPTY"
	NoFields                FieldsStatus = "NO_FIELDS"
	SomeFieldsUnusedHiBytes FieldsStatus = "SOME_FIELDS_UNUSED_HI_BYTES"
)

// ProblemFieldsEntry reports fields of one class that are mostly empty or
// have unused high bytes.
type ProblemFieldsEntry struct {
	ClassName        string       `json:"class"`
	NumInstances     int          `json:"num_instances"`
	FieldNames       []string     `json:"fields"`
	DeclaringClasses []string     `json:"declaring_classes"`
	PerFieldOverhead []int64      `json:"per_field_overhead"`
	TotalOverhead    int64        `json:"total_overhead"`
	Status           FieldsStatus `json:"status"`
}

// ObjectHistogram holds ClassStats for every class of a snapshot.
type ObjectHistogram struct {
	entries []ClassStats
	ptrSize int
}

// NewObjectHistogram creates empty stats for classes. ptrSize is the size of
// a reference field.
func NewObjectHistogram(classes []*heap.Class, ptrSize int) *ObjectHistogram {
	h := &ObjectHistogram{entries: make([]ClassStats, len(classes)), ptrSize: ptrSize}
	for _, c := range classes {
		h.entries[c.Index].Class = c
	}
	return h
}

// Entry returns the stats of class c.
func (h *ObjectHistogram) Entry(c *heap.Class) *ClassStats {
	return &h.entries[c.Index]
}

// AddInstance counts one instance of c with the given shallow size.
func (h *ObjectHistogram) AddInstance(c *heap.Class, size int) {
	e := &h.entries[c.Index]
	e.NumInstances++
	e.ShallowSize += int64(size)
}

// AddInclusive attributes implementation-inclusive size to c.
func (h *ObjectHistogram) AddInclusive(c *heap.Class, size int) {
	h.entries[c.Index].InclusiveSize += int64(size)
}

// SortedByInclusiveSize returns classes with inclusive size at least min,
// largest first, ties by name.
func (h *ObjectHistogram) SortedByInclusiveSize(min int64) []*ClassStats {
	var out []*ClassStats
	for i := range h.entries {
		if h.entries[i].Class != nil && h.entries[i].InclusiveSize >= min {
			out = append(out, &h.entries[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InclusiveSize != out[j].InclusiveSize {
			return out[i].InclusiveSize > out[j].InclusiveSize
		}
		return out[i].Class.Name < out[j].Class.Name
	})
	return out
}

// NumSmallInstanceClasses returns how many classes have zero and exactly one instance.
func (h *ObjectHistogram) NumSmallInstanceClasses() (zero, one int) {
	for i := range h.entries {
		switch h.entries[i].NumInstances {
		case 0:
			zero++
		case 1:
			one++
		}
	}
	return zero, one
}

// NullFieldEntries reports classes whose fields are null or zero in at least
// the given fraction of instances, highest overhead first.
func (h *ObjectHistogram) NullFieldEntries(percentile float64) []ProblemFieldsEntry {
	var out []ProblemFieldsEntry
	for i := range h.entries {
		e := &h.entries[i]
		if e.Class == nil || e.Class.IsString() || e.NumInstances == 0 || e.Fields == nil {
			continue
		}
		maxNonNull := 0
		if percentile < 1 {
			maxNonNull = int(float64(e.NumInstances) * (1 - percentile))
		}
		nFields := e.Fields.NumFields()
		empty := e.Fields.PercentileEmptyFields(maxNonNull)
		if nFields > 0 && len(empty) == 0 {
			continue
		}
		status := SomeFieldsEmpty
		switch {
		case nFields == 0:
			status = NoFields
		case len(empty) == nFields:
			status = AllFieldsEmpty
		}
		entry := ProblemFieldsEntry{
			ClassName:        e.Class.Name,
			NumInstances:     e.NumInstances,
			Status:           status,
			FieldNames:       make([]string, len(empty)),
			DeclaringClasses: make([]string, len(empty)),
			PerFieldOverhead: make([]int64, len(empty)),
		}
		for j, idx := range empty {
			f := e.Class.FieldAt(idx)
			entry.FieldNames[j] = f.Name
			entry.DeclaringClasses[j] = e.Class.DeclaringClass(idx).Name
			entry.PerFieldOverhead[j] = int64(f.Type.Size(h.ptrSize)) * int64(e.NumInstances-e.Fields.NonNullCount(idx))
			entry.TotalOverhead += entry.PerFieldOverhead[j]
		}
		if (percentile >= 1 && status == AllFieldsEmpty) || nFields == 0 {
			entry.TotalOverhead = int64(e.Class.InstanceSize) * int64(e.NumInstances)
		}
		out = append(out, entry)
	}
	sortByOverhead(out)
	return out
}

// UnusedHiByteFieldEntries reports classes with numeric fields whose high
// bytes are unused in at least the given fraction of instances.
func (h *ObjectHistogram) UnusedHiByteFieldEntries(percentile float64) []ProblemFieldsEntry {
	var out []ProblemFieldsEntry
	for i := range h.entries {
		e := &h.entries[i]
		if e.Class == nil || e.Class.IsString() || e.NumInstances == 0 || e.Fields == nil {
			continue
		}
		minBad := e.NumInstances
		if percentile < 1 {
			minBad = int(float64(e.NumInstances) * percentile)
		}
		uf := e.Fields.UnusedHiBytesFields(minBad)
		if uf == nil {
			continue
		}
		entry := ProblemFieldsEntry{
			ClassName:        e.Class.Name,
			NumInstances:     e.NumInstances,
			Status:           SomeFieldsUnusedHiBytes,
			PerFieldOverhead: uf.Overheads,
		}
		for j, idx := range uf.FieldIndices {
			entry.FieldNames = append(entry.FieldNames, e.Class.FieldAt(idx).Name)
			entry.DeclaringClasses = append(entry.DeclaringClasses, e.Class.DeclaringClass(idx).Name)
			entry.TotalOverhead += uf.Overheads[j]
		}
		out = append(out, entry)
	}
	sortByOverhead(out)
	return out
}

func sortByOverhead(entries []ProblemFieldsEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalOverhead > entries[j].TotalOverhead
	})
}
