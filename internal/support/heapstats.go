package support

import "github.com/heapscan/internal/heap"

// ShortArrayStats counts arrays (or strings) of length 0, 1, 2..4 and 5..8
// together with the overhead attributed to each bucket.
type ShortArrayStats struct {
	N0    int   `json:"n0"`
	N1    int   `json:"n1"`
	N4    int   `json:"n4"`
	N8    int   `json:"n8"`
	Ovhd0 int64 `json:"ovhd0"`
	Ovhd1 int64 `json:"ovhd1"`
	Ovhd4 int64 `json:"ovhd4"`
	Ovhd8 int64 `json:"ovhd8"`
}

// Add counts one object of the given length.
func (s *ShortArrayStats) Add(length int) {
	switch {
	case length == 0:
		s.N0++
	case length == 1:
		s.N1++
	case length <= 4:
		s.N4++
	case length <= 8:
		s.N8++
	}
}

// WrapperCount is the number of instances of one wrapper collection class.
type WrapperCount struct {
	ClassName string `json:"class"`
	Count     int    `json:"count"`
}

// LoaderCount is the number of classes defined by one class loader.
type LoaderCount struct {
	LoaderClass string `json:"loader_class"`
	LoaderIndex int    `json:"loader_index"`
	NumClasses  int    `json:"num_classes"`
}

// ClassloaderStats summarizes class loaders.
type ClassloaderStats struct {
	NumLoaders int           `json:"num_loaders"`
	Top        []LoaderCount `json:"top"`
}

// DupStringEntry describes one group of equal strings.
type DupStringEntry struct {
	Value          string `json:"value"`
	NInstances     int    `json:"n_instances"`
	NBackingArrays int    `json:"n_backing_arrays"`
	Overhead       int64  `json:"overhead"`
}

// DupStringStats summarizes string duplication.
type DupStringStats struct {
	NStrings          int              `json:"n_strings"`
	NUniqueStrings    int              `json:"n_unique_strings"`
	NBackingArrays    int              `json:"n_backing_arrays"`
	NDupStrings       int              `json:"n_dup_strings"`
	NUniqueDupStrings int              `json:"n_unique_dup_strings"`
	TotalSize         int64            `json:"total_size"`
	Overhead          int64            `json:"overhead"`
	Entries           []DupStringEntry `json:"entries"`
}

// CompressibleStringStats counts strings that could use one byte per char.
type CompressibleStringStats struct {
	NCompressed    int   `json:"n_compressed"`
	NCompressible  int   `json:"n_compressible"`
	CharArrayBytes int64 `json:"char_array_bytes"`
	Overhead       int64 `json:"overhead"`
}

// NumberEncodingStringStats counts strings that hold an int value.
type NumberEncodingStringStats struct {
	NStrings int   `json:"n_strings"`
	Overhead int64 `json:"overhead"`
}

// DupArrayEntry describes one group of equal primitive arrays.
type DupArrayEntry struct {
	ClassName string `json:"class"`
	Length    int    `json:"length"`
	ArraySize int    `json:"array_size"`
	NArrays   int    `json:"n_arrays"`
	Overhead  int64  `json:"overhead"`
	Sample    string `json:"sample"`
}

// DupArrayStats summarizes primitive array duplication.
type DupArrayStats struct {
	NArrays          int             `json:"n_arrays"`
	NUniqueArrays    int             `json:"n_unique_arrays"`
	NDupArrays       int             `json:"n_dup_arrays"`
	NUniqueDupArrays int             `json:"n_unique_dup_arrays"`
	Overhead         int64           `json:"overhead"`
	Entries          []DupArrayEntry `json:"entries"`
}

// ClassOverhead is the per-class tally of collection problems.
type ClassOverhead struct {
	ClassName string `json:"class"`
	Tally     Tally  `json:"tally"`
}

// HeapStats accumulates the aggregate results of one analysis. The overall
// pass fills the first group with the Set* methods below, the detailed pass
// the second.
type HeapStats struct {
	Layout              heap.Layout `json:"layout"`
	NClasses            int         `json:"n_classes"`
	NObjects            int         `json:"n_objects"`
	NInstances          int         `json:"n_instances"`
	NObjectArrays       int         `json:"n_object_arrays"`
	NValueArrays        int         `json:"n_value_arrays"`
	TotalObjSize        int64       `json:"total_obj_size"`
	TotalInstSize       int64       `json:"total_inst_size"`
	TotalObjArraySize   int64       `json:"total_obj_array_size"`
	TotalValueArraySize int64       `json:"total_value_array_size"`

	OvhdObjHeaders  int64 `json:"ovhd_obj_headers"`
	NEntryInstances int   `json:"n_entry_instances"`
	EntryClassSize  int64 `json:"entry_class_size"`

	Classloaders        ClassloaderStats          `json:"classloaders"`
	ShortStrings        ShortArrayStats           `json:"short_strings"`
	ShortValueArrays    ShortArrayStats           `json:"short_value_arrays"`
	ShortObjArrays      ShortArrayStats           `json:"short_obj_arrays"`
	NBoxedNumbers       int                       `json:"n_boxed_numbers"`
	OvhdBoxedNumbers    int64                     `json:"ovhd_boxed_numbers"`
	UnmodifiableClasses []WrapperCount            `json:"unmodifiable_classes"`
	SynchronizedClasses []WrapperCount            `json:"synchronized_classes"`
	DupStrings          *DupStringStats           `json:"dup_strings"`
	CompressibleStrings CompressibleStringStats   `json:"compressible_strings"`
	NumberStrings       NumberEncodingStringStats `json:"number_strings"`
	StringLengths       *LengthHistogram          `json:"string_lengths"`
	DupArrays           *DupArrayStats            `json:"dup_arrays"`

	NumCols            int              `json:"num_cols"`
	ColProblems        Tally            `json:"col_problems"`
	NumObjArrays       int              `json:"num_obj_arrays"`
	ObjArrayProblems   Tally            `json:"obj_array_problems"`
	NumValueArrays     int              `json:"num_value_arrays"`
	ValueArrayProblems Tally            `json:"value_array_problems"`
	OverheadsByClass   []ClassOverhead  `json:"overheads_by_class"`
	Histogram          *ObjectHistogram `json:"-"`
}

// SetGeneralStats sets the object counts and sizes.
func (h *HeapStats) SetGeneralStats(layout heap.Layout, nClasses, nObjects, nInstances, nObjectArrays int,
	totalObjSize, totalInstSize, totalObjArraySize int64) *HeapStats {
	h.Layout = layout
	h.NClasses = nClasses
	h.NObjects = nObjects
	h.NInstances = nInstances
	h.NObjectArrays = nObjectArrays
	h.NValueArrays = nObjects - nInstances - nObjectArrays
	h.TotalObjSize = totalObjSize
	h.TotalInstSize = totalInstSize
	h.TotalObjArraySize = totalObjArraySize
	h.TotalValueArraySize = totalObjSize - totalInstSize - totalObjArraySize
	return h
}

func (h *HeapStats) SetObjOverheadStats(ovhdObjHeaders int64, nEntryInstances int, entryClassSize int64) *HeapStats {
	h.OvhdObjHeaders = ovhdObjHeaders
	h.NEntryInstances = nEntryInstances
	h.EntryClassSize = entryClassSize
	return h
}

func (h *HeapStats) SetClassloaderStats(s ClassloaderStats) *HeapStats {
	h.Classloaders = s
	return h
}

func (h *HeapStats) SetShortObjArrayStats(s ShortArrayStats) *HeapStats {
	h.ShortObjArrays = s
	return h
}

func (h *HeapStats) SetShortPrimitiveArrayStats(s ShortArrayStats) *HeapStats {
	h.ShortValueArrays = s
	return h
}

func (h *HeapStats) SetShortStringStats(s ShortArrayStats) *HeapStats {
	h.ShortStrings = s
	return h
}

func (h *HeapStats) SetBoxedNumberStats(n int, ovhd int64) *HeapStats {
	h.NBoxedNumbers = n
	h.OvhdBoxedNumbers = ovhd
	return h
}

func (h *HeapStats) SetWrappedCollectionStats(unmodifiable, synchronized []WrapperCount) *HeapStats {
	h.UnmodifiableClasses = unmodifiable
	h.SynchronizedClasses = synchronized
	return h
}

func (h *HeapStats) SetDupStringStats(s *DupStringStats) *HeapStats {
	h.DupStrings = s
	return h
}

func (h *HeapStats) SetCompressibleStringStats(s CompressibleStringStats) *HeapStats {
	h.CompressibleStrings = s
	return h
}

func (h *HeapStats) SetNumberEncodingStringStats(s NumberEncodingStringStats) *HeapStats {
	h.NumberStrings = s
	return h
}

func (h *HeapStats) SetStringLengthHistogram(l *LengthHistogram) *HeapStats {
	h.StringLengths = l
	return h
}

func (h *HeapStats) SetDupArrayStats(s *DupArrayStats) *HeapStats {
	h.DupArrays = s
	return h
}

func (h *HeapStats) SetObjectHistogram(o *ObjectHistogram) *HeapStats {
	h.Histogram = o
	return h
}

func (h *HeapStats) SetCollectionStats(numCols int, t Tally) *HeapStats {
	h.NumCols = numCols
	h.ColProblems = t
	return h
}

func (h *HeapStats) SetObjArrayStats(numObjArrays int, t Tally) *HeapStats {
	h.NumObjArrays = numObjArrays
	h.ObjArrayProblems = t
	return h
}

func (h *HeapStats) SetValueArrayStats(numValueArrays int, t Tally) *HeapStats {
	h.NumValueArrays = numValueArrays
	h.ValueArrayProblems = t
	return h
}

func (h *HeapStats) SetCollectionOverheadByClass(byClass []ClassOverhead) *HeapStats {
	h.OverheadsByClass = byClass
	return h
}

// TotalProblemOverhead sums all overheads found by the detailed pass.
func (h *HeapStats) TotalProblemOverhead() int64 {
	return h.ColProblems.TotalOverhead() + h.ObjArrayProblems.TotalOverhead() + h.ValueArrayProblems.TotalOverhead()
}
