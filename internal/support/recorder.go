package support

import "github.com/heapscan/internal/heap"

// CollectionInfo is the view of a collection instance a recorder may use.
type CollectionInfo interface {
	NumElements() int
	ImplSize() int
}

// ProblemRecorder receives every finding of the detailed scan together with
// the condensed reference chain leading to the object. Each object is
// reported at most once.
type ProblemRecorder interface {
	Initialize(snap heap.Snapshot, hs *HeapStats)
	RecordProblematicCollection(col *heap.Object, info CollectionInfo, kind ProblemKind, ovhd int, referer Chain)
	RecordGoodCollection(col *heap.Object, info CollectionInfo, referer Chain)
	RecordDuplicateString(str *heap.Object, value string, implInclusiveSize, ovhd int, dupBacking bool, referer Chain)
	RecordNonDuplicateString(str *heap.Object, implInclusiveSize int, referer Chain)
	RecordDuplicateArray(arr *heap.Object, ovhd int, referer Chain)
	RecordNonDuplicateArray(arr *heap.Object, referer Chain)
	RecordWeakHashMapWithBackRefs(col *heap.Object, info CollectionInfo, ovhd int, sample string, referer Chain)
	ShouldRecordGoodInstance(obj *heap.Object) bool
	RecordGoodInstance(obj *heap.Object, referer Chain)
}

// NopRecorder discards everything.
type NopRecorder struct{}

var _ ProblemRecorder = NopRecorder{}

func (NopRecorder) Initialize(heap.Snapshot, *HeapStats) {}

func (NopRecorder) RecordProblematicCollection(*heap.Object, CollectionInfo, ProblemKind, int, Chain) {}

func (NopRecorder) RecordGoodCollection(*heap.Object, CollectionInfo, Chain) {}

func (NopRecorder) RecordDuplicateString(*heap.Object, string, int, int, bool, Chain) {}

func (NopRecorder) RecordNonDuplicateString(*heap.Object, int, Chain) {}

func (NopRecorder) RecordDuplicateArray(*heap.Object, int, Chain) {}

func (NopRecorder) RecordNonDuplicateArray(*heap.Object, Chain) {}

func (NopRecorder) RecordWeakHashMapWithBackRefs(*heap.Object, CollectionInfo, int, string, Chain) {}

func (NopRecorder) ShouldRecordGoodInstance(*heap.Object) bool { return false }

func (NopRecorder) RecordGoodInstance(*heap.Object, Chain) {}
