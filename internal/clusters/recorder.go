package clusters

import (
	"strings"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/stats"
	"github.com/heapscan/internal/support"
)

// highSizeShare is the fraction of the total heap size (1/n) a class needs
// in shallow size to have its instances recorded as high-size objects.
const highSizeShare = 50

// highSizeFactor multiplies the minimum overhead to get the minimum total
// size of a reported high-size cluster.
const highSizeFactor = 5

// Recorder is a support.ProblemRecorder that aggregates findings per
// referer chain. It is not safe for concurrent use.
type Recorder struct {
	highSize []bool
	lastObj  *heap.Object

	cols map[support.Chain]*collectionNode
	strs map[support.Chain]*dupStringNode
	arrs map[support.Chain]*dupArrayNode
	weak map[support.Chain]*classNode
	hs   map[support.Chain]*classNode
}

var _ support.ProblemRecorder = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		cols: make(map[support.Chain]*collectionNode),
		strs: make(map[support.Chain]*dupStringNode),
		arrs: make(map[support.Chain]*dupArrayNode),
		weak: make(map[support.Chain]*classNode),
		hs:   make(map[support.Chain]*classNode),
	}
}

// Initialize marks the classes whose instances take at least 1/50 of the
// heap in shallow size. Collections are always candidates, since their
// inclusive size is only known once they are scanned.
func (r *Recorder) Initialize(snap heap.Snapshot, hs *support.HeapStats) {
	r.highSize = make([]bool, snap.NumClasses())
	if hs == nil || hs.Histogram == nil {
		return
	}
	threshold := hs.TotalObjSize / highSizeShare
	for _, c := range snap.Classes() {
		if e := hs.Histogram.Entry(c); e != nil && e.NumInstances > 0 && e.ShallowSize >= threshold {
			r.highSize[c.Index] = true
		}
	}
}

func (r *Recorder) isHighSize(c *heap.Class) bool {
	return c.Index >= 0 && c.Index < len(r.highSize) && r.highSize[c.Index]
}

func (r *Recorder) collection(referer support.Chain) *collectionNode {
	n := r.cols[referer]
	if n == nil {
		n = newCollectionNode()
		r.cols[referer] = n
	}
	return n
}

// RecordProblematicCollection implements support.ProblemRecorder.
func (r *Recorder) RecordProblematicCollection(col *heap.Object, info support.CollectionInfo, kind support.ProblemKind, ovhd int, referer support.Chain) {
	c := r.collection(referer).add(col.Class.Name, kind, ovhd)
	switch kind {
	case support.Small, support.SparseSmall, support.SparseLarge:
		c.addElements(info.NumElements())
	}
	if col.Kind == heap.KindInstance || r.isHighSize(col.Class) {
		r.recordHighSize(col, info.ImplSize(), referer)
	}
}

// RecordGoodCollection implements support.ProblemRecorder.
func (r *Recorder) RecordGoodCollection(col *heap.Object, info support.CollectionInfo, referer support.Chain) {
	r.collection(referer).good++
	if col.Kind == heap.KindInstance || r.isHighSize(col.Class) {
		r.recordHighSize(col, info.ImplSize(), referer)
	}
}

func (r *Recorder) dupString(referer support.Chain) *dupStringNode {
	n := r.strs[referer]
	if n == nil {
		n = newDupStringNode()
		r.strs[referer] = n
	}
	return n
}

// RecordDuplicateString implements support.ProblemRecorder.
func (r *Recorder) RecordDuplicateString(str *heap.Object, value string, implInclusiveSize, ovhd int, dupBacking bool, referer support.Chain) {
	r.dupString(referer).add(value, ovhd, dupBacking)
	if r.isHighSize(str.Class) {
		r.recordHighSize(str, implInclusiveSize, referer)
	}
}

// RecordNonDuplicateString implements support.ProblemRecorder.
func (r *Recorder) RecordNonDuplicateString(str *heap.Object, implInclusiveSize int, referer support.Chain) {
	r.dupString(referer).nonDup++
	if r.isHighSize(str.Class) {
		r.recordHighSize(str, implInclusiveSize, referer)
	}
}

func (r *Recorder) dupArray(referer support.Chain) *dupArrayNode {
	n := r.arrs[referer]
	if n == nil {
		n = newDupArrayNode()
		r.arrs[referer] = n
	}
	return n
}

// RecordDuplicateArray implements support.ProblemRecorder.
func (r *Recorder) RecordDuplicateArray(arr *heap.Object, ovhd int, referer support.Chain) {
	key := arr.Class.Name + ":" + string(arr.Data)
	r.dupArray(referer).add(key, arr.Class.Name+" "+stats.FormatArraySample(arr), ovhd)
	if r.isHighSize(arr.Class) {
		r.recordHighSize(arr, arr.Size, referer)
	}
}

// RecordNonDuplicateArray implements support.ProblemRecorder.
func (r *Recorder) RecordNonDuplicateArray(arr *heap.Object, referer support.Chain) {
	r.dupArray(referer).nonDup++
	if r.isHighSize(arr.Class) {
		r.recordHighSize(arr, arr.Size, referer)
	}
}

// RecordWeakHashMapWithBackRefs implements support.ProblemRecorder.
func (r *Recorder) RecordWeakHashMapWithBackRefs(col *heap.Object, info support.CollectionInfo, ovhd int, sample string, referer support.Chain) {
	n := r.weak[referer]
	if n == nil {
		n = newClassNode(KindWeakMaps)
		r.weak[referer] = n
	}
	n.add(col.Class.Name, ovhd)
	n.addSample(sample)
	r.recordHighSize(col, info.ImplSize(), referer)
}

// ShouldRecordGoodInstance implements support.ProblemRecorder.
func (r *Recorder) ShouldRecordGoodInstance(obj *heap.Object) bool {
	return obj != r.lastObj && r.isHighSize(obj.Class)
}

// RecordGoodInstance implements support.ProblemRecorder.
func (r *Recorder) RecordGoodInstance(obj *heap.Object, referer support.Chain) {
	r.recordHighSize(obj, obj.Size, referer)
}

// recordHighSize adds obj once, even when it is reported through several
// of the calls above in a row.
func (r *Recorder) recordHighSize(obj *heap.Object, size int, referer support.Chain) {
	if obj == r.lastObj {
		return
	}
	n := r.hs[referer]
	if n == nil {
		n = newClassNode(KindHighSize)
		r.hs[referer] = n
	}
	n.add(obj.Class.Name, size)
	r.lastObj = obj
}

// DetailedStats finalizes the clusters with at least minOvhd bytes of
// overhead. High-size clusters need highSizeFactor times as much in total
// size. Clusters without any finding are dropped.
func (r *Recorder) DetailedStats(minOvhd int64) *DetailedStats {
	hsMin := minOvhd * highSizeFactor
	return &DetailedStats{
		MinOverhead: minOvhd,
		ByChain: View{
			Collections: byChain(r.cols, minOvhd),
			DupStrings:  byChain(r.strs, minOvhd),
			DupArrays:   byChain(r.arrs, minOvhd),
			WeakMaps:    byChain(r.weak, minOvhd),
			HighSize:    byChain(r.hs, hsMin),
		},
		ByField: View{
			Collections: byField(r.cols, minOvhd),
			DupStrings:  byField(r.strs, minOvhd),
			DupArrays:   byField(r.arrs, minOvhd),
			WeakMaps:    byField(r.weak, minOvhd),
			HighSize:    byField(r.hs, hsMin),
		},
	}
}

func byChain[T node[T]](m map[support.Chain]T, minOvhd int64) []Cluster {
	out := make([]Cluster, 0)
	for referer, n := range m {
		if n.numObjects() == 0 || n.overhead() < minOvhd {
			continue
		}
		out = append(out, n.final(chainText(referer)))
	}
	sortClusters(out)
	return out
}

func byField[T node[T]](m map[support.Chain]T, minOvhd int64) []Cluster {
	type fieldCluster struct {
		text string
		node T
	}
	merged := make(map[string]*fieldCluster)
	for referer, n := range m {
		hops, ok := nearestField(referer)
		if !ok {
			continue
		}
		key, text := fieldKey(hops)
		if fc := merged[key]; fc != nil {
			fc.node.merge(n)
			continue
		}
		merged[key] = &fieldCluster{text: text, node: n.clone()}
	}

	out := make([]Cluster, 0, len(merged))
	for _, fc := range merged {
		if fc.node.numObjects() == 0 || fc.node.overhead() < minOvhd {
			continue
		}
		out = append(out, fc.node.final(fc.text))
	}
	sortClusters(out)
	return out
}

// nearestField walks from referer towards the root and returns the hops up
// to and including the first data field, innermost first. Fields of
// wrappers such as Collections$UnmodifiableMap or of references are passed
// through. Chains that reach a GC root without a field are rejected.
func nearestField(referer support.Chain) ([]support.Chain, bool) {
	var hops []support.Chain
	for e := referer; !e.IsZero(); e = e.Referer() {
		if e.Kind() == support.ElemGCRoot {
			return nil, false
		}
		hops = append(hops, e)
		if isField(e.Kind()) && isInformative(e.Class()) {
			return hops, true
		}
	}
	return nil, false
}

func isField(k support.ElementKind) bool {
	return k == support.ElemInstanceField || k == support.ElemStaticField || k == support.ElemLinkedList
}

func isInformative(c *heap.Class) bool {
	if c == nil {
		return true
	}
	return !strings.HasPrefix(c.Name, "java.util.Collections$") &&
		!strings.HasPrefix(c.Name, "java.lang.ref.") &&
		c.Name != "java.util.BitSet"
}

func fieldKey(hops []support.Chain) (key, text string) {
	var kb, tb strings.Builder
	for i, h := range hops {
		if i > 0 {
			kb.WriteByte('|')
			tb.WriteString(refererSeparator)
		}
		s := h.String()
		kb.WriteString(h.Kind().String())
		kb.WriteByte(':')
		kb.WriteString(s)
		tb.WriteString(s)
	}
	return kb.String(), tb.String()
}
