package clusters

import (
	"sort"
	"strconv"

	"github.com/heapscan/internal/support"
)

// maxEntries bounds the value entries kept in a finalized duplicate cluster.
const maxEntries = 20

// node is the mutable per-referer aggregate behind a Cluster.
type node[T any] interface {
	overhead() int64
	numObjects() int
	merge(other T)
	clone() T
	final(referer string) Cluster
}

type comboKey struct {
	class string
	kind  support.ProblemKind
}

type combo struct {
	count  int
	ovhd   int64
	minEls int
	maxEls int
	hasEls bool
}

type collectionNode struct {
	combos map[comboKey]*combo
	good   int
}

func newCollectionNode() *collectionNode {
	return &collectionNode{combos: make(map[comboKey]*combo)}
}

func (n *collectionNode) add(class string, kind support.ProblemKind, ovhd int) *combo {
	key := comboKey{class: class, kind: kind}
	c := n.combos[key]
	if c == nil {
		c = &combo{}
		n.combos[key] = c
	}
	c.count++
	c.ovhd += int64(ovhd)
	return c
}

func (c *combo) addElements(numEls int) {
	if !c.hasEls || numEls < c.minEls {
		c.minEls = numEls
	}
	if !c.hasEls || numEls > c.maxEls {
		c.maxEls = numEls
	}
	c.hasEls = true
}

func (n *collectionNode) overhead() int64 {
	var total int64
	for _, c := range n.combos {
		total += c.ovhd
	}
	return total
}

func (n *collectionNode) numObjects() int {
	total := 0
	for _, c := range n.combos {
		total += c.count
	}
	return total
}

func (n *collectionNode) merge(o *collectionNode) {
	for k, oc := range o.combos {
		c := n.combos[k]
		if c == nil {
			cp := *oc
			n.combos[k] = &cp
			continue
		}
		c.count += oc.count
		c.ovhd += oc.ovhd
		if oc.hasEls {
			c.addElements(oc.minEls)
			c.addElements(oc.maxEls)
		}
	}
	n.good += o.good
}

func (n *collectionNode) clone() *collectionNode {
	cp := newCollectionNode()
	cp.merge(n)
	return cp
}

func (n *collectionNode) final(referer string) Cluster {
	cl := Cluster{Kind: KindCollections, Referer: referer, NumGood: n.good}
	for k, c := range n.combos {
		e := Entry{Label: k.class + " " + k.kind.String(), Count: c.count, Overhead: c.ovhd}
		if c.hasEls {
			e.MinElements, e.MaxElements = c.minEls, c.maxEls
		}
		cl.Entries = append(cl.Entries, e)
		cl.Overhead += c.ovhd
		cl.NumObjects += c.count
	}
	sortEntries(cl.Entries)
	return cl
}

type valueCount struct {
	label string
	count int
	ovhd  int64
}

type dupStringNode struct {
	values     map[string]*valueCount
	ovhd       int64
	count      int
	dupBacking int
	nonDup     int
}

func newDupStringNode() *dupStringNode {
	return &dupStringNode{values: make(map[string]*valueCount)}
}

func (n *dupStringNode) add(value string, ovhd int, dupBacking bool) {
	v := n.values[value]
	if v == nil {
		v = &valueCount{label: strconv.Quote(value)}
		n.values[value] = v
	}
	v.count++
	v.ovhd += int64(ovhd)
	n.ovhd += int64(ovhd)
	n.count++
	if dupBacking {
		n.dupBacking++
	}
}

func (n *dupStringNode) overhead() int64 { return n.ovhd }

func (n *dupStringNode) numObjects() int { return n.count }

func (n *dupStringNode) merge(o *dupStringNode) {
	mergeValues(n.values, o.values)
	n.ovhd += o.ovhd
	n.count += o.count
	n.dupBacking += o.dupBacking
	n.nonDup += o.nonDup
}

func (n *dupStringNode) clone() *dupStringNode {
	cp := newDupStringNode()
	cp.merge(n)
	return cp
}

func (n *dupStringNode) final(referer string) Cluster {
	return Cluster{
		Kind:             KindDupStrings,
		Referer:          referer,
		Overhead:         n.ovhd,
		NumObjects:       n.count,
		NumUnique:        len(n.values),
		NumGood:          n.nonDup,
		DupBackingArrays: n.dupBacking,
		Entries:          valueEntries(n.values),
	}
}

type dupArrayNode struct {
	values map[string]*valueCount
	ovhd   int64
	count  int
	nonDup int
}

func newDupArrayNode() *dupArrayNode {
	return &dupArrayNode{values: make(map[string]*valueCount)}
}

func (n *dupArrayNode) add(key, sample string, ovhd int) {
	v := n.values[key]
	if v == nil {
		v = &valueCount{label: sample}
		n.values[key] = v
	}
	v.count++
	v.ovhd += int64(ovhd)
	n.ovhd += int64(ovhd)
	n.count++
}

func (n *dupArrayNode) overhead() int64 { return n.ovhd }

func (n *dupArrayNode) numObjects() int { return n.count }

func (n *dupArrayNode) merge(o *dupArrayNode) {
	mergeValues(n.values, o.values)
	n.ovhd += o.ovhd
	n.count += o.count
	n.nonDup += o.nonDup
}

func (n *dupArrayNode) clone() *dupArrayNode {
	cp := newDupArrayNode()
	cp.merge(n)
	return cp
}

func (n *dupArrayNode) final(referer string) Cluster {
	return Cluster{
		Kind:       KindDupArrays,
		Referer:    referer,
		Overhead:   n.ovhd,
		NumObjects: n.count,
		NumUnique:  len(n.values),
		NumGood:    n.nonDup,
		Entries:    valueEntries(n.values),
	}
}

func mergeValues(dst, src map[string]*valueCount) {
	for k, sv := range src {
		if dv := dst[k]; dv != nil {
			dv.count += sv.count
			dv.ovhd += sv.ovhd
			continue
		}
		cp := *sv
		dst[k] = &cp
	}
}

func valueEntries(values map[string]*valueCount) []Entry {
	es := make([]Entry, 0, len(values))
	for _, v := range values {
		es = append(es, Entry{Label: v.label, Count: v.count, Overhead: v.ovhd})
	}
	sortEntries(es)
	if len(es) > maxEntries {
		es = es[:maxEntries]
	}
	return es
}

// classNode counts objects and bytes per class. It backs both weak map
// clusters (bytes are overhead) and high-size clusters (bytes are sizes).
type classNode struct {
	kind    Kind
	classes map[string]*valueCount
	samples map[string]struct{}
	total   int64
	count   int
}

func newClassNode(kind Kind) *classNode {
	return &classNode{kind: kind, classes: make(map[string]*valueCount)}
}

func (n *classNode) add(class string, bytes int) {
	v := n.classes[class]
	if v == nil {
		v = &valueCount{label: class}
		n.classes[class] = v
	}
	v.count++
	v.ovhd += int64(bytes)
	n.total += int64(bytes)
	n.count++
}

func (n *classNode) addSample(s string) {
	if s == "" {
		return
	}
	if n.samples == nil {
		n.samples = make(map[string]struct{})
	}
	n.samples[s] = struct{}{}
}

func (n *classNode) overhead() int64 { return n.total }

func (n *classNode) numObjects() int { return n.count }

func (n *classNode) merge(o *classNode) {
	mergeValues(n.classes, o.classes)
	for s := range o.samples {
		n.addSample(s)
	}
	n.total += o.total
	n.count += o.count
}

func (n *classNode) clone() *classNode {
	cp := newClassNode(n.kind)
	cp.merge(n)
	return cp
}

func (n *classNode) final(referer string) Cluster {
	cl := Cluster{
		Kind:       n.kind,
		Referer:    referer,
		Overhead:   n.total,
		NumObjects: n.count,
		Entries:    valueEntries(n.classes),
	}
	for s := range n.samples {
		cl.Samples = append(cl.Samples, s)
	}
	sort.Strings(cl.Samples)
	return cl
}
