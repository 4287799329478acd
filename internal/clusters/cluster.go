// Package clusters groups the findings of a detailed heap scan by the
// reference chain leading to the affected objects. Each distinct chain gets
// one cluster per finding type, and a second view merges the chains that end
// in the same nearest data field.
package clusters

import (
	"sort"
	"strings"

	"github.com/heapscan/internal/support"
)

// Kind names the finding type a cluster aggregates.
type Kind string

const (
	KindCollections Kind = "collections"
	KindDupStrings  Kind = "dup_strings"
	KindDupArrays   Kind = "dup_arrays"
	KindWeakMaps    Kind = "weak_maps"
	KindHighSize    Kind = "high_size"
)

// Entry is one line of a cluster: a (class, problem) combination for
// collections, a value for duplicates, a class for weak maps and high-size
// objects.
type Entry struct {
	Label       string `json:"label"`
	Count       int    `json:"count"`
	Overhead    int64  `json:"overhead"`
	MinElements int    `json:"min_elements,omitempty"`
	MaxElements int    `json:"max_elements,omitempty"`
}

// Cluster is the finalized aggregate for one referer.
type Cluster struct {
	Kind     Kind   `json:"kind"`
	Referer  string `json:"referer"`
	Overhead int64  `json:"overhead"`
	// NumObjects counts the objects with a finding; for high-size clusters
	// it counts all recorded objects.
	NumObjects int `json:"num_objects"`
	NumUnique  int `json:"num_unique,omitempty"`
	// NumGood counts good collections, non-duplicate strings or
	// non-duplicate arrays reached through the same referer.
	NumGood          int      `json:"num_good,omitempty"`
	DupBackingArrays int      `json:"dup_backing_arrays,omitempty"`
	Entries          []Entry  `json:"entries"`
	Samples          []string `json:"samples,omitempty"`
}

// View holds the clusters of each kind, sorted by overhead.
type View struct {
	Collections []Cluster `json:"collections"`
	DupStrings  []Cluster `json:"dup_strings"`
	DupArrays   []Cluster `json:"dup_arrays"`
	WeakMaps    []Cluster `json:"weak_maps"`
	HighSize    []Cluster `json:"high_size"`
}

// Truncate keeps at most n clusters of each kind. n <= 0 keeps everything.
func (v *View) Truncate(n int) {
	if n <= 0 {
		return
	}
	for _, l := range []*[]Cluster{&v.Collections, &v.DupStrings, &v.DupArrays, &v.WeakMaps, &v.HighSize} {
		if len(*l) > n {
			*l = (*l)[:n]
		}
	}
}

// Len returns the total number of clusters.
func (v *View) Len() int {
	return len(v.Collections) + len(v.DupStrings) + len(v.DupArrays) + len(v.WeakMaps) + len(v.HighSize)
}

// DetailedStats is the output of a Recorder: clusters keyed by the full
// reference chain, and the same data merged by nearest field.
type DetailedStats struct {
	MinOverhead int64 `json:"min_overhead"`
	ByChain     View  `json:"by_chain"`
	ByField     View  `json:"by_field"`
}

// Truncate keeps at most n clusters of each kind in both views.
func (d *DetailedStats) Truncate(n int) {
	d.ByChain.Truncate(n)
	d.ByField.Truncate(n)
}

func sortClusters(cs []Cluster) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Overhead != b.Overhead {
			return a.Overhead > b.Overhead
		}
		if a.NumObjects != b.NumObjects {
			return a.NumObjects > b.NumObjects
		}
		return a.Referer < b.Referer
	})
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Overhead != es[j].Overhead {
			return es[i].Overhead > es[j].Overhead
		}
		if es[i].Count != es[j].Count {
			return es[i].Count > es[j].Count
		}
		return es[i].Label < es[j].Label
	})
}

const refererSeparator = " <- "

// chainText renders a whole chain on one line, innermost hop first.
func chainText(c support.Chain) string {
	if c.IsZero() {
		return c.String()
	}
	var sb strings.Builder
	for e := c; !e.IsZero(); e = e.Referer() {
		if sb.Len() > 0 {
			sb.WriteString(refererSeparator)
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}
