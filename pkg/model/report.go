// Package model defines the report produced by a heap analysis and the
// status values shared by the CLI, the repository and the writers.
package model

import (
	"sort"
	"time"
)

// AnalysisStatus is the outcome of analyzing one snapshot.
type AnalysisStatus int

const (
	AnalysisStatusPending   AnalysisStatus = 0
	AnalysisStatusRunning   AnalysisStatus = 1
	AnalysisStatusCompleted AnalysisStatus = 2
	AnalysisStatusFailed    AnalysisStatus = 3
	AnalysisStatusCancelled AnalysisStatus = 4
	AnalysisStatusEmpty     AnalysisStatus = 5 // snapshot without objects
)

// String returns the string representation of AnalysisStatus.
func (s AnalysisStatus) String() string {
	switch s {
	case AnalysisStatusPending:
		return "pending"
	case AnalysisStatusRunning:
		return "running"
	case AnalysisStatusCompleted:
		return "completed"
	case AnalysisStatusFailed:
		return "failed"
	case AnalysisStatusCancelled:
		return "cancelled"
	case AnalysisStatusEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the analysis has finished one way or another.
func (s AnalysisStatus) IsTerminal() bool {
	return s >= AnalysisStatusCompleted
}

// Problem categories.
const (
	CategoryCollection  = "collection"
	CategoryObjectArray = "object_array"
	CategoryValueArray  = "value_array"
)

// Finding views.
const (
	ViewChain = "chain"
	ViewField = "field"
)

// Report is the full result of one analysis.
type Report struct {
	ID          string           `json:"id"`
	Version     string           `json:"version"`
	Status      AnalysisStatus   `json:"status"`
	Snapshot    SnapshotInfo     `json:"snapshot"`
	Settings    ScanSettings     `json:"settings"`
	Summary     Summary          `json:"summary"`
	Problems    []ProblemCount   `json:"problems"`
	Findings    []Finding        `json:"findings"`
	Classes     []ClassEntry     `json:"classes"`
	Fields      []FieldProblem   `json:"field_problems"`
	Suggestions []Suggestion     `json:"suggestions"`
	Durations   map[string]int64 `json:"durations_ms,omitempty"`
	AnalyzedAt  time.Time        `json:"analyzed_at"`
}

// SnapshotInfo describes the analyzed snapshot.
type SnapshotInfo struct {
	Path             string    `json:"path"`
	Name             string    `json:"name,omitempty"`
	JVMVersion       string    `json:"jvm_version,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
	FileSize         int64     `json:"file_size"`
	PointerSize      int       `json:"pointer_size"`
	ObjectHeaderSize int       `json:"object_header_size"`
	NumObjects       int       `json:"num_objects"`
	NumClasses       int       `json:"num_classes"`
}

// ScanSettings records the options the analysis ran with.
type ScanSettings struct {
	ScanOrder              string `json:"scan_order"`
	LocalityLookahead      bool   `json:"locality_lookahead"`
	SmallCollectionMaxSize int    `json:"small_collection_max_size"`
	MinClusterOverhead     int64  `json:"min_cluster_overhead"`
}

// Summary holds the headline numbers of the heap.
type Summary struct {
	TotalSize           int64 `json:"total_size"`
	NumInstances        int   `json:"num_instances"`
	NumObjectArrays     int   `json:"num_object_arrays"`
	NumValueArrays      int   `json:"num_value_arrays"`
	NumClassloaders     int   `json:"num_classloaders"`
	HeaderOverhead      int64 `json:"header_overhead"`
	NumBoxedNumbers     int   `json:"num_boxed_numbers"`
	BoxedOverhead       int64 `json:"boxed_overhead"`
	NumCollections      int   `json:"num_collections"`
	NumDupStrings       int   `json:"num_dup_strings"`
	DupStringOverhead   int64 `json:"dup_string_overhead"`
	NumDupArrays        int   `json:"num_dup_arrays"`
	DupArrayOverhead    int64 `json:"dup_array_overhead"`
	CompressibleSavings int64 `json:"compressible_string_savings"`
	NumberStringOvhd    int64 `json:"number_string_overhead"`
	ProblemOverhead     int64 `json:"problem_overhead"`
}

// OverheadPercent returns ProblemOverhead as a percentage of TotalSize.
func (s Summary) OverheadPercent() float64 {
	if s.TotalSize == 0 {
		return 0
	}
	return float64(s.ProblemOverhead) * 100 / float64(s.TotalSize)
}

// ProblemCount is the number and overhead of one problem kind in one category.
type ProblemCount struct {
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Count    int    `json:"count"`
	Overhead int64  `json:"overhead"`
}

// Finding is one cluster of problematic objects reached through the same
// referer.
type Finding struct {
	View       string         `json:"view"`
	Type       string         `json:"type"`
	Referer    string         `json:"referer"`
	Overhead   int64          `json:"overhead"`
	NumObjects int            `json:"num_objects"`
	Entries    []FindingEntry `json:"entries"`
}

// FindingEntry is one line of a Finding.
type FindingEntry struct {
	Label    string `json:"label"`
	Count    int    `json:"count"`
	Overhead int64  `json:"overhead"`
}

// ClassEntry is one row of the class histogram.
type ClassEntry struct {
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	Instances     int    `json:"instances"`
	ShallowSize   int64  `json:"shallow_size"`
	InclusiveSize int64  `json:"inclusive_size"`
}

// FieldProblem reports fields of a class that are mostly null, zero or
// use few of their bytes.
type FieldProblem struct {
	Class     string   `json:"class"`
	Category  string   `json:"category,omitempty"`
	Instances int      `json:"instances"`
	Fields    []string `json:"fields"`
	Status    string   `json:"status"`
	Overhead  int64    `json:"overhead"`
}

// TopFindings returns the n findings of the given view with the highest
// overhead. n <= 0 returns all of them.
func (r *Report) TopFindings(view string, n int) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.View == view {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Overhead > out[j].Overhead })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ProblemOverhead sums the overhead of the problem counts of a category;
// an empty category sums all of them.
func (r *Report) ProblemOverhead(category string) int64 {
	var total int64
	for _, p := range r.Problems {
		if category == "" || p.Category == category {
			total += p.Overhead
		}
	}
	return total
}

// BatchResult is the outcome of one snapshot in a batch run.
type BatchResult struct {
	Path   string         `json:"path"`
	Status AnalysisStatus `json:"status"`
	Report *Report        `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}
