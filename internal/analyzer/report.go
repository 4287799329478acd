package analyzer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/heapscan/internal/clusters"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
	"github.com/heapscan/pkg/model"
	"github.com/heapscan/pkg/utils"
)

// maxSuggestions caps the suggestions derived from findings.
const maxSuggestions = 10

func (a *Analyzer) buildReport(snap heap.Snapshot, src Source, hs *support.HeapStats, ds *clusters.DetailedStats) *model.Report {
	report := &model.Report{
		ID:       uuid.NewString(),
		Version:  a.version,
		Status:   model.AnalysisStatusCompleted,
		Snapshot: snapshotInfo(snap, src),
		Settings: model.ScanSettings{
			ScanOrder:              string(a.cfg.ScanOrder),
			LocalityLookahead:      a.cfg.LocalityLookahead,
			SmallCollectionMaxSize: a.cfg.SmallCollectionMaxSize,
			MinClusterOverhead:     ds.MinOverhead,
		},
		Summary:    summarize(hs),
		Problems:   problemCounts(hs),
		Findings:   append(findings(model.ViewChain, &ds.ByChain), findings(model.ViewField, &ds.ByField)...),
		AnalyzedAt: a.clock.Now(),
	}
	if report.Settings.ScanOrder == "" {
		report.Settings.ScanOrder = "bfs"
	}
	if hs.Histogram != nil {
		report.Classes = a.classEntries(hs.Histogram)
		report.Fields = a.fieldProblems(hs.Histogram)
	}
	report.Suggestions = suggestions(report)
	return report
}

func snapshotInfo(snap heap.Snapshot, src Source) model.SnapshotInfo {
	info := snap.Info()
	layout := snap.Layout()
	name := info.Name
	if name == "" && src.Path != "" {
		name = strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path))
	}
	return model.SnapshotInfo{
		Path:             src.Path,
		Name:             name,
		JVMVersion:       info.JVMVersion,
		CreatedAt:        info.CreatedAt,
		FileSize:         src.FileSize,
		PointerSize:      layout.PointerSize,
		ObjectHeaderSize: layout.ObjectHeaderSize,
		NumObjects:       snap.NumObjects(),
		NumClasses:       snap.NumClasses(),
	}
}

func summarize(hs *support.HeapStats) model.Summary {
	s := model.Summary{
		TotalSize:           hs.TotalObjSize,
		NumInstances:        hs.NInstances,
		NumObjectArrays:     hs.NObjectArrays,
		NumValueArrays:      hs.NValueArrays,
		NumClassloaders:     hs.Classloaders.NumLoaders,
		HeaderOverhead:      hs.OvhdObjHeaders,
		NumBoxedNumbers:     hs.NBoxedNumbers,
		BoxedOverhead:       hs.OvhdBoxedNumbers,
		NumCollections:      hs.NumCols,
		CompressibleSavings: hs.CompressibleStrings.Overhead,
		NumberStringOvhd:    hs.NumberStrings.Overhead,
		ProblemOverhead:     hs.TotalProblemOverhead(),
	}
	if hs.DupStrings != nil {
		s.NumDupStrings = hs.DupStrings.NDupStrings
		s.DupStringOverhead = hs.DupStrings.Overhead
	}
	if hs.DupArrays != nil {
		s.NumDupArrays = hs.DupArrays.NDupArrays
		s.DupArrayOverhead = hs.DupArrays.Overhead
	}
	return s
}

func problemCounts(hs *support.HeapStats) []model.ProblemCount {
	var out []model.ProblemCount
	for _, c := range []struct {
		category string
		tally    *support.Tally
	}{
		{model.CategoryCollection, &hs.ColProblems},
		{model.CategoryObjectArray, &hs.ObjArrayProblems},
		{model.CategoryValueArray, &hs.ValueArrayProblems},
	} {
		for k := support.ProblemKind(0); k < support.NumProblemKinds; k++ {
			if n := c.tally.Count(k); n > 0 {
				out = append(out, model.ProblemCount{
					Category: c.category,
					Kind:     k.String(),
					Count:    n,
					Overhead: c.tally.Overhead(k),
				})
			}
		}
	}
	return out
}

func findings(view string, v *clusters.View) []model.Finding {
	var out []model.Finding
	for _, group := range [][]clusters.Cluster{v.Collections, v.DupStrings, v.DupArrays, v.WeakMaps, v.HighSize} {
		for _, c := range group {
			f := model.Finding{
				View:       view,
				Type:       string(c.Kind),
				Referer:    c.Referer,
				Overhead:   c.Overhead,
				NumObjects: c.NumObjects,
				Entries:    make([]model.FindingEntry, len(c.Entries)),
			}
			for i, e := range c.Entries {
				f.Entries[i] = model.FindingEntry{Label: e.Label, Count: e.Count, Overhead: e.Overhead}
			}
			out = append(out, f)
		}
	}
	return out
}

func (a *Analyzer) classEntries(h *support.ObjectHistogram) []model.ClassEntry {
	topN := a.cfg.TopN
	sorted := h.SortedByInclusiveSize(1)
	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}
	out := make([]model.ClassEntry, len(sorted))
	for i, cs := range sorted {
		out[i] = model.ClassEntry{
			Name:          cs.Class.Name,
			Category:      a.classes.Classify(cs.Class.Name).String(),
			Instances:     cs.NumInstances,
			ShallowSize:   cs.ShallowSize,
			InclusiveSize: cs.InclusiveSize,
		}
	}
	return out
}

func (a *Analyzer) fieldProblems(h *support.ObjectHistogram) []model.FieldProblem {
	topN := a.cfg.TopN
	var out []model.FieldProblem
	for _, entries := range [][]support.ProblemFieldsEntry{
		h.NullFieldEntries(a.cfg.MinBadPercentile),
		h.UnusedHiByteFieldEntries(a.cfg.MinBadPercentile),
	} {
		if topN > 0 && len(entries) > topN {
			entries = entries[:topN]
		}
		for _, e := range entries {
			out = append(out, model.FieldProblem{
				Class:     e.ClassName,
				Category:  a.classes.Classify(e.ClassName).String(),
				Instances: e.NumInstances,
				Fields:    e.FieldNames,
				Status:    string(e.Status),
				Overhead:  e.TotalOverhead,
			})
		}
	}
	return out
}

// suggestions turns the largest field-view findings and the heap-wide
// string and boxing numbers into remediation hints.
func suggestions(r *model.Report) []model.Suggestion {
	total := r.Summary.TotalSize
	var out []model.Suggestion

	for _, f := range r.TopFindings(model.ViewField, 0) {
		if len(out) >= maxSuggestions {
			break
		}
		text := findingAdvice(f)
		if text == "" || f.Overhead <= 0 {
			continue
		}
		b := model.NewSuggestionBuilder().
			WithKind(f.Type).
			WithReferer(f.Referer).
			WithSuggestion(text).
			WithOverhead(f.Overhead, total)
		if len(f.Entries) > 0 {
			b.WithTarget(f.Entries[0].Label)
		}
		out = append(out, b.Build())
	}

	s := r.Summary
	if s.BoxedOverhead > 0 {
		out = append(out, model.NewSuggestionBuilder().
			WithKind("boxed_numbers").
			WithTarget("java.lang.Number").
			WithSuggestion(fmt.Sprintf("%d boxed numbers cost %s over primitives; store them in primitive fields or arrays",
				s.NumBoxedNumbers, utils.FormatBytes(s.BoxedOverhead))).
			WithOverhead(s.BoxedOverhead, total).
			Build())
	}
	if s.CompressibleSavings > 0 {
		out = append(out, model.NewSuggestionBuilder().
			WithKind("compressible_strings").
			WithTarget(heap.ClassString).
			WithSuggestion(fmt.Sprintf("strings with only Latin-1 characters could save %s with compact strings",
				utils.FormatBytes(s.CompressibleSavings))).
			WithOverhead(s.CompressibleSavings, total).
			Build())
	}
	return out
}

func findingAdvice(f model.Finding) string {
	ovhd := utils.FormatBytes(f.Overhead)
	switch clusters.Kind(f.Type) {
	case clusters.KindCollections:
		return fmt.Sprintf("%d collections waste %s; allocate them lazily or size them to their contents",
			f.NumObjects, ovhd)
	case clusters.KindDupStrings:
		return fmt.Sprintf("%d duplicate strings waste %s; intern or deduplicate them where they are created",
			f.NumObjects, ovhd)
	case clusters.KindDupArrays:
		return fmt.Sprintf("%d duplicate arrays waste %s; share one copy of each value", f.NumObjects, ovhd)
	case clusters.KindWeakMaps:
		return fmt.Sprintf("%d weak maps hold values that refer back to their keys, so %s is never reclaimed",
			f.NumObjects, ovhd)
	}
	return ""
}
