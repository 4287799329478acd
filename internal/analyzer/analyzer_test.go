package analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/heap/heaptest"
	"github.com/heapscan/internal/heap/snapfile"
	"github.com/heapscan/internal/mock"
	"github.com/heapscan/internal/stats"
	"github.com/heapscan/internal/storage"
	"github.com/heapscan/pkg/compression"
	"github.com/heapscan/pkg/config"
	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/model"
	"github.com/heapscan/pkg/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ownersHeap holds two app.Owner instances: three empty, never used
// HashMaps and one string.
func ownersHeap(t *testing.T) *heap.Heap {
	f := heaptest.New()
	owner := f.B.DefineClass("app.Owner", f.Object,
		heap.Field{Name: "first", Type: heap.TypeObject},
		heap.Field{Name: "second", Type: heap.TypeObject})
	o1 := f.Instance(owner, heap.Ref(f.HashMapCap(f.HashMap, 0, 0)), heap.Ref(f.HashMapCap(f.HashMap, 0, 0)))
	o2 := f.Instance(owner, heap.Ref(f.HashMapCap(f.HashMap, 0, 0)), heap.Ref(f.Str("x")))
	f.Root(o1)
	f.Root(o2)
	return f.Build(t)
}

func writeSnapshot(t *testing.T, dir, name string, h *heap.Heap) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, snapfile.WriteFile(path, h, compression.TypeZstd))
	return path
}

func testConfig() config.AnalysisConfig {
	cfg := config.Default().Analysis
	cfg.ProgressInterval = time.Millisecond
	return cfg
}

func findFinding(r *model.Report, view, typ, referer string) *model.Finding {
	for i := range r.Findings {
		f := &r.Findings[i]
		if f.View == view && f.Type == typ && f.Referer == referer {
			return f
		}
	}
	return nil
}

func TestAnalyzer_StatsOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.AnalysisConfig
		order     stats.ScanOrder
		alternate bool
		smallMax  int
	}{
		{name: "zero config", cfg: config.AnalysisConfig{}, order: stats.BreadthFirst, alternate: true, smallMax: 4},
		{name: "zero config with threshold", cfg: config.AnalysisConfig{SmallCollectionMaxSize: 2},
			order: stats.BreadthFirst, alternate: true, smallMax: 2},
		{name: "loaded config", cfg: config.AnalysisConfig{ScanOrder: config.ScanOrderDFS},
			order: stats.DepthFirst, alternate: false, smallMax: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.cfg)
			opts := a.statsOptions(&utils.NullLogger{})
			assert.Equal(t, tt.order, opts.Order)
			assert.Equal(t, tt.alternate, opts.AlternateDirection)
			assert.Equal(t, tt.smallMax, opts.SmallCollectionMaxSize)
			assert.Nil(t, opts.Locality)
			assert.Positive(t, a.cfg.MinBadPercentile)
		})
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	h := ownersHeap(t)
	path := writeSnapshot(t, t.TempDir(), "app.snap", h)

	tests := []struct {
		name      string
		order     config.ScanOrder
		lookahead bool
	}{
		{"breadth first", config.ScanOrderBFS, false},
		{"depth first", config.ScanOrderDFS, false},
		{"depth first with lookahead", config.ScanOrderDFS, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ScanOrder = tt.order
			cfg.LocalityLookahead = tt.lookahead

			report, err := New(cfg, WithVersion("test")).Analyze(context.Background(), path)
			require.NoError(t, err)

			assert.NotEmpty(t, report.ID)
			assert.Equal(t, "test", report.Version)
			assert.Equal(t, model.AnalysisStatusCompleted, report.Status)
			assert.Equal(t, path, report.Snapshot.Path)
			assert.NotEmpty(t, report.Snapshot.Name)
			assert.Positive(t, report.Snapshot.FileSize)
			assert.Equal(t, h.NumObjects(), report.Snapshot.NumObjects)
			assert.Equal(t, string(tt.order), report.Settings.ScanOrder)
			assert.Equal(t, tt.lookahead, report.Settings.LocalityLookahead)

			assert.Positive(t, report.Summary.TotalSize)
			assert.Positive(t, report.Summary.ProblemOverhead)
			assert.Contains(t, report.Problems, model.ProblemCount{
				Category: model.CategoryCollection,
				Kind:     "EMPTY_UNUSED",
				Count:    3,
				Overhead: report.ProblemOverhead(model.CategoryCollection),
			})

			f := findFinding(report, model.ViewField, "collections", "app.Owner.first")
			require.NotNil(t, f)
			assert.Equal(t, 2, f.NumObjects)
			assert.Equal(t, "java.util.HashMap EMPTY_UNUSED", f.Entries[0].Label)

			assert.NotEmpty(t, report.Classes)
			assert.NotEmpty(t, report.Suggestions)
			assert.Contains(t, report.Durations, "load")
			assert.Contains(t, report.Durations, "scan")
			assert.Contains(t, report.Durations, "report")
		})
	}
}

func TestAnalyzer_ClassCategories(t *testing.T) {
	path := writeSnapshot(t, t.TempDir(), "app.snap", ownersHeap(t))
	cfg := testConfig()
	cfg.AppPackages = []string{"app"}

	report, err := New(cfg).Analyze(context.Background(), path)
	require.NoError(t, err)

	categories := make(map[string]string)
	for _, c := range report.Classes {
		categories[c.Name] = c.Category
	}
	assert.Equal(t, "business", categories["app.Owner"])
	assert.Equal(t, "jdk", categories["java.util.HashMap"])
}

func TestAnalyzer_AnalyzeErrors(t *testing.T) {
	dir := t.TempDir()
	empty := writeSnapshot(t, dir, "empty.snap", heaptest.New().Build(t))
	a := New(testConfig())

	t.Run("missing file", func(t *testing.T) {
		_, err := a.Analyze(context.Background(), filepath.Join(dir, "missing.snap"))
		assert.True(t, apperrors.IsNotFound(err))
		assert.Equal(t, 3, apperrors.ExitCode(err))
	})

	t.Run("empty snapshot", func(t *testing.T) {
		_, err := a.Analyze(context.Background(), empty)
		assert.ErrorIs(t, err, apperrors.ErrEmptySnapshot)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.AnalyzeSnapshot(ctx, ownersHeap(t), Source{Path: "memory"})
		assert.True(t, apperrors.IsCancelled(err))
	})

	t.Run("storage path without storage", func(t *testing.T) {
		_, err := a.Analyze(context.Background(), "storage://dumps/app.snap")
		assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
	})
}

func TestAnalyzer_AnalyzeFromStorage(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	local := writeSnapshot(t, t.TempDir(), "app.snap", ownersHeap(t))
	require.NoError(t, store.UploadFile(context.Background(), "dumps/app.snap", local))

	a := New(testConfig(), WithStorage(store))

	report, err := a.Analyze(context.Background(), "storage://dumps/app.snap")
	require.NoError(t, err)
	assert.Equal(t, "storage://dumps/app.snap", report.Snapshot.Path)
	assert.Equal(t, model.AnalysisStatusCompleted, report.Status)

	_, err = a.Analyze(context.Background(), "storage://dumps/other.snap")
	assert.True(t, apperrors.IsStorageError(err))
}

func TestAnalyzer_Progress(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []int
	)
	a := New(testConfig(), WithProgress(func(path string, pct int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "memory", path)
		calls = append(calls, pct)
	}))

	_, err := a.AnalyzeSnapshot(context.Background(), ownersHeap(t), Source{Path: "memory"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, calls)
	assert.Equal(t, 100, calls[len(calls)-1])
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i], calls[i-1])
	}
}

func TestAnalyzer_AnalyzeBatch(t *testing.T) {
	dir := t.TempDir()
	good := writeSnapshot(t, dir, "good.snap", ownersHeap(t))
	empty := writeSnapshot(t, dir, "empty.snap", heaptest.New().Build(t))
	missing := filepath.Join(dir, "missing.snap")

	cfg := testConfig()
	cfg.MaxWorker = 2
	a := New(cfg)

	t.Run("mixed", func(t *testing.T) {
		results, err := a.AnalyzeBatch(context.Background(), []string{good, empty, missing, good})
		require.NoError(t, err)
		require.Len(t, results, 4)

		assert.Equal(t, model.AnalysisStatusCompleted, results[0].Status)
		assert.NotNil(t, results[0].Report)
		assert.Equal(t, model.AnalysisStatusEmpty, results[1].Status)
		assert.Equal(t, model.AnalysisStatusFailed, results[2].Status)
		assert.NotEmpty(t, results[2].Error)
		assert.Nil(t, results[2].Report)
		assert.Equal(t, model.AnalysisStatusCompleted, results[3].Status)
		assert.NotEqual(t, results[0].Report.ID, results[3].Report.ID)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		results, err := a.AnalyzeBatch(ctx, []string{good, good})
		assert.True(t, apperrors.IsCancelled(err))
		for _, r := range results {
			assert.Equal(t, model.AnalysisStatusCancelled, r.Status)
		}
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.AnalysisStatus
	}{
		{"ok", nil, model.AnalysisStatusCompleted},
		{"cancelled", apperrors.ErrCancelled, model.AnalysisStatusCancelled},
		{"context", context.DeadlineExceeded, model.AnalysisStatusCancelled},
		{"empty", apperrors.ErrEmptySnapshot, model.AnalysisStatusEmpty},
		{"other", errors.New("boom"), model.AnalysisStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestAnalyzer_Publish(t *testing.T) {
	report, err := New(testConfig()).AnalyzeSnapshot(context.Background(), ownersHeap(t), Source{Path: "/dumps/app.snap"})
	require.NoError(t, err)

	t.Run("write save and upload", func(t *testing.T) {
		repo := &mock.MockReportRepository{}
		repo.ExpectCreate(report.ID, nil).Once()
		base := t.TempDir()
		store, err := storage.NewLocalStorage(base)
		require.NoError(t, err)
		out := t.TempDir()

		pub, err := New(testConfig(), WithRepository(repo), WithStorage(store)).Publish(context.Background(), report,
			PublishOptions{Dir: out, Format: config.FormatJSONGz, Save: true, Upload: true})
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(out, report.ID+".json.gz"), pub.File.Path)
		assert.FileExists(t, pub.File.Path)
		assert.True(t, pub.Saved)
		repo.AssertExpectations(t)

		assert.Equal(t, storage.ReportKey("app", report.ID, ".json.gz"), pub.Key)
		assert.FileExists(t, filepath.Join(base, filepath.FromSlash(pub.Key)))
		assert.NotEmpty(t, pub.URL)
	})

	t.Run("write only", func(t *testing.T) {
		out := t.TempDir()
		pub, err := New(testConfig()).Publish(context.Background(), report, PublishOptions{Dir: out, Format: "json", Indent: true})
		require.NoError(t, err)
		assert.False(t, pub.Saved)
		assert.Empty(t, pub.Key)

		data, err := os.ReadFile(pub.File.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), report.ID)
	})

	t.Run("save failure keeps the file", func(t *testing.T) {
		repo := &mock.MockReportRepository{}
		repo.ExpectCreate(report.ID, apperrors.New(apperrors.CodeDatabaseError, "down"))
		pub, err := New(testConfig(), WithRepository(repo)).Publish(context.Background(), report,
			PublishOptions{Dir: t.TempDir(), Format: "json", Save: true})
		assert.True(t, apperrors.IsDatabaseError(err))
		require.NotNil(t, pub)
		assert.FileExists(t, pub.File.Path)
	})

	t.Run("upload failure", func(t *testing.T) {
		dir := t.TempDir()
		key := storage.ReportKey("app", report.ID, ".json")
		store := &mock.MockStorage{}
		store.ExpectUploadFile(key, filepath.Join(dir, report.ID+".json"), errors.New("bucket gone")).Once()

		pub, err := New(testConfig(), WithStorage(store)).Publish(context.Background(), report,
			PublishOptions{Dir: dir, Format: "json", Upload: true})
		assert.True(t, apperrors.IsStorageError(err))
		require.NotNil(t, pub)
		assert.Empty(t, pub.Key)
		store.AssertNotCalled(t, "GetURL", key)
	})

	t.Run("missing backends", func(t *testing.T) {
		a := New(testConfig())
		_, err := a.Publish(context.Background(), report, PublishOptions{Dir: t.TempDir(), Format: "json", Save: true})
		assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
		_, err = a.Publish(context.Background(), report, PublishOptions{Dir: t.TempDir(), Format: "json", Upload: true})
		assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := New(testConfig()).Publish(context.Background(), report, PublishOptions{Dir: t.TempDir(), Format: "xml"})
		assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
	})
}
