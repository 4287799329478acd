package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heapscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, ScanOrderBFS, cfg.Analysis.ScanOrder)
	assert.False(t, cfg.Analysis.LocalityLookahead)
	assert.True(t, cfg.Analysis.AlternateDirection)
	assert.Equal(t, 4, cfg.Analysis.SmallCollectionMaxSize)
	assert.Equal(t, 0.1, cfg.Analysis.MinBadPercentile)
	assert.Equal(t, int64(0), cfg.Analysis.MinClusterOverhead)
	assert.Equal(t, 20, cfg.Analysis.TopN)
	assert.Equal(t, time.Second, cfg.Analysis.ProgressInterval)
	assert.Equal(t, 4, cfg.Analysis.MaxWorker)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
analysis:
  scan_order: Depth-First
  locality_lookahead: true
  small_collection_max_size: 6
  min_cluster_overhead: 4096
  progress_interval: 250ms
  max_worker: 8
  app_packages: [com.example, org.acme]
output:
  dir: /tmp/reports
  format: json.gz
database:
  enabled: true
  type: postgres
  host: db.example.com
  port: 5432
  database: heapscan
  user: admin
  password: secret
storage:
  enabled: true
  type: cos
  bucket: dumps-1250000000
  region: ap-guangzhou
`))
	require.NoError(t, err)

	assert.Equal(t, ScanOrderDFS, cfg.Analysis.ScanOrder)
	assert.True(t, cfg.Analysis.LocalityLookahead)
	assert.Equal(t, 6, cfg.Analysis.SmallCollectionMaxSize)
	assert.Equal(t, int64(4096), cfg.Analysis.MinClusterOverhead)
	assert.Equal(t, 250*time.Millisecond, cfg.Analysis.ProgressInterval)
	assert.Equal(t, 8, cfg.Analysis.MaxWorker)
	assert.Equal(t, []string{"com.example", "org.acme"}, cfg.Analysis.AppPackages)
	assert.Equal(t, "/tmp/reports", cfg.Output.Dir)
	assert.Equal(t, FormatJSONGz, cfg.Output.Format)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "cos", cfg.Storage.Type)
	assert.Equal(t, "dumps-1250000000", cfg.Storage.Bucket)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HEAPSCAN_ANALYSIS_SCAN_ORDER", "dfs")
	t.Setenv("HEAPSCAN_ANALYSIS_TOP_N", "5")

	cfg, err := Load(writeConfig(t, "analysis:\n  scan_order: bfs\n"))
	require.NoError(t, err)
	assert.Equal(t, ScanOrderDFS, cfg.Analysis.ScanOrder)
	assert.Equal(t, 5, cfg.Analysis.TopN)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ScanOrderBFS, cfg.Analysis.ScanOrder)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"scan order", "analysis:\n  scan_order: random\n", "unsupported scan order"},
		{"negative small max", "analysis:\n  small_collection_max_size: -1\n", "small collection max size"},
		{"zero percentile", "analysis:\n  min_bad_percentile: 0\n", "min bad percentile"},
		{"percentile above one", "analysis:\n  min_bad_percentile: 1.5\n", "min bad percentile"},
		{"workers", "analysis:\n  max_worker: 0\n", "max worker"},
		{"output format", "output:\n  format: xml\n", "unsupported output format"},
		{"database type", "database:\n  enabled: true\n  type: oracle\n", "unsupported database type"},
		{"database host", "database:\n  enabled: true\n  type: mysql\n  host: \"\"\n", "database host is required"},
		{"storage type", "storage:\n  enabled: true\n  type: ftp\n", "unsupported storage type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DisabledSectionsIgnored(t *testing.T) {
	cfg := Default()
	cfg.Database.Type = "oracle"
	cfg.Storage.Type = "ftp"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte(`
analysis:
  scan_order: BFS
database:
  enabled: true
  type: sqlite
  dsn: "file::memory:"
`))
	require.NoError(t, err)
	assert.Equal(t, ScanOrderBFS, cfg.Analysis.ScanOrder)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
}

func TestEnsureOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports", "daily")
	cfg := Default()
	cfg.Output.Dir = dir

	require.NoError(t, cfg.EnsureOutputDir())
	_, err := os.Stat(dir)
	assert.NoError(t, err)
}
