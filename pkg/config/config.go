// Package config provides configuration management for heapscan.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ScanOrder is the traversal order of the detailed pass.
type ScanOrder string

const (
	ScanOrderBFS ScanOrder = "bfs"
	ScanOrderDFS ScanOrder = "dfs"
)

// Output formats.
const (
	FormatJSON   = "json"
	FormatJSONGz = "json.gz"
)

// Config holds all configuration for the application.
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Output   OutputConfig   `mapstructure:"output"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// AnalysisConfig holds analysis-related configuration.
type AnalysisConfig struct {
	ScanOrder              ScanOrder     `mapstructure:"scan_order"`
	LocalityLookahead      bool          `mapstructure:"locality_lookahead"`
	AlternateDirection     bool          `mapstructure:"alternate_direction"`
	SmallCollectionMaxSize int           `mapstructure:"small_collection_max_size"`
	MinBadPercentile       float64       `mapstructure:"min_bad_percentile"`
	MinClusterOverhead     int64         `mapstructure:"min_cluster_overhead"`
	TopN                   int           `mapstructure:"top_n"`
	ProgressInterval       time.Duration `mapstructure:"progress_interval"`
	MaxWorker              int           `mapstructure:"max_worker"`
	AppPackages            []string      `mapstructure:"app_packages"` // package prefixes of the application's own classes
}

// OutputConfig controls where and how reports are written.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"` // json or json.gz
	Indent bool   `mapstructure:"indent"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // sqlite, mysql or postgres
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds report upload configuration.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"` // empty means stderr
	Color      bool   `mapstructure:"color"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	v := newViper()
	var cfg Config
	// Defaults alone always decode.
	_ = v.Unmarshal(&cfg, viper.DecodeHook(decodeHook()))
	return &cfg
}

// Load reads configuration from the specified file path. A missing file
// falls back to the defaults. Environment variables prefixed with
// HEAPSCAN_ override file values, e.g. HEAPSCAN_ANALYSIS_SCAN_ORDER.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("heapscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.heapscan")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromReader loads configuration from an in-memory document (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("heapscan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		scanOrderHook,
	)
}

// scanOrderHook accepts the long names and any letter case for ScanOrder.
func scanOrderHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(ScanOrder("")) {
		return data, nil
	}
	switch s := strings.ToLower(strings.TrimSpace(data.(string))); s {
	case "breadth-first", "breadth_first":
		return ScanOrderBFS, nil
	case "depth-first", "depth_first":
		return ScanOrderDFS, nil
	default:
		return ScanOrder(s), nil
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.scan_order", string(ScanOrderBFS))
	v.SetDefault("analysis.locality_lookahead", false)
	v.SetDefault("analysis.alternate_direction", true)
	v.SetDefault("analysis.small_collection_max_size", 4)
	v.SetDefault("analysis.min_bad_percentile", 0.1)
	v.SetDefault("analysis.min_cluster_overhead", 0)
	v.SetDefault("analysis.top_n", 20)
	v.SetDefault("analysis.progress_interval", "1s")
	v.SetDefault("analysis.max_worker", 4)

	v.SetDefault("output.dir", "./reports")
	v.SetDefault("output.format", FormatJSON)
	v.SetDefault("output.indent", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.database", "heapscan")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.secret_id", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.domain", "")
	v.SetDefault("storage.scheme", "https")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.color", true)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	a := c.Analysis
	if a.ScanOrder != ScanOrderBFS && a.ScanOrder != ScanOrderDFS {
		return fmt.Errorf("unsupported scan order: %q", a.ScanOrder)
	}
	if a.SmallCollectionMaxSize < 0 {
		return fmt.Errorf("small collection max size must not be negative")
	}
	if a.MinBadPercentile <= 0 || a.MinBadPercentile > 1 {
		return fmt.Errorf("min bad percentile must be in (0, 1], got %v", a.MinBadPercentile)
	}
	if a.MinClusterOverhead < 0 {
		return fmt.Errorf("min cluster overhead must not be negative")
	}
	if a.MaxWorker < 1 {
		return fmt.Errorf("max worker must be at least 1")
	}
	if a.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}

	switch c.Output.Format {
	case FormatJSON, FormatJSONGz:
	default:
		return fmt.Errorf("unsupported output format: %s", c.Output.Format)
	}

	if c.Database.Enabled {
		switch c.Database.Type {
		case "sqlite":
			if c.Database.DSN == "" && c.Database.Database == "" {
				return fmt.Errorf("database dsn or file is required for sqlite")
			}
		case "mysql", "postgres":
			if c.Database.DSN == "" && c.Database.Host == "" {
				return fmt.Errorf("database host is required")
			}
		default:
			return fmt.Errorf("unsupported database type: %s", c.Database.Type)
		}
	}

	// Storage details are validated by the storage package.
	if c.Storage.Enabled && c.Storage.Type != "local" && c.Storage.Type != "cos" {
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	return nil
}

// EnsureOutputDir creates the report directory if it doesn't exist.
func (c *Config) EnsureOutputDir() error {
	if c.Output.Dir == "" {
		return nil
	}
	return os.MkdirAll(c.Output.Dir, 0755)
}
