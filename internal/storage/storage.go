// Package storage uploads reports to, and fetches snapshots from, the
// local filesystem or Tencent COS.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/heapscan/pkg/config"
)

// Storage defines the interface for object storage operations.
type Storage interface {
	// Upload writes the reader's content to key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// UploadFile uploads a local file to key.
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download opens the object at key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadFile copies the object at key to a local file.
	DownloadFile(ctx context.Context, key string, localPath string) error

	// Delete removes the object at key. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns where the object at key can be fetched from.
	GetURL(key string) string
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// KeyScheme prefixes snapshot paths that live in the configured storage,
// e.g. "storage://dumps/app.snap".
const KeyScheme = "storage://"

// NewStorage creates a new Storage instance based on the configuration.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if StorageType(cfg.Type) == StorageTypeCOS {
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	}
	return NewLocalStorage(cfg.LocalPath)
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return fmt.Errorf("storage config is nil")
	}

	switch StorageType(cfg.Type) {
	case StorageTypeLocal, "":
		if cfg.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	case StorageTypeCOS:
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	return nil
}

// ReportKey returns the object key of a report file:
// reports/<snapshot>/<id><ext>.
func ReportKey(snapshot, id, ext string) string {
	snapshot = strings.Trim(path.Clean("/"+snapshot), "/")
	if snapshot == "" {
		snapshot = "unnamed"
	}
	return path.Join("reports", snapshot, id+ext)
}

// ParseKey returns the storage key of a "storage://" path.
func ParseKey(p string) (string, bool) {
	key, ok := strings.CutPrefix(p, KeyScheme)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
