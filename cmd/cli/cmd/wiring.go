package cmd

import (
	"context"
	"strings"

	"github.com/heapscan/internal/analyzer"
	"github.com/heapscan/internal/repository"
	"github.com/heapscan/internal/storage"
	apperrors "github.com/heapscan/pkg/errors"
)

// backends are the optional database and storage connections of a command.
type backends struct {
	repos *repository.Repositories
	store storage.Storage
}

// openBackends connects the database when useDB is set or the config
// enables it, and the storage when useStorage is set, the config enables it
// or a path needs it.
func openBackends(ctx context.Context, useDB, useStorage bool, paths ...string) (*backends, error) {
	b := &backends{}
	for _, p := range paths {
		if strings.HasPrefix(p, storage.KeyScheme) {
			useStorage = true
		}
	}

	if useDB || cfg.Database.Enabled {
		db, err := repository.NewGormDB(ctx, &cfg.Database)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to open database", err)
		}
		b.repos = repository.NewRepositories(db)
		logger.Debug("connected to %s database", cfg.Database.Type)
	}

	if useStorage || cfg.Storage.Enabled {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			b.Close()
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to create storage", err)
		}
		b.store = store
	}
	return b, nil
}

// Close releases the database connection.
func (b *backends) Close() {
	if b.repos == nil {
		return
	}
	if err := b.repos.Close(); err != nil {
		logger.Warn("failed to close database: %v", err)
	}
}

func (b *backends) analyzerOptions() []analyzer.Option {
	opts := []analyzer.Option{
		analyzer.WithLogger(logger),
		analyzer.WithVersion(Version),
		analyzer.WithVerbose(verbose),
	}
	if b.repos != nil {
		opts = append(opts, analyzer.WithRepository(b.repos.Report))
	}
	if b.store != nil {
		opts = append(opts, analyzer.WithStorage(b.store))
	}
	return opts
}
