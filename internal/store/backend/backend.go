// Package backend builds the store.Factory selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/wirekit/internal/config"
	"github.com/tendant/wirekit/internal/store"
	"github.com/tendant/wirekit/internal/store/cache"
	"github.com/tendant/wirekit/internal/store/file"
	s3store "github.com/tendant/wirekit/internal/store/s3"
	"github.com/tendant/wirekit/internal/store/sqlite"
)

// Backend is an opened storage backend.
type Backend struct {
	Factory store.Factory
	Name    string
	closers []func() error
}

// Close releases whatever the backend holds open.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// Open selects and opens the backend named by cfg.StorageBackend, wrapping it
// in a read cache when cfg.CacheTTL is positive.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{Name: cfg.StorageBackend}

	switch cfg.StorageBackend {
	case config.BackendFile, "":
		s, err := file.NewStore(cfg.DataDir, file.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.Factory = s.Factory()
		logger.Info("using file storage", "data_dir", cfg.DataDir)

	case config.BackendSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.Factory = s.Factory()
		b.closers = append(b.closers, s.Close)

	case config.BackendS3:
		s, err := s3store.New(ctx, s3store.Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		}, s3store.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.Factory = s.Factory()
		logger.Info("using s3 storage", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.CacheTTL > 0 {
		c, err := cache.New(ctx, b.Factory, cfg.CacheTTL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Factory = c.Factory()
		b.closers = append(b.closers, c.Close)
		logger.Info("read cache enabled", "ttl", cfg.CacheTTL)
	}

	return b, nil
}
