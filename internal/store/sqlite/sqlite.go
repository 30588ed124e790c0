// Package sqlite implements store.FileService on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store"
)

// listPageSize bounds how many keys List holds per query.
const listPageSize = 100

// Store keeps every resource's files in one table keyed by "<absoluteId>/<name>".
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Single writer; create-only inserts then race on the primary key instead of on the lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Factory returns a store.Factory producing services backed by this database.
func (s *Store) Factory() store.Factory {
	return s.Service
}

// Service returns the FileService for the resource (scope, id).
func (s *Store) Service(scope resource.Scope, id string) (store.FileService, error) {
	res := resource.New(scope, id)
	abs, err := res.AbsoluteID()
	if err != nil {
		return nil, err
	}
	return &Service{store: s, res: res, prefix: abs + "/"}, nil
}

// Service is the FileService of one resource.
type Service struct {
	store  *Store
	res    *resource.Resource
	prefix string
}

func (f *Service) Resource() *resource.Resource { return f.res }

func (f *Service) Read(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := f.store.db.QueryRowContext(ctx,
		`SELECT data FROM files WHERE key = ?`, f.prefix+name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("file", name)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to read file", err)
	}
	return data, nil
}

func (f *Service) Write(ctx context.Context, name string, data []byte, opts ...store.WriteOption) error {
	o := store.ApplyWriteOptions(opts...)
	now := time.Now().UTC()
	if data == nil {
		data = []byte{}
	}

	query := `
		INSERT INTO files (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if o.OnlyIfNotExists {
		query = `INSERT INTO files (key, data, updated_at) VALUES (?, ?, ?)`
	}

	_, err := f.store.db.ExecContext(ctx, query, f.prefix+name, data, now)
	if err != nil {
		if isConstraintViolation(err) {
			return apperrors.AlreadyExists("file", name, err)
		}
		return apperrors.Internal("failed to write file", err)
	}
	return nil
}

func (f *Service) Delete(ctx context.Context, name string) error {
	if _, err := f.store.db.ExecContext(ctx, `DELETE FROM files WHERE key = ?`, f.prefix+name); err != nil {
		return apperrors.Internal("failed to delete file", err)
	}
	return nil
}

// List pages through matching keys so the connection is free between pages.
func (f *Service) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	full := f.prefix + prefix
	return func(yield func(string, error) bool) {
		after := ""
		for {
			keys, err := f.page(ctx, full, after)
			if err != nil {
				yield("", err)
				return
			}
			for _, key := range keys {
				if !yield(strings.TrimPrefix(key, f.prefix), nil) {
					return
				}
			}
			if len(keys) < listPageSize {
				return
			}
			after = keys[len(keys)-1]
		}
	}
}

func (f *Service) page(ctx context.Context, prefix, after string) ([]string, error) {
	rows, err := f.store.db.QueryContext(ctx, `
		SELECT key FROM files
		WHERE substr(key, 1, length(?)) = ? AND key > ?
		ORDER BY key
		LIMIT ?
	`, prefix, prefix, after, listPageSize)
	if err != nil {
		return nil, apperrors.Internal("failed to list files", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apperrors.Internal("failed to scan key", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("failed to list files", err)
	}
	return keys, nil
}

func (f *Service) IsAlreadyExists(err error) bool {
	return isConstraintViolation(err)
}

func isConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
