// Package file implements store.FileService on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store"
)

var dotRuns = regexp.MustCompile(`\.+`)

// sanitize keeps names from climbing out of their resource directory.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "~", "-")
	return dotRuns.ReplaceAllString(name, ".")
}

// resourceDir maps an absolute id onto a relative directory. Ids are path
// escaped, so a segment that is all dots after sanitize can only come from an
// id like "." or "..", which is escaped again instead of letting Join fold it
// into its parent.
func resourceDir(abs string) string {
	segs := strings.Split(sanitize(abs), "/")
	for i, seg := range segs {
		if seg == "." {
			segs[i] = "%2E"
		}
	}
	return filepath.FromSlash(strings.Join(segs, "/"))
}

// Store roots every resource directory under dataDir.
type Store struct {
	dataDir string
	logger  *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a new file-based store.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dataDir: dataDir,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Factory returns a store.Factory producing services rooted in this store.
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
	return &Service{
		res:  res,
		dir:  filepath.Join(s.dataDir, resourceDir(abs)),
		logs: s.logger,
	}, nil
}

// Service is the FileService of one resource directory.
type Service struct {
	res  *resource.Resource
	dir  string
	logs *slog.Logger
}

func (f *Service) Resource() *resource.Resource { return f.res }

func (f *Service) path(name string) string {
	return filepath.Join(f.dir, filepath.FromSlash(sanitize(name)))
}

// CanonicalName is the path name is stored at. Names that sanitize to the
// same file share it.
func (f *Service) CanonicalName(name string) string {
	return f.path(name)
}

func (f *Service) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NotFound("file", name)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to read file", err)
	}
	return data, nil
}

// Write stages data in a temporary file and then publishes it, so readers
// never see a partially written file. Create-only writes publish with a hard
// link, which fails if name already exists.
func (f *Service) Write(ctx context.Context, name string, data []byte, opts ...store.WriteOption) error {
	o := store.ApplyWriteOptions(opts...)
	path := f.path(name)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return apperrors.Internal("failed to create directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperrors.Internal("failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Internal("failed to write file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Internal("failed to close file", err)
	}

	if o.OnlyIfNotExists {
		err = os.Link(tmp.Name(), path)
	} else {
		err = os.Rename(tmp.Name(), path)
	}
	if errors.Is(err, fs.ErrExist) {
		return apperrors.AlreadyExists("file", name, err)
	}
	if err != nil {
		return apperrors.Internal("failed to publish file", err)
	}

	f.logs.Debug("file written", "resource", f.res.String(), "name", name, "bytes", len(data))
	return nil
}

func (f *Service) Delete(ctx context.Context, name string) error {
	err := os.Remove(f.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Internal("failed to delete file", err)
	}
	return nil
}

func (f *Service) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	prefix = sanitize(prefix)
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
				return nil
			}
			rel, err := filepath.Rel(f.dir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !strings.HasPrefix(rel, prefix) {
				return nil
			}
			if !yield(rel, nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", apperrors.Internal("failed to list files", err))
		}
	}
}

func (f *Service) IsAlreadyExists(err error) bool {
	return errors.Is(err, fs.ErrExist)
}
