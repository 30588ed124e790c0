// Package store defines the blob storage contract every backend implements.
package store

import (
	"context"
	"iter"

	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/resource"
)

// FileService stores named blobs on behalf of a single Resource.
type FileService interface {
	// Resource returns the resource this service stores data for.
	Resource() *resource.Resource

	// Read returns the contents of name. A missing file is a CodeNotFound error.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write stores data under name. With OnlyIfNotExists the write fails with
	// an error IsAlreadyExists recognises when name already exists.
	Write(ctx context.Context, name string, data []byte, opts ...WriteOption) error

	// Delete removes name. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error

	// List yields the names under prefix, relative to this service.
	// The sequence is lazy and can be ranged over more than once.
	List(ctx context.Context, prefix string) iter.Seq2[string, error]

	// IsAlreadyExists reports whether err came from a create-only conflict.
	IsAlreadyExists(err error) bool
}

// CanonicalNamer is implemented by backends that store several names in the
// same place. CanonicalName returns a key identical for all such names and
// distinct otherwise, across every service of the backend.
type CanonicalNamer interface {
	CanonicalName(name string) string
}

// Factory builds the FileService for the resource (scope, id).
type Factory func(scope resource.Scope, id string) (FileService, error)

// WriteOptions controls a single Write.
type WriteOptions struct {
	OnlyIfNotExists bool
}

// WriteOption configures a Write.
type WriteOption func(*WriteOptions)

// OnlyIfNotExists makes a Write fail instead of overwriting an existing file.
func OnlyIfNotExists() WriteOption {
	return func(o *WriteOptions) {
		o.OnlyIfNotExists = true
	}
}

// ApplyWriteOptions folds opts into a WriteOptions value.
func ApplyWriteOptions(opts ...WriteOption) WriteOptions {
	var o WriteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// IsNotFound reports whether err means the file does not exist.
func IsNotFound(err error) bool {
	return apperrors.IsCode(err, apperrors.CodeNotFound)
}

// Key returns "<absoluteId>/<name>" for the resource owning a service.
func Key(res *resource.Resource, name string) (string, error) {
	abs, err := res.AbsoluteID()
	if err != nil {
		return "", err
	}
	return abs + "/" + name, nil
}
