// Package resource names the logical owners of persisted data.
//
// A Resource is identified by its id plus the chain of scopes above it. The
// chain must end in a Namespace for the Resource to have an absolute id.
package resource

import (
	"net/url"
	"strings"

	apperrors "github.com/tendant/wirekit/internal/errors"
)

// Scope is anything a Resource can live under: a Namespace or another Resource.
type Scope interface {
	absoluteID() (string, error)
}

// Namespace is a root scope.
type Namespace string

func (n Namespace) absoluteID() (string, error) {
	return url.PathEscape(string(n)), nil
}

// Resource is an immutable (scope, id) pair.
type Resource struct {
	scope Scope
	id    string
}

// New creates a Resource under scope.
func New(scope Scope, id string) *Resource {
	return &Resource{scope: scope, id: id}
}

// Scope returns the parent scope.
func (r *Resource) Scope() Scope { return r.scope }

// ID returns the local id.
func (r *Resource) ID() string { return r.id }

// AbsoluteID joins every escaped id from the root namespace down to r with "/".
func (r *Resource) AbsoluteID() (string, error) {
	return r.absoluteID()
}

func (r *Resource) absoluteID() (string, error) {
	if r == nil {
		return "", apperrors.Configuration("resource is nil")
	}
	if r.scope == nil {
		return "", apperrors.Configuration("resource " + r.id + " is not attached to a namespace")
	}
	parent, err := r.scope.absoluteID()
	if err != nil {
		return "", err
	}
	return strings.Join([]string{parent, url.PathEscape(r.id)}, "/"), nil
}

// String returns the absolute id, or the bare id when there is none.
func (r *Resource) String() string {
	if id, err := r.AbsoluteID(); err == nil {
		return id
	}
	if r == nil {
		return "<nil>"
	}
	return r.id
}
