// Package rpc exposes a tree of Go functions over HTTP as a call-tree API.
//
// A client posts a batch of calls, each naming a path into the tree and its
// positional JSON arguments. Subtrees built with WithContext are evaluated
// per request against the request's Context, which is how handlers reach
// cookies and the request location.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/tendant/wirekit/internal/cookie"
	apperrors "github.com/tendant/wirekit/internal/errors"
)

// Context is the per-request state available to context-bound functions.
type Context struct {
	Cookies  *cookie.Jar
	Location *url.URL
}

// NewContext returns a Context with an empty jar.
func NewContext() *Context {
	return &Context{Cookies: cookie.NewJar("")}
}

// Node is an element of an API tree: Namespace, Func or *Bound.
type Node interface {
	// RequiresContext reports whether calls through this node need a Context.
	RequiresContext() bool
}

// Namespace maps names to child nodes.
type Namespace map[string]Node

func (Namespace) RequiresContext() bool { return false }

// Func is a leaf taking positional JSON arguments.
type Func func(ctx context.Context, args []json.RawMessage) (any, error)

func (Func) RequiresContext() bool { return false }

// Bound is a subtree built per request from a Context.
type Bound struct {
	factory func(*Context) Node
	path    []string
}

// WithContext wraps factory so the tree it returns is rebuilt for every
// request with that request's Context.
func WithContext(factory func(*Context) Node) *Bound {
	return &Bound{factory: factory}
}

func (*Bound) RequiresContext() bool { return true }

// Get scopes b to the child name. Nothing is evaluated until Call.
func (b *Bound) Get(name string) *Bound {
	path := append(slices.Clone(b.path), name)
	return &Bound{factory: b.factory, path: path}
}

// Resolve applies the factory to c and walks b's path.
func (b *Bound) Resolve(c *Context) (Node, error) {
	if c == nil {
		c = NewContext()
	}
	node := b.factory(c)
	for i, name := range b.path {
		ns, ok := node.(Namespace)
		if !ok {
			return nil, notFound(b.path[:i+1])
		}
		if node, ok = ns[name]; !ok {
			return nil, notFound(b.path[:i+1])
		}
	}
	return node, nil
}

// Call resolves b against c and invokes the function it names.
func (b *Bound) Call(ctx context.Context, c *Context, args []json.RawMessage) (any, error) {
	if c == nil {
		c = NewContext()
	}
	fn, _, err := resolve(b, c, nil)
	if err != nil {
		return nil, err
	}
	return fn(ctx, args)
}

// Invoke is Call with Go values marshalled to JSON, for in-process use.
func (b *Bound) Invoke(ctx context.Context, c *Context, args ...any) (any, error) {
	raw, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}
	return b.Call(ctx, c, raw)
}

// RequiresContext reports whether n needs a Context to be called.
func RequiresContext(n Node) bool {
	return n != nil && n.RequiresContext()
}

// resolve walks path from node, expanding Bound nodes against c. It reports
// whether a Bound was crossed.
func resolve(node Node, c *Context, path []string) (Func, bool, error) {
	bound := false
	walked := make([]string, 0, len(path))
	for {
		if b, ok := node.(*Bound); ok {
			bound = true
			node = b.factory(c)
			path = append(slices.Clone(b.path), path...)
			continue
		}
		if len(path) == 0 {
			break
		}
		ns, ok := node.(Namespace)
		if !ok {
			return nil, bound, notFound(append(walked, path[0]))
		}
		walked = append(walked, path[0])
		next, ok := ns[path[0]]
		if !ok || next == nil {
			return nil, bound, notFound(walked)
		}
		node, path = next, path[1:]
	}

	fn, ok := node.(Func)
	if !ok || fn == nil {
		return nil, bound, apperrors.InvalidInput(fmt.Sprintf("%s is not a function", joinPath(walked)))
	}
	return fn, bound, nil
}

func notFound(path []string) error {
	return apperrors.NotFound("method", joinPath(path))
}

func joinPath(path []string) string {
	if len(path) == 0 {
		return "<root>"
	}
	return strings.Join(path, ".")
}

// Endpoint describes one callable path.
type Endpoint struct {
	Path            []string `json:"path"`
	RequiresContext bool     `json:"requiresContext"`
}

// Describe lists every function reachable from n. Bound subtrees are
// expanded with an empty Context.
func Describe(n Node) []Endpoint {
	out := []Endpoint{}
	describe(n, nil, false, &out)
	sort.Slice(out, func(i, j int) bool {
		return joinPath(out[i].Path) < joinPath(out[j].Path)
	})
	return out
}

func describe(n Node, path []string, bound bool, out *[]Endpoint) {
	switch n := n.(type) {
	case *Bound:
		node, err := n.Resolve(NewContext())
		if err != nil {
			return
		}
		describe(node, path, true, out)
	case Namespace:
		for name, child := range n {
			describe(child, append(slices.Clone(path), name), bound, out)
		}
	case Func:
		if n != nil {
			*out = append(*out, Endpoint{Path: path, RequiresContext: bound})
		}
	}
}
