package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/tendant/wirekit/internal/cookie"
)

// RemoteError is an error the server reported for a call.
type RemoteError struct {
	Method  []string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", joinPath(e.Method), e.Message)
}

// Response is the client-side view of a Result.
type Response struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Client calls a remote API endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the API at endpoint (e.g. http://host/api).
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Batch sends calls in one request. When rc is non-nil its cookies are sent
// and cookies set by the server are stored back into it.
func (c *Client) Batch(ctx context.Context, rc *Context, calls []Call) ([]Response, error) {
	body, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if rc != nil && rc.Cookies != nil {
		if header := rc.Cookies.Header(); header != "" {
			req.Header.Set("Cookie", header)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("api returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if rc != nil && rc.Cookies != nil {
		for _, hc := range resp.Cookies() {
			rc.Cookies.Set(cookie.FromHTTP(hc))
		}
	}

	var results []Response
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("api returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}

// Call invokes method with args and decodes the result into out (which may be nil).
func (c *Client) Call(ctx context.Context, rc *Context, method []string, out any, args ...any) error {
	raw, err := marshalArgs(args)
	if err != nil {
		return err
	}
	results, err := c.Batch(ctx, rc, []Call{{Method: method, Args: raw}})
	if err != nil {
		return err
	}
	return decodeResponse(method, results[0], out)
}

func decodeResponse(method []string, r Response, out any) error {
	if r.Error != "" {
		return &RemoteError{Method: method, Message: r.Error}
	}
	if out == nil || len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decoding result of %s: %w", joinPath(method), err)
	}
	return nil
}

// Describe fetches the list of endpoints the server exposes.
func (c *Client) Describe(ctx context.Context) ([]Endpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("describing api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %s", resp.Status)
	}
	var endpoints []Endpoint
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		return nil, fmt.Errorf("decoding description: %w", err)
	}
	return endpoints, nil
}

// Discover describes the server and mirrors its tree.
func (c *Client) Discover(ctx context.Context) (*Stub, error) {
	endpoints, err := c.Describe(ctx)
	if err != nil {
		return nil, err
	}
	return c.Mirror(endpoints), nil
}

// Mirror builds a local stub tree matching endpoints.
func (c *Client) Mirror(endpoints []Endpoint) *Stub {
	root := &Stub{client: c, children: map[string]*Stub{}}
	for _, ep := range endpoints {
		node := root
		for i, name := range ep.Path {
			child, ok := node.children[name]
			if !ok {
				child = &Stub{client: c, path: slices.Clone(ep.Path[:i+1]), children: map[string]*Stub{}}
				node.children[name] = child
			}
			node = child
		}
		node.callable = true
		node.requiresContext = ep.RequiresContext
	}
	return root
}

// Stub is a local stand-in for a node of the remote tree.
type Stub struct {
	client          *Client
	path            []string
	children        map[string]*Stub
	callable        bool
	requiresContext bool
}

// Get returns the child stub name. Unknown names yield a stub whose Call fails.
func (s *Stub) Get(name string) *Stub {
	if child, ok := s.children[name]; ok {
		return child
	}
	return &Stub{client: s.client, path: append(slices.Clone(s.path), name), children: map[string]*Stub{}}
}

// Path returns the stub's method path.
func (s *Stub) Path() []string { return slices.Clone(s.path) }

// Callable reports whether the server exposes a function at this path.
func (s *Stub) Callable() bool { return s.callable }

// RequiresContext reports whether the remote function is context-bound.
func (s *Stub) RequiresContext() bool { return s.requiresContext }

// Children lists the names below this stub.
func (s *Stub) Children() []string {
	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes the remote function. Context-bound functions get a null
// placeholder as their first argument.
func (s *Stub) Call(ctx context.Context, rc *Context, out any, args ...any) error {
	if !s.callable {
		return &RemoteError{Method: s.path, Message: "no such function"}
	}
	if s.requiresContext {
		args = append([]any{nil}, args...)
	}
	return s.client.Call(ctx, rc, s.path, out, args...)
}

// Invoke calls s and decodes the result as T.
func Invoke[T any](ctx context.Context, s *Stub, rc *Context, args ...any) (T, error) {
	var out T
	err := s.Call(ctx, rc, &out, args...)
	return out, err
}
