package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tendant/wirekit/internal/cookie"
	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/metrics"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultMaxBatch     = 64
)

// Call is one entry of a request batch.
type Call struct {
	Method []string          `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// Result is one entry of a response batch.
type Result struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler serves an API tree: POST runs a batch, GET describes the tree.
type Handler struct {
	root         Node
	logger       *slog.Logger
	maxBodyBytes int64
	maxBatch     int
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger for the handler.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMaxBodyBytes limits the request body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		h.maxBodyBytes = n
	}
}

// WithMaxBatch limits how many calls one request may carry.
func WithMaxBatch(n int) HandlerOption {
	return func(h *Handler) {
		h.maxBatch = n
	}
}

// NewHandler creates a Handler for root.
func NewHandler(root Node, opts ...HandlerOption) *Handler {
	h := &Handler{
		root:         root,
		logger:       slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
		maxBatch:     defaultMaxBatch,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.serveBatch(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, Describe(h.root))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (h *Handler) serveBatch(w http.ResponseWriter, r *http.Request) {
	var calls []Call
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&calls); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(calls) > h.maxBatch {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("too many calls in one request (max %d)", h.maxBatch),
		})
		return
	}
	metrics.RecordRPCBatch(len(calls))

	c := &Context{
		Cookies:  cookie.NewJar(r.Header.Get("Cookie")),
		Location: requestLocation(r),
	}

	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = h.dispatch(r.Context(), c, call)
	}

	for _, ck := range c.Cookies.SetCookies() {
		http.SetCookie(w, ck.HTTP())
	}
	writeJSON(w, http.StatusOK, results)
}

// dispatch runs one call. Errors and panics stay inside its Result.
func (h *Handler) dispatch(ctx context.Context, c *Context, call Call) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("api call panicked", "method", joinPath(call.Method), "panic", p)
			metrics.RecordRPCCall("panic")
			result = Result{Error: "internal error"}
		}
	}()

	data, err := h.Invoke(ctx, c, call.Method, call.Args)
	if err != nil {
		h.logError(call.Method, err)
		metrics.RecordRPCCall("error")
		return Result{Error: apperrors.MessageOf(err)}
	}
	metrics.RecordRPCCall("ok")
	return Result{Data: data}
}

// Invoke runs a single call against the tree. When the path passes through a
// context-bound node, args[0] is the client's placeholder for the Context and
// is replaced by c.
func (h *Handler) Invoke(ctx context.Context, c *Context, method []string, args []json.RawMessage) (any, error) {
	if c == nil {
		c = NewContext()
	}
	fn, bound, err := resolve(h.root, c, method)
	if err != nil {
		return nil, err
	}
	if bound && len(args) > 0 {
		args = args[1:]
	}
	return fn(ctx, args)
}

func (h *Handler) logError(method []string, err error) {
	switch {
	case apperrors.IsCode(err, apperrors.CodeInternal), !isCoded(err):
		h.logger.Error("api call failed", "method", joinPath(method), "error", err)
	default:
		h.logger.Debug("api call rejected", "method", joinPath(method), "error", err)
	}
}

func isCoded(err error) bool {
	var coded *apperrors.Error
	return errors.As(err, &coded)
}

// requestLocation is the URL the request was sent to. Scheme and host come
// from the Origin header when present; path and query always come from the
// request.
func requestLocation(r *http.Request) *url.URL {
	if origin := r.Header.Get("Origin"); origin != "" {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			return u.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
		}
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u, err := url.Parse(scheme + "://" + r.Host + r.RequestURI)
	if err != nil {
		return &url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}
	}
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
