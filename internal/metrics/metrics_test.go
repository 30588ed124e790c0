package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	RegisterPath("/rpc")

	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/rpc", "/rpc"},
		{"/rpc/extra", "/other"},
		{"/favicon.ico", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/readyz", "418")
	before := testutil.ToFloat64(counter)

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("Expected one request counted, got %v", got)
	}
}

func TestRecorders(t *testing.T) {
	hits := cacheRequestsTotal.WithLabelValues("hit")
	misses := cacheRequestsTotal.WithLabelValues("miss")
	h0, m0 := testutil.ToFloat64(hits), testutil.ToFloat64(misses)

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)

	if testutil.ToFloat64(hits)-h0 != 1 || testutil.ToFloat64(misses)-m0 != 2 {
		t.Error("Cache lookups not recorded by result")
	}

	rejected := sessionRejectionsTotal.WithLabelValues("expired")
	r0 := testutil.ToFloat64(rejected)
	RecordSessionRejected("expired")
	if testutil.ToFloat64(rejected)-r0 != 1 {
		t.Error("Session rejection not recorded")
	}
}
