package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"

	"github.com/tendant/wirekit/internal/rpc"
)

func TestHealthEndpoints(t *testing.T) {
	s := NewServer(":0")

	apitest.New().
		Handler(s.Router()).
		Get("/healthz").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.status", "ok")).
		Header("X-Content-Type-Options", "nosniff").
		End()

	apitest.New().
		Handler(s.Router()).
		Get("/readyz").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.status", "ready")).
		End()

	s.Health().SetReady(false)
	apitest.New().
		Handler(s.Router()).
		Get("/readyz").
		Expect(t).
		Status(http.StatusServiceUnavailable).
		End()
}

func TestReadinessChecks(t *testing.T) {
	s := NewServer(":0",
		WithReadinessCheck("storage", func(context.Context) error { return nil }),
		WithReadinessCheck("secrets", func(context.Context) error { return errors.New("bucket unreachable") }),
	)

	apitest.New().
		Handler(s.Router()).
		Get("/readyz").
		Expect(t).
		Status(http.StatusServiceUnavailable).
		Assert(jsonpath.Equal("$.checks.secrets", "bucket unreachable")).
		Assert(jsonpath.NotPresent("$.checks.storage")).
		End()
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(":0")

	apitest.New().
		Handler(s.Router()).
		Get("/metrics").
		Expect(t).
		Status(http.StatusOK).
		End()
}

func TestMountAPI(t *testing.T) {
	s := NewServer(":0", WithCORS(NewCORSConfig([]string{"https://app.example.com"})))
	s.MountAPI("/api", rpc.NewHandler(rpc.Namespace{
		"hello": rpc.Fn1(func(_ context.Context, name string) (string, error) {
			return "hello " + name, nil
		}),
	}), 0)

	apitest.New().
		Handler(s.Router()).
		Post("/api").
		Header("Origin", "https://app.example.com").
		JSON(`[{"method": ["hello"], "args": ["world"]}]`).
		Expect(t).
		Status(http.StatusOK).
		Header("Access-Control-Allow-Origin", "https://app.example.com").
		Assert(jsonpath.Equal("$[0].data", "hello world")).
		End()

	apitest.New().
		Handler(s.Router()).
		Get("/api").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$", 1)).
		End()
}

func TestMountAPIRateLimit(t *testing.T) {
	s := NewServer(":0")
	s.MountAPI("/api", rpc.NewHandler(rpc.Namespace{}), 2)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(`[]`))
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send(); code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after limit, got %d", code)
	}

	other := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(`[]`))
	other.RemoteAddr = "203.0.113.8:5555"
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, other)
	if w.Code != http.StatusOK {
		t.Errorf("Other clients should not be limited, got %d", w.Code)
	}
}
