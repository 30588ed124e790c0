package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
)

func TestHandlerBatch(t *testing.T) {
	h := NewHandler(testTree())

	apitest.New().
		Handler(h).
		Post("/api").
		JSON(`[
			{"method": ["math", "add"], "args": [2, 3]},
			{"method": ["session", "set"], "args": [null, "abc"]},
			{"method": ["session", "get"], "args": [null]}
		]`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$", 3)).
		Assert(jsonpath.Equal("$[0].data", float64(5))).
		Assert(jsonpath.Equal("$[1].data", true)).
		Assert(jsonpath.Equal("$[2].data", "abc")).
		Cookies(apitest.NewCookie("token").Value("abc").HttpOnly(true)).
		End()
}

func TestHandlerIsolatesFailures(t *testing.T) {
	h := NewHandler(testTree())

	apitest.New().
		Handler(h).
		Post("/api").
		JSON(`[
			{"method": ["boom"], "args": []},
			{"method": ["fail"], "args": []},
			{"method": ["nope"], "args": []},
			{"method": ["math", "add"], "args": [1, 1]}
		]`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$[0].error", "internal error")).
		Assert(jsonpath.Equal("$[1].error", "bad things")).
		Assert(jsonpath.Equal("$[2].error", "method not found: nope")).
		Assert(jsonpath.Equal("$[3].data", float64(2))).
		End()
}

func TestHandlerReadsRequestCookies(t *testing.T) {
	apitest.New().
		Handler(NewHandler(testTree())).
		Post("/api").
		Cookie("token", "from-browser").
		JSON(`[{"method": ["session", "get"], "args": [null]}]`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$[0].data", "from-browser")).
		CookieNotPresent("token").
		End()
}

func TestHandlerDeletesCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api",
		strings.NewReader(`[{"method": ["session", "clear"], "args": [null]}]`))
	req.Header.Set("Cookie", "token=abc")
	rec := httptest.NewRecorder()

	NewHandler(testTree()).ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Expected one Set-Cookie, got %d", len(cookies))
	}
	if cookies[0].Value != "deleted" || cookies[0].MaxAge >= 0 {
		t.Errorf("Expected deletion cookie, got %+v", cookies[0])
	}
}

func TestHandlerDescribe(t *testing.T) {
	apitest.New().
		Handler(NewHandler(testTree())).
		Get("/api").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$", 7)).
		Assert(jsonpath.Equal("$[2].path", []interface{}{"math", "add"})).
		Assert(jsonpath.Equal("$[2].requiresContext", false)).
		Assert(jsonpath.Equal("$[3].requiresContext", true)).
		End()
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	h := NewHandler(testTree(), WithMaxBatch(1))

	apitest.New().
		Handler(h).
		Post("/api").
		Body(`{not json`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()

	apitest.New().
		Handler(h).
		Post("/api").
		JSON(`[{"method": ["boom"]}, {"method": ["boom"]}]`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()

	apitest.New().
		Handler(h).
		Delete("/api").
		Expect(t).
		Status(http.StatusMethodNotAllowed).
		Header("Allow", "GET, POST").
		End()
}

func TestHandlerLocation(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"request host", nil, "http://example.com/api?x=1"},
		{"origin wins", map[string]string{"Origin": "https://app.example.org"}, "https://app.example.org/api?x=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api?x=1",
				strings.NewReader(`[{"method": ["session", "location"], "args": [null]}]`))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			NewHandler(testTree()).ServeHTTP(rec, req)

			var results []Response
			if err := json.NewDecoder(rec.Body).Decode(&results); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			var location string
			if err := json.Unmarshal(results[0].Data, &location); err != nil {
				t.Fatalf("Failed to decode location: %v", err)
			}
			if location != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, location)
			}
		})
	}
}

func TestRequestLocation(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
		want    string
	}{
		{"request host", "/api?x=1", nil, "http://example.com/api?x=1"},
		{"origin keeps path and query", "/api?x=1", map[string]string{"Origin": "https://app.example.org"}, "https://app.example.org/api?x=1"},
		{"origin without query", "/api", map[string]string{"Origin": "https://app.example.org"}, "https://app.example.org/api"},
		{"opaque origin ignored", "/api", map[string]string{"Origin": "null"}, "http://example.com/api"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := requestLocation(req).String(); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRequestLocationForwardedProto(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api?x=1", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	u := requestLocation(req)
	if u.String() != "https://example.com/api?x=1" {
		t.Errorf("Unexpected location %s", u)
	}
}

func TestHandlerInvokeDropsPlaceholder(t *testing.T) {
	h := NewHandler(testTree())
	c := NewContext()

	args, _ := marshalArgs([]any{map[string]string{"ignored": "yes"}, "v1"})
	if _, err := h.Invoke(context.Background(), c, []string{"session", "set"}, args); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	ck, ok := c.Cookies.Get("token")
	if !ok || ck.Value != "v1" {
		t.Errorf("Expected token v1, got %+v", ck)
	}

	args, _ = marshalArgs([]any{4, 5})
	got, err := h.Invoke(context.Background(), nil, []string{"math", "add"}, args)
	if err != nil || got != 9 {
		t.Errorf("Expected 9, got %v (err %v)", got, err)
	}
}
