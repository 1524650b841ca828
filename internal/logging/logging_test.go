package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	prevBase, prevWrapped := base, wrapped
	t.Cleanup(func() { base, wrapped = prevBase, prevWrapped })

	core, logs := observer.New(zapcore.DebugLevel)
	setLogger(zap.New(core, zap.AddCaller()))
	return logs
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	observe(t)
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestMiddlewareRequestIDFromClient(t *testing.T) {
	observe(t)
	tests := []struct {
		name string
		in   string
		keep bool
	}{
		{"uuid", "3f2b8c1e-0a4d-4e7f-9b6a-1c2d3e4f5a6b", true},
		{"short token", "abc-123", true},
		{"trace style", "req_42.retry:1", true},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"spaces", "abc 123", false},
		{"header injection", "abc\r\nSet-Cookie: x=1", false},
		{"non ascii", "заявка-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header[RequestIDHeader] = []string{tt.in}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			assert.Equal(t, seen, got)
			if tt.keep {
				assert.Equal(t, tt.in, got)
			} else {
				assert.NotEqual(t, tt.in, got)
				assert.True(t, validRequestID(got), got)
			}
		})
	}
}

func TestMiddlewareLogsRoutePattern(t *testing.T) {
	logs := observe(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {})
	h := Middleware(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "GET /items/{id}", entries[0].ContextMap()["route"])
	assert.Equal(t, "/items/42", entries[0].ContextMap()["path"])
	assert.Equal(t, "", entries[1].ContextMap()["route"])
	assert.EqualValues(t, http.StatusNotFound, entries[1].ContextMap()["status"])
}

func TestCallerIsTheCallSite(t *testing.T) {
	logs := observe(t)

	Info("from helper")
	L().Info("from logger")
	WithContext(WithRequestID(context.Background(), "r1")).Info("from context")

	entries := logs.All()
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.True(t, e.Caller.Defined, e.Message)
		assert.Equal(t, "logging_test.go", filepath.Base(e.Caller.File), e.Message)
	}
	assert.Equal(t, "r1", entries[2].ContextMap()["request_id"])
}
