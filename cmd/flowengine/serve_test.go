package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestOpsHandler_Healthz(t *testing.T) {
	t.Parallel()
	h := newOpsHandler(fakePinger{}, zap.NewNop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestOpsHandler_HealthzUnavailable(t *testing.T) {
	t.Parallel()
	h := newOpsHandler(fakePinger{err: errors.New("redis down")}, zap.NewNop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "redis down", resp.Error)
}

func TestOpsHandler_VersionAndMetrics(t *testing.T) {
	t.Parallel()
	h := newOpsHandler(fakePinger{}, zap.NewNop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), Version)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestHealthCommand(t *testing.T) {
	t.Parallel()
	healthy := httptest.NewServer(newOpsHandler(fakePinger{}, zap.NewNop()))
	t.Cleanup(healthy.Close)
	sick := httptest.NewServer(newOpsHandler(fakePinger{err: errors.New("down")}, zap.NewNop()))
	t.Cleanup(sick.Close)

	code, stdout, _ := runCLI(t, "health", "-addr", healthy.URL)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "healthy")

	code, _, stderr := runCLI(t, "health", "-addr", sick.URL)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "status 503")
}
