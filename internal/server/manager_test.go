package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func localConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestDefaultConfig_FromMetrics(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	mc := config.DefaultMetricsConfig()
	assert.Equal(t, mc.ListenAddr, cfg.Addr)
	assert.Equal(t, mc.ReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, 2*mc.ReadTimeout, cfg.WriteTimeout)
	assert.Equal(t, mc.ShutdownTimeout, cfg.ShutdownTimeout)
}

func TestManager_StartAndShutdown(t *testing.T) {
	t.Parallel()
	m := NewManager(okHandler(), localConfig(), zap.NewNop())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_DoubleStart(t *testing.T) {
	t.Parallel()
	m := NewManager(okHandler(), localConfig(), nil)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.Error(t, m.Start())
}

func TestManager_StartAfterShutdown(t *testing.T) {
	t.Parallel()
	m := NewManager(okHandler(), localConfig(), nil)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Error(t, m.Start())
}

func TestManager_ListenError(t *testing.T) {
	t.Parallel()
	first := NewManager(okHandler(), localConfig(), nil)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := localConfig()
	cfg.Addr = first.Addr()
	second := NewManager(okHandler(), cfg, nil)
	assert.Error(t, second.Start())
}

func TestManager_RunStopsOnContext(t *testing.T) {
	t.Parallel()
	m := NewManager(okHandler(), localConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.False(t, m.IsRunning())
}
