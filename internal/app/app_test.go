package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/config"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.Backend = config.BackendMemory
	cfg.Canvas.GridSize = 8
	cfg.JournalDir = t.TempDir()
	return cfg
}

func TestNew_ServesRoutes(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	for _, path := range []string{"/healthz", "/readyz", "/api/config", "/api/stats", "/canvas.png?size=32"} {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestNew_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = config.BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "canvas.db")

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestNew_UnreachableStoreFails(t *testing.T) {
	// grab a port nobody listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := testConfig(t)
	cfg.Backend = config.BackendRedis
	cfg.RedisAddr = addr

	a, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, canvas.ErrStoreUnavailable)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Addr = "127.0.0.1:0"
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
