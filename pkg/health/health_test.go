package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"miniapp-rewards/pkg/config"
	"miniapp-rewards/pkg/kvstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type downStore struct{ kvstore.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func serve(t *testing.T, h HealthService, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestReadiness(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Driver = kvstore.DriverMemory

	h := ProvideHealth(HealthParams{Config: cfg, Store: kvstore.NewMemoryStore()})
	w := serve(t, h, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"name":"memory"`)

	h = ProvideHealth(HealthParams{Config: cfg, Store: downStore{}})
	w = serve(t, h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "connection refused")
}

func TestLiveness(t *testing.T) {
	h := ProvideHealth(HealthParams{Config: &config.Config{}, Store: downStore{}})
	w := serve(t, h, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
}
