package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damione1/collab-notes/internal/handlers"
	"github.com/damione1/collab-notes/internal/services"
)

func TestHandleMetrics(t *testing.T) {
	metrics := services.NewMetrics()
	metrics.IncrementConnections()
	metrics.IncrementPersistWrites()

	e, rec := newRequestEvent(http.MethodGet, "/metrics", "", nil)
	require.NoError(t, handlers.HandleMetrics(metrics)(e))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["active_connections"])
	assert.Equal(t, float64(1), body["persist_writes"])
	assert.Equal(t, "healthy", body["health_status"])
}

func TestHandleHealth(t *testing.T) {
	metrics := services.NewMetrics()
	persister := services.NewPersister(services.DefaultPersisterConfig(), nil, metrics, quietLogger())

	e, rec := newRequestEvent(http.MethodGet, "/healthz", "", nil)
	require.NoError(t, handlers.HandleHealth(metrics, persister)(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, rec)["status"])

	for i := 0; i < 101; i++ {
		metrics.IncrementPersistFailures()
	}
	e, rec = newRequestEvent(http.MethodGet, "/healthz", "", nil)
	require.NoError(t, handlers.HandleHealth(metrics, persister)(e))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "critical", decode[map[string]any](t, rec)["status"])
}
