package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"github.com/damione1/collab-notes/internal/services"
)

// HandleMetrics returns live channel and persistence metrics
func HandleMetrics(metrics *services.Metrics) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		return e.JSON(http.StatusOK, metrics.Snapshot())
	}
}

// HandleHealth returns server health status
func HandleHealth(metrics *services.Metrics, persister *services.Persister) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		snapshot := metrics.Snapshot()

		status := http.StatusOK
		if snapshot.HealthStatus == services.HealthCritical {
			status = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"status":             snapshot.HealthStatus,
			"active_connections": snapshot.ActiveConnections,
			"active_rooms":       snapshot.ActiveRooms,
			"pending_writes":     persister.Pending(),
			"uptime_seconds":     snapshot.UptimeSeconds,
		}

		return e.JSON(status, response)
	}
}
