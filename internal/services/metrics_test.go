package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/damione1/collab-notes/internal/config"
	"github.com/damione1/collab-notes/internal/services"
)

func TestMetrics_HealthFollowsInstanceLimits(t *testing.T) {
	tests := []struct {
		name  string
		rooms int
		conns int
		want  string
	}{
		{"idle", 0, 0, services.HealthHealthy},
		{"rooms at 80%", config.MaxRoomsPerInstance * 8 / 10, 0, services.HealthHealthy},
		{"rooms past 80%", config.MaxRoomsPerInstance*8/10 + 1, 0, services.HealthWarning},
		{"rooms past 90%", config.MaxRoomsPerInstance*9/10 + 1, 0, services.HealthCritical},
		{"connections past 90%", 0, config.MaxTotalConnections*9/10 + 1, services.HealthCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := services.NewMetrics()
			for i := 0; i < tt.rooms; i++ {
				m.IncrementRooms()
			}
			for i := 0; i < tt.conns; i++ {
				m.IncrementConnections()
			}
			assert.Equal(t, tt.want, m.Snapshot().HealthStatus)
		})
	}
}

func TestMetrics_DroppedWritesDegradeHealth(t *testing.T) {
	m := services.NewMetrics()
	m.IncrementPersistFailures()
	assert.Equal(t, services.HealthWarning, m.Snapshot().HealthStatus)

	for i := 0; i < 100; i++ {
		m.IncrementPersistFailures()
	}
	snap := m.Snapshot()
	assert.Equal(t, services.HealthCritical, snap.HealthStatus)
	assert.EqualValues(t, 101, snap.PersistFailures)
}
