package services

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/damione1/collab-notes/internal/config"
)

const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"

	// Fractions of the instance limits at which health degrades.
	warningLoad  = 0.8
	criticalLoad = 0.9

	// errorBudget is how many transport errors or dropped writes are
	// tolerated before health degrades further.
	errorBudget = 100
)

// Metrics holds the live counters of the sync channel and the persister.
type Metrics struct {
	activeConnections atomic.Int64
	totalConnections  atomic.Int64
	activeRooms       atomic.Int64

	framesReceived atomic.Int64
	framesSent     atomic.Int64
	lastFrameAt    atomic.Int64 // unix seconds

	connectionErrors    atomic.Int64
	broadcastErrors     atomic.Int64
	rateLimitViolations atomic.Int64

	persistQueued   atomic.Int64
	persistWrites   atomic.Int64
	persistRetries  atomic.Int64
	persistFailures atomic.Int64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
	m.totalConnections.Add(1)
}

func (m *Metrics) DecrementConnections() { m.activeConnections.Add(-1) }

func (m *Metrics) IncrementRooms() { m.activeRooms.Add(1) }

func (m *Metrics) DecrementRooms() { m.activeRooms.Add(-1) }

func (m *Metrics) IncrementMessagesReceived() {
	m.framesReceived.Add(1)
	m.lastFrameAt.Store(time.Now().Unix())
}

func (m *Metrics) IncrementMessagesSent() { m.framesSent.Add(1) }

func (m *Metrics) IncrementConnectionErrors() { m.connectionErrors.Add(1) }

func (m *Metrics) IncrementBroadcastErrors() { m.broadcastErrors.Add(1) }

func (m *Metrics) IncrementRateLimitViolations() { m.rateLimitViolations.Add(1) }

func (m *Metrics) IncrementPersistQueued() { m.persistQueued.Add(1) }

func (m *Metrics) IncrementPersistWrites() { m.persistWrites.Add(1) }

func (m *Metrics) IncrementPersistRetries() { m.persistRetries.Add(1) }

func (m *Metrics) IncrementPersistFailures() { m.persistFailures.Add(1) }

// MetricsSnapshot is the JSON body served on /metrics.
type MetricsSnapshot struct {
	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	ActiveRooms       int64 `json:"active_rooms"`

	MessagesReceived  int64   `json:"messages_received"`
	MessagesSent      int64   `json:"messages_sent"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	LastMessageTime   string  `json:"last_message_time"`

	ConnectionErrors    int64 `json:"connection_errors"`
	BroadcastErrors     int64 `json:"broadcast_errors"`
	RateLimitViolations int64 `json:"rate_limit_violations"`

	PersistQueued   int64 `json:"persist_queued"`
	PersistWrites   int64 `json:"persist_writes"`
	PersistRetries  int64 `json:"persist_retries"`
	PersistFailures int64 `json:"persist_failures"`

	UptimeSeconds int64  `json:"uptime_seconds"`
	MemoryUsageMB uint64 `json:"memory_usage_mb"`
	NumGoroutines int    `json:"num_goroutines"`

	HealthStatus string `json:"health_status"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(m.startTime)
	received := m.framesReceived.Load()

	lastFrame := "never"
	if at := m.lastFrameAt.Load(); at > 0 {
		lastFrame = time.Unix(at, 0).Format(time.RFC3339)
	}

	return MetricsSnapshot{
		ActiveConnections:   m.activeConnections.Load(),
		TotalConnections:    m.totalConnections.Load(),
		ActiveRooms:         m.activeRooms.Load(),
		MessagesReceived:    received,
		MessagesSent:        m.framesSent.Load(),
		MessagesPerSecond:   float64(received) / uptime.Seconds(),
		LastMessageTime:     lastFrame,
		ConnectionErrors:    m.connectionErrors.Load(),
		BroadcastErrors:     m.broadcastErrors.Load(),
		RateLimitViolations: m.rateLimitViolations.Load(),
		PersistQueued:       m.persistQueued.Load(),
		PersistWrites:       m.persistWrites.Load(),
		PersistRetries:      m.persistRetries.Load(),
		PersistFailures:     m.persistFailures.Load(),
		UptimeSeconds:       int64(uptime.Seconds()),
		MemoryUsageMB:       mem.Alloc / 1024 / 1024,
		NumGoroutines:       runtime.NumGoroutine(),
		HealthStatus:        m.healthStatus(),
	}
}

// healthStatus grades load against the instance limits together with the
// transport and storage failure counts.
func (m *Metrics) healthStatus() string {
	load := max(
		float64(m.activeConnections.Load())/config.MaxTotalConnections,
		float64(m.activeRooms.Load())/config.MaxRoomsPerInstance,
	)
	transportErrors := m.connectionErrors.Load() + m.broadcastErrors.Load()
	dropped := m.persistFailures.Load()

	switch {
	case load > criticalLoad || dropped > errorBudget:
		return HealthCritical
	case load > warningLoad || transportErrors > errorBudget || dropped > 0:
		return HealthWarning
	default:
		return HealthHealthy
	}
}
