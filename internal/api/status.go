package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/bumper/internal/device"
	"github.com/nerrad567/bumper/internal/relay"
)

// SystemStatus is the /api/system/status response.
type SystemStatus struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	AuthMode      string           `json:"auth_mode"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Bots          device.Stats     `json:"bots"`
	Relay         RelayMetrics     `json:"relay"`
	Sessions      SessionMetrics   `json:"sessions"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains bus connection state.
type MQTTMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// subscriptionCounter is implemented by buses that track their topics.
type subscriptionCounter interface {
	Subscriptions() int
}

// RelayMetrics contains command relay statistics.
type RelayMetrics struct {
	Pending         int                 `json:"pending"`
	DeadlineSeconds float64             `json:"deadline_seconds"`
	Commands        []relay.PendingInfo `json:"commands"`
}

// SessionMetrics contains token and legacy session counts.
type SessionMetrics struct {
	Tokens         int `json:"tokens"`
	LegacySessions int `json:"legacy_sessions"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	Healthy         bool  `json:"healthy"`
}

// handleStatus returns a snapshot of the server's state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	tokens, err := s.sessions.ActiveTokens(r.Context())
	if err != nil {
		s.logger.Warn("counting tokens for status", "error", err)
	}

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		AuthMode:      s.cfg.Auth.Mode,
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Bots:      s.registry.GetStats(),
		Relay: RelayMetrics{
			Pending:         s.relay.Pending(),
			DeadlineSeconds: s.relay.Deadline().Seconds(),
			Commands:        s.relay.Snapshot(),
		},
		Sessions: SessionMetrics{
			Tokens:         tokens,
			LegacySessions: s.presence.Len(),
		},
	}
	if s.bus != nil {
		status.MQTT.Connected = s.bus.Connected()
		if sc, ok := s.bus.(subscriptionCounter); ok {
			status.MQTT.Subscriptions = sc.Subscriptions()
		}
	}
	if s.db != nil {
		stats := s.db.Stats()
		healthErr := s.db.HealthCheck(r.Context())
		if healthErr != nil {
			s.logger.Warn("database health check failed", "error", healthErr)
		}
		status.Database = &DatabaseMetrics{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
			WaitCount:       stats.WaitCount,
			Healthy:         healthErr == nil,
		}
	}

	writeJSON(w, http.StatusOK, status)
}
