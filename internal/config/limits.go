package config

import "time"

// WebSocket connection limits and constraints
const (
	// Connection limits
	MaxConnectionsPerRoom = 50
	MaxRoomsPerInstance   = 1000
	MaxTotalConnections   = 10000

	// Rate limiting
	MaxMessagesPerSecond = 20
	RateLimitWindow      = time.Second

	// Payload limits
	MaxMessageSize       = 1 << 20 // 1 MiB per frame
	MaxContentLength     = 512 * 1024
	MaxRoomIDLength      = 128
	MaxDisplayNameLength = 50

	// Timeouts
	WriteTimeout = 10 * time.Second
	PingInterval = 30 * time.Second
	PongTimeout  = 90 * time.Second // 3x ping interval for network delay tolerance

	// Channel buffers
	ClientSendBufferSize = 256
)
