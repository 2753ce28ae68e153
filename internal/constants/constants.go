// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Event streaming constants
const (
	// EventChannelBuffer is the buffer size for SSE listener channels
	EventChannelBuffer = 100

	// SSEHeartbeatInterval is how often an idle event stream sends a keep-alive comment
	SSEHeartbeatInterval = 15 * time.Second
)

// HTTP constants
const (
	// MaxRequestBodySize caps JSON request bodies
	MaxRequestBodySize = 1 << 20

	// ShutdownTimeout bounds graceful shutdown of the server and the running capture
	ShutdownTimeout = 30 * time.Second
)

