package relay

import (
	"net/http"
	"time"
)

// ConnConfig holds configuration for WebSocket connections.
type ConnConfig struct {
	// WriteWait bounds a single frame write.
	WriteWait time.Duration

	// PongWait is how long a connection may go without a liveness ack
	// before the server forcibly terminates it.
	PongWait time.Duration

	// PingInterval is the server probe period. Must be shorter than
	// PongWait or every connection times out between probes.
	PingInterval time.Duration

	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnConfig returns the standard connection tuning.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins; the room secret is the access control.
			return true
		},
	}
}
