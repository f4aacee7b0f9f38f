// internal/protocol/protocol.go
package protocol

import (
	"context"
	"time"
)

// Transport is a raw byte-stream connection to a printer. It owns no
// protocol knowledge and performs no retries; retry policy belongs to the
// adapters above it.
type Transport interface {
	// Connection lifecycle
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool

	// Broken reports whether the connection was poisoned by a timed-out or
	// malformed exchange. A broken connection must be re-established with
	// Connect before further use.
	Broken() bool

	// Data exchange. Send and both receive forms fail with
	// *printer.TimeoutError when the peer does not complete the exchange
	// within the configured timeout, marking the connection broken.
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context, maxBytes int) ([]byte, error)
	ReceiveUntil(ctx context.Context, terminator byte, maxBytes int) ([]byte, error)

	// Diagnostics
	Stats() ConnStats
}

// ConnStats provides transport-level statistics.
type ConnStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}
