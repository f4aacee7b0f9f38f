// internal/protocol/tcp_connection.go
package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-service/pkg/printer"
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnected
	stateBroken
)

// TCPConnection implements Transport over a plain TCP socket. One instance
// is exclusively owned by one adapter; the adapter's operation lock is the
// only concurrency guard above the internal mutex.
type TCPConnection struct {
	addr    string
	timeout time.Duration
	logger  *zap.Logger

	mutex sync.Mutex
	conn  net.Conn
	state connState
	stats ConnStats
}

// NewTCPConnection creates a disconnected TCP transport for the given
// address. The timeout bounds dialing, every write and every read.
func NewTCPConnection(addr string, timeout time.Duration, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		addr:    addr,
		timeout: timeout,
		logger: logger.With(
			zap.String("protocol", "tcp"),
			zap.String("addr", addr),
		),
	}
}

// Connect dials the printer. Reconnecting a broken connection is allowed;
// connecting an already-connected transport is a no-op.
func (tc *TCPConnection) Connect(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.state == stateConnected {
		return nil
	}

	// A broken connection still holds the dead socket.
	if tc.conn != nil {
		tc.conn.Close()
		tc.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   tc.timeout,
		KeepAlive: 30 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", tc.addr)
	if err != nil {
		tc.stats.ErrorCount++
		tc.logger.Error("Failed to open TCP connection", zap.Error(err))
		return &printer.ConnectionError{Addr: tc.addr, Err: err}
	}

	tc.conn = conn
	tc.state = stateConnected
	tc.stats.IsConnected = true
	tc.stats.LastActivity = time.Now()

	tc.logger.Debug("TCP connection opened")
	return nil
}

// Close closes the connection. Idempotent: closing a disconnected
// transport always succeeds.
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.conn == nil {
		tc.state = stateDisconnected
		return nil
	}

	err := tc.conn.Close()
	tc.conn = nil
	tc.state = stateDisconnected
	tc.stats.IsConnected = false

	if err != nil {
		tc.logger.Warn("Error closing TCP connection", zap.Error(err))
	}
	return nil
}

// IsConnected reports whether the connection is established and usable.
func (tc *TCPConnection) IsConnected() bool {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.state == stateConnected && tc.conn != nil
}

// Broken reports whether the last exchange poisoned the connection.
func (tc *TCPConnection) Broken() bool {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.state == stateBroken
}

// Send writes data to the socket within the configured timeout.
func (tc *TCPConnection) Send(ctx context.Context, data []byte) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.state != stateConnected || tc.conn == nil {
		return &printer.ConnectionError{Addr: tc.addr, Err: fmt.Errorf("not connected")}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	deadline := time.Now().Add(tc.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	tc.conn.SetWriteDeadline(deadline)

	startTime := time.Now()
	n, err := tc.conn.Write(data)
	if err != nil {
		tc.stats.ErrorCount++
		tc.state = stateBroken
		if isTimeout(err) {
			tc.logger.Warn("TCP write timed out")
			return &printer.TimeoutError{Op: "send", Err: err}
		}
		tc.logger.Error("TCP write failed", zap.Error(err))
		return &printer.ConnectionError{Addr: tc.addr, Err: err}
	}
	if n != len(data) {
		tc.stats.ErrorCount++
		tc.state = stateBroken
		return &printer.ConnectionError{Addr: tc.addr, Err: fmt.Errorf("incomplete write: %d of %d bytes", n, len(data))}
	}

	tc.stats.BytesWritten += int64(len(data))
	tc.stats.OperationCount++
	tc.stats.LastActivity = time.Now()
	tc.updateAverageLatency(time.Since(startTime))

	tc.logger.Debug("TCP write completed", zap.Int("bytes", len(data)))
	return nil
}

// Receive reads up to maxBytes from the socket, returning whatever a
// single read produced.
func (tc *TCPConnection) Receive(ctx context.Context, maxBytes int) ([]byte, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.state != stateConnected || tc.conn == nil {
		return nil, &printer.ConnectionError{Addr: tc.addr, Err: fmt.Errorf("not connected")}
	}

	tc.setReadDeadline(ctx)

	buffer := make([]byte, maxBytes)
	n, err := tc.conn.Read(buffer)
	if err != nil {
		return nil, tc.readError("receive", err)
	}

	tc.stats.BytesRead += int64(n)
	tc.stats.OperationCount++
	tc.stats.LastActivity = time.Now()

	out := make([]byte, n)
	copy(out, buffer[:n])
	return out, nil
}

// ReceiveUntil reads from the socket until the terminator byte arrives,
// returning the full frame including the terminator. A frame exceeding
// maxBytes or a peer that closes mid-frame is a protocol error.
func (tc *TCPConnection) ReceiveUntil(ctx context.Context, terminator byte, maxBytes int) ([]byte, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.state != stateConnected || tc.conn == nil {
		return nil, &printer.ConnectionError{Addr: tc.addr, Err: fmt.Errorf("not connected")}
	}

	tc.setReadDeadline(ctx)

	var frame bytes.Buffer
	chunk := make([]byte, 256)
	for {
		n, err := tc.conn.Read(chunk)
		if n > 0 {
			frame.Write(chunk[:n])
			tc.stats.BytesRead += int64(n)
		}
		if err != nil {
			if err == io.EOF && frame.Len() > 0 {
				tc.state = stateBroken
				tc.stats.ErrorCount++
				return nil, &printer.ProtocolError{Reason: "connection closed mid-frame", Raw: frame.Bytes()}
			}
			return nil, tc.readError("receive", err)
		}
		if idx := bytes.IndexByte(frame.Bytes(), terminator); idx >= 0 {
			tc.stats.OperationCount++
			tc.stats.LastActivity = time.Now()
			out := make([]byte, idx+1)
			copy(out, frame.Bytes()[:idx+1])
			return out, nil
		}
		if frame.Len() > maxBytes {
			tc.state = stateBroken
			tc.stats.ErrorCount++
			return nil, &printer.ProtocolError{Reason: fmt.Sprintf("frame exceeds %d bytes without terminator", maxBytes), Raw: frame.Bytes()}
		}
	}
}

// Stats returns a copy of the transport statistics.
func (tc *TCPConnection) Stats() ConnStats {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.stats
}

func (tc *TCPConnection) setReadDeadline(ctx context.Context) {
	deadline := time.Now().Add(tc.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	tc.conn.SetReadDeadline(deadline)
}

func (tc *TCPConnection) readError(op string, err error) error {
	tc.stats.ErrorCount++
	tc.state = stateBroken
	if isTimeout(err) {
		tc.logger.Warn("TCP read timed out", zap.String("op", op))
		return &printer.TimeoutError{Op: op, Err: err}
	}
	tc.logger.Error("TCP read failed", zap.String("op", op), zap.Error(err))
	return &printer.ConnectionError{Addr: tc.addr, Err: err}
}

func (tc *TCPConnection) updateAverageLatency(newLatency time.Duration) {
	if tc.stats.AverageLatency == 0 {
		tc.stats.AverageLatency = newLatency
	} else {
		tc.stats.AverageLatency = (tc.stats.AverageLatency + newLatency) / 2
	}
}

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
