// pkg/printer/errors.go
package printer

import (
	"errors"
	"fmt"
)

// ConnectionError indicates the device is unreachable or the connection dropped.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("connection to %s failed", e.Addr)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError indicates the device did not respond within the configured timeout.
// Fiscal operations retry it exactly once over a re-established connection.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProtocolError indicates malformed or unexpected response bytes. Never retried.
type ProtocolError struct {
	Reason string
	Raw    []byte
}

func (e *ProtocolError) Error() string {
	if len(e.Raw) > 0 {
		return fmt.Sprintf("protocol error: %s (raw %x)", e.Reason, e.Raw)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// StateError indicates an operation that is illegal in the current receipt
// lifecycle state. It signals a caller-side logic defect and is never
// retried or suppressed.
type StateError struct {
	State string
	Op    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("operation %q not allowed in state %q", e.Op, e.State)
}

// ValidationError indicates caller-supplied data violating field constraints.
// Never retried or suppressed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DeviceError indicates the device reported an internal fault code (NAK).
type DeviceError struct {
	Code    byte
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("device error 0x%02X: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("device error 0x%02X", e.Code)
}

// IsRetryable reports whether the adapter-level single retry applies.
// Only timeouts qualify; everything else either indicates a caller defect
// or would repeat the same wire exchange against a confused device.
func IsRetryable(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsFailSafeSuppressible reports whether fail-safe mode may convert the
// error into a soft success during the composite print-receipt path.
// StateError and ValidationError are excluded: they mean the caller built
// an illegal sequence and masking that would hide the defect.
func IsFailSafeSuppressible(err error) bool {
	var (
		ce *ConnectionError
		te *TimeoutError
		de *DeviceError
	)
	return errors.As(err, &ce) || errors.As(err, &te) || errors.As(err, &de)
}
