package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/avlink-protocol/avlink-go/pkg/breaker"
	"github.com/avlink-protocol/avlink-go/pkg/controller"
	"github.com/avlink-protocol/avlink-go/pkg/pool"
	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

// Stable machine-checkable result codes. UI layers render these
// without interpreting error internals.
const (
	CodeCircuitOpen           = "circuit_open"
	CodeAuthLockedOut         = "auth_locked_out"
	CodeAuthFailed            = "auth_failed"
	CodePoolExhausted         = "pool_exhausted"
	CodeCapabilityUnsupported = "capability_unsupported"
	CodeConnectionFailed      = "connection_failed"
	CodeProtocolError         = "protocol_error"
	CodeDeviceBusy            = "device_busy"
	CodeDeviceError           = "device_error"
	CodeCancelled             = "cancelled"
	CodeError                 = "error"
)

// Result is the uniform outcome of one facade call. Expected device
// failures come back here, never as panics or naked errors.
type Result struct {
	// Success reports whether the operation completed.
	Success bool

	// Value is the decoded payload on success, nil for plain acks.
	Value map[string]string

	// Err is the final error on failure.
	Err error

	// Code classifies Err with a stable string, "" on success.
	Code string

	// Attempts counts issued attempts, including the successful one.
	Attempts int

	// Elapsed is the wall time of the whole call, backoff included.
	Elapsed time.Duration

	// CircuitState is the breaker state when the call returned, or
	// breaker.StateClosed when no breaker is attached.
	CircuitState breaker.State
}

// Classify maps an error to its stable result code.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		return CodeCircuitOpen
	case errors.Is(err, controller.ErrAuthLockedOut):
		return CodeAuthLockedOut
	case errors.Is(err, protocol.ErrAuthFailed):
		return CodeAuthFailed
	case errors.Is(err, pool.ErrPoolExhausted):
		return CodePoolExhausted
	case errors.Is(err, protocol.ErrCapabilityUnsupported):
		return CodeCapabilityUnsupported
	case errors.Is(err, protocol.ErrConnectionFailed):
		return CodeConnectionFailed
	case errors.Is(err, protocol.ErrMalformedResponse):
		return CodeProtocolError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	}
	var de *protocol.DeviceError
	if errors.As(err, &de) {
		if de.Code == protocol.CodeDeviceBusy {
			return CodeDeviceBusy
		}
		return CodeDeviceError
	}
	return CodeError
}

// Transient reports whether the error is worth retrying. Circuit-open,
// lockout, credential and capability failures are terminal for the
// call; transport faults, pool exhaustion and a busy device are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen),
		errors.Is(err, controller.ErrAuthLockedOut),
		errors.Is(err, protocol.ErrAuthFailed),
		errors.Is(err, protocol.ErrCapabilityUnsupported),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, protocol.ErrConnectionFailed),
		errors.Is(err, pool.ErrPoolExhausted):
		return true
	}
	var de *protocol.DeviceError
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}
