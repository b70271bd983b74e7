package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for cross-package classification with errors.Is.
var (
	// ErrCapabilityUnsupported marks operations unavailable at the
	// negotiated class or vendor. Returned before any bytes are sent.
	ErrCapabilityUnsupported = errors.New("operation not supported by protocol")

	// ErrAuthFailed marks a credential rejected by the device.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrMalformedResponse marks wire data that does not parse.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrConnectionFailed marks a transport fault (dial, read or write
	// timeout, refused, reset). Transient from the caller's view.
	ErrConnectionFailed = errors.New("connection failed")
)

// Stable machine-checkable device error codes shared by all codecs.
const (
	CodeUndefinedCommand = "undefined_command"
	CodeBadParameter     = "bad_parameter"
	CodeDeviceBusy       = "device_busy"
	CodeDeviceFailure    = "device_failure"
	CodeAuthFailed       = "auth_failed"
)

// DeviceError is a failure reported by the device itself (busy, failure,
// undefined command, bad parameter). It is an expected condition, not a
// transport fault.
type DeviceError struct {
	// Code is one of the Code* constants.
	Code string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error (%s): %s", e.Code, e.Message)
}

// Retryable reports whether the device condition is transient.
// Only a busy device is worth retrying; the other codes reproduce.
func (e *DeviceError) Retryable() bool {
	return e.Code == CodeDeviceBusy
}

// ProtocolError is a malformed or unexpected wire response.
type ProtocolError struct {
	// Reason describes what failed to parse.
	Reason string

	// Raw preserves the offending bytes (may be truncated).
	Raw []byte
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// Unwrap allows errors.Is(err, ErrMalformedResponse).
func (e *ProtocolError) Unwrap() error {
	return ErrMalformedResponse
}

// ConnectionError is a transport-level fault: dial failure, timeout,
// reset, or unexpected close. Wraps the underlying cause.
type ConnectionError struct {
	// Endpoint is the remote host:port.
	Endpoint string

	// Op is the operation that failed ("dial", "read", "write").
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s failed for %s: %v", e.Op, e.Endpoint, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrConnectionFailed).
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// AuthError is a credential rejected by the device. Distinct from the
// controller-local lockout, which never reaches the wire.
type AuthError struct {
	// Reason describes the rejection ("invalid digest", "ERRA", …).
	Reason string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// Unwrap allows errors.Is(err, ErrAuthFailed).
func (e *AuthError) Unwrap() error {
	return ErrAuthFailed
}

// CapabilityError reports an operation the protocol (or its negotiated
// class) cannot perform. Returned by Encode before any wire traffic.
type CapabilityError struct {
	// Op is the unsupported operation.
	Op CommandType

	// Protocol is the codec's identifier.
	Protocol string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s not supported by %s", e.Op, e.Protocol)
}

// Unwrap allows errors.Is(err, ErrCapabilityUnsupported).
func (e *CapabilityError) Unwrap() error {
	return ErrCapabilityUnsupported
}
