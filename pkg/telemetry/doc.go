// Package telemetry captures structured events from every layer of the
// AVLink stack: raw frames at the transport layer, connection and
// session state changes, authentication outcomes, circuit breaker
// transitions and pool exhaustion.
//
// Events flow through the Logger interface. Applications install a
// FileLogger (compact CBOR, readable back with Reader), a SlogAdapter
// for console output, a MultiLogger for both, or NoopLogger to disable
// capture entirely.
//
// Secrets never appear in events: authentication events carry outcomes
// only, never the password or the computed token.
package telemetry
