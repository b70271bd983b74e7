// Package protocol defines the vendor-neutral contract shared by all
// AVLink codecs.
//
// A Codec translates logical commands into vendor wire bytes and vendor
// wire bytes back into logical responses for exactly one protocol. The
// surrounding stack (controller, pool, facade) only ever speaks in terms
// of Command, Response and Capabilities; everything vendor-specific stays
// behind the Codec interface.
//
// # Command Flow
//
//	┌────────────────────────────────┐
//	│   Controller operations        │
//	├────────────────────────────────┤
//	│   Command / Response model     │
//	├────────────────────────────────┤
//	│   Codec (pjlink, hitachi, …)   │
//	├────────────────────────────────┤
//	│   TCP                          │
//	└────────────────────────────────┘
//
// # Capabilities
//
// Not every protocol supports every operation. Each codec publishes a
// static Capabilities descriptor so callers can discover supported
// operations up front instead of probing with errors. A codec asked to
// encode an unsupported operation returns a CapabilityError, never a
// wire-level error.
package protocol
