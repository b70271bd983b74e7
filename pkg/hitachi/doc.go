// Package hitachi implements the Hitachi binary framed protocol used by
// Hitachi (and rebadged) projectors over TCP.
//
// # Wire Format
//
// Every command is a fixed 13-byte frame:
//
//	┌───────────────┬──────────┬────────┬────────┬─────────┐
//	│ BE EF 03 06 00│ checksum │ action │  item  │ setting │
//	│    5 bytes    │  2 bytes │ 2B LE  │ 2B LE  │  2B LE  │
//	└───────────────┴──────────┴────────┴────────┴─────────┘
//
// Actions: SET=1, GET=2, INCREMENT=4, DECREMENT=5, EXECUTE=6. The
// setting field is zero for GET. The checksum is a reflected CRC-16
// (poly 0xA001, init 0xFFFF) over the whole frame with the checksum
// field zeroed, emitted high byte first — not a CRC-16-CCITT.
//
// Responses are single-byte-tagged:
//
//	0x06            ACK
//	0x15            NAK
//	0x1C + 2B code  device error
//	0x1D + 2B data  data reply
//	0x1F + 2B code  0x0400 = authentication error, otherwise busy
//
// # Modes
//
// Port 23 carries raw unauthenticated frames. Port 9715 requires an MD5
// challenge-response on connect: the projector sends 8 random bytes, the
// client answers with the 16 raw bytes of MD5(challenge‖password), and a
// single non-zero byte acknowledges success.
//
// # Command Pacing
//
// The hardware silently drops commands spaced closer than 40 ms. The
// codec publishes the interval via protocol.Pacer; the transport layer
// serializes sends per physical connection accordingly.
package hitachi
