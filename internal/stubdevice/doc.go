// Package stubdevice provides in-process projector stubs for tests.
//
// PJLinkServer speaks the text grammar over a real TCP listener,
// optionally demanding challenge-response authentication, and records
// every line it receives. HitachiServer speaks 13-byte binary frames in
// raw or authenticated mode, verifies checksums, and records every
// frame. Both hold just enough device state (power, input, mute) to
// answer queries consistently.
package stubdevice
