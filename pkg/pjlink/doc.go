// Package pjlink implements the PJLink text protocol (JBMIA standard)
// used by most networked projectors.
//
// # Wire Format
//
// Commands are single CR-terminated lines:
//
//	%<class><op> <param>\r        e.g. %1POWR 1\r
//
// Responses echo the command with the parameter replaced:
//
//	%<class><op>=<status-or-data>\r   e.g. %1POWR=OK\r
//
// Status is a closed set: OK, ERR1 (undefined command), ERR2 (bad
// parameter), ERR3 (device busy), ERR4 (device failure), ERRA (auth
// required or failed).
//
// # Authentication
//
// Immediately after TCP connect the projector announces either
//
//	PJLINK 0\r              no authentication
//	PJLINK 1 <8 chars>\r    challenge-response required
//
// With authentication active, every command line on the connection is
// prefixed with the 32 lowercase hex characters of MD5(random‖password).
// The random key is fixed for the connection's lifetime, not per command.
//
// # Classes
//
// PJLink Class 1 covers power, input, mute and the status queries.
// Class 2 adds freeze, filter hours, serial number and extended input
// naming. The codec issues a CLSS query once after connect; Class 2
// operations requested against a Class 1 device fail with a capability
// error before any bytes are written.
package pjlink
