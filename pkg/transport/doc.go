// Package transport performs framed exchanges over one TCP connection.
//
// The Framer owns a socket and a codec. The codec decides the framing
// (CR-terminated lines for PJLink, tag-prefixed frames for Hitachi);
// the Framer applies I/O deadlines, classifies socket faults as
// connection errors, and mirrors every frame into telemetry:
//
//	f := transport.NewFramer(conn, codec)
//	f.SetLogger(logger, connID)
//	if err := f.Send(ctx, wire); err != nil { ... }
//	raw, err := f.ReadResponse(ctx)
//
// A Framer serves one caller at a time; concurrent access is
// coordinated by the controller that owns the connection.
package transport
