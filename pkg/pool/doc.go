// Package pool provides a bounded per-endpoint cache of reusable TCP
// connections.
//
// Connections are keyed by endpoint (host:port). Acquire returns a
// validated idle connection when one exists, dials a new one while the
// endpoint is under its cap, and otherwise waits until a connection is
// released or the context expires:
//
//	p := pool.New(pool.Config{MaxPerEndpoint: 4}, nil)
//	conn, err := p.Acquire(ctx, "10.0.0.5:4352")
//	if err != nil { ... }
//	defer p.Release(conn, false)
//
// The per-endpoint invariant active+idle <= MaxPerEndpoint holds at all
// times, counting dials in flight, and a connection is never handed to
// two callers at once. Borrow-time validation evicts connections that
// are closed, too old, overused, idle too long, or fail a non-blocking
// liveness probe. An optional background sweeper prunes idle
// connections between borrows.
package pool
