package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/avlink-protocol/avlink-go/pkg/protocol"
	"github.com/avlink-protocol/avlink-go/pkg/telemetry"
)

// DefaultIOTimeout bounds a single read or write when the caller's
// context carries no deadline.
const DefaultIOTimeout = 5 * time.Second

// Framer performs codec-framed exchanges over one connection.
type Framer struct {
	conn      net.Conn
	codec     protocol.Codec
	endpoint  string
	ioTimeout time.Duration

	// pace enforces the minimum spacing between sends for hardware
	// that silently drops faster commands. Scoped to this connection,
	// not the calling goroutine.
	pace *rate.Limiter

	// Telemetry (optional)
	logger telemetry.Logger
	connID string
}

// NewFramer creates a Framer over the connection. Codecs implementing
// protocol.Pacer get their minimum command spacing enforced on Send.
func NewFramer(conn net.Conn, codec protocol.Codec) *Framer {
	f := &Framer{
		conn:      conn,
		codec:     codec,
		endpoint:  conn.RemoteAddr().String(),
		ioTimeout: DefaultIOTimeout,
	}
	if p, ok := codec.(protocol.Pacer); ok {
		if interval := p.MinCommandInterval(); interval > 0 {
			// One token per interval: an already-elapsed spacing
			// passes immediately, otherwise Send sleeps the rest.
			f.pace = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
	return f
}

// SetLogger configures frame telemetry. Pass nil to disable.
func (f *Framer) SetLogger(logger telemetry.Logger, connID string) {
	f.logger = logger
	f.connID = connID
}

// SetIOTimeout overrides the per-operation I/O timeout.
func (f *Framer) SetIOTimeout(d time.Duration) {
	if d > 0 {
		f.ioTimeout = d
	}
}

// deadline resolves the effective I/O deadline for one operation.
func (f *Framer) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(f.ioTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

// Send writes one encoded command to the wire, first waiting out the
// codec's minimum command spacing if it declares one.
func (f *Framer) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.pace != nil {
		if err := f.pace.Wait(ctx); err != nil {
			return err
		}
	}
	if err := f.conn.SetWriteDeadline(f.deadline(ctx)); err != nil {
		return &protocol.ConnectionError{Endpoint: f.endpoint, Op: "write", Err: err}
	}
	if _, err := f.conn.Write(data); err != nil {
		return &protocol.ConnectionError{Endpoint: f.endpoint, Op: "write", Err: err}
	}
	f.emitFrame(data, telemetry.DirectionOut)
	return nil
}

// ReadGreeting reads the server greeting using the codec's framing.
func (f *Framer) ReadGreeting(ctx context.Context) ([]byte, error) {
	data, err := f.read(ctx, f.codec.ReadGreeting)
	if err != nil {
		return nil, err
	}
	f.emitFrame(data, telemetry.DirectionIn)
	return data, nil
}

// ReadResponse reads exactly one response using the codec's framing.
func (f *Framer) ReadResponse(ctx context.Context) ([]byte, error) {
	data, err := f.read(ctx, f.codec.ReadResponse)
	if err != nil {
		return nil, err
	}
	f.emitFrame(data, telemetry.DirectionIn)
	return data, nil
}

// ReadN reads exactly n bytes (auth acknowledgements).
func (f *Framer) ReadN(ctx context.Context, n int) ([]byte, error) {
	data, err := f.read(ctx, func(r io.Reader) ([]byte, error) {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	f.emitFrame(data, telemetry.DirectionIn)
	return data, nil
}

func (f *Framer) read(ctx context.Context, fn func(io.Reader) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.conn.SetReadDeadline(f.deadline(ctx)); err != nil {
		return nil, &protocol.ConnectionError{Endpoint: f.endpoint, Op: "read", Err: err}
	}
	data, err := fn(f.conn)
	if err != nil {
		// Malformed data is a protocol fault, not a transport one.
		var perr *protocol.ProtocolError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &protocol.ConnectionError{Endpoint: f.endpoint, Op: "read", Err: err}
	}
	return data, nil
}

func (f *Framer) emitFrame(data []byte, dir telemetry.Direction) {
	if f.logger == nil {
		return
	}
	// Credential material never reaches the telemetry stream.
	if r, ok := f.codec.(protocol.FrameRedactor); ok {
		data = r.RedactFrame(data)
	}
	f.logger.Log(telemetry.Event{
		Timestamp:    time.Now(),
		ConnectionID: f.connID,
		Endpoint:     f.endpoint,
		Protocol:     string(f.codec.Protocol()),
		Direction:    dir,
		Layer:        telemetry.LayerTransport,
		Category:     telemetry.CategoryFrame,
		Frame:        telemetry.NewFrameEvent(data),
	})
}
