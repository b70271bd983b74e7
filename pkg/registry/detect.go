package registry

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avlink-protocol/avlink-go/pkg/hitachi"
	"github.com/avlink-protocol/avlink-go/pkg/pjlink"
	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

// Probe timing. The greeting window is short: a projector that is
// going to greet does so immediately after accept.
const (
	detectGreetingWait = 500 * time.Millisecond
	detectProbeWait    = 2 * time.Second
)

// detectPriority orders protocol selection when several ports answer.
// Selection is by this fixed order, never by completion order.
var detectPriority = []protocol.ID{protocol.PJLink, protocol.Hitachi}

// Detect probes the candidate ports concurrently and returns the
// highest-priority protocol whose handshake parsed. A nil or empty
// port list probes the well-known ports of every built-in protocol.
func (r *Registry) Detect(ctx context.Context, host string, ports []int) (protocol.ID, error) {
	if len(ports) == 0 {
		ports = []int{pjlink.DefaultPort, hitachi.DefaultAuthPort, hitachi.DefaultRawPort}
	}

	results := make([]protocol.ID, len(ports))
	g, gctx := errgroup.WithContext(ctx)
	for i, port := range ports {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		g.Go(func() error {
			results[i] = probe(gctx, addr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, want := range detectPriority {
		for _, got := range results {
			if got == want {
				return want, nil
			}
		}
	}
	return "", ErrNoProtocolDetected
}

// probe classifies whatever speaks on addr, or returns "" when nothing
// recognizable does. Errors are swallowed: an unreachable port simply
// does not vote.
func probe(ctx context.Context, addr string) protocol.ID {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ""
	}
	defer conn.Close()

	conn.SetReadDeadline(probeDeadline(ctx, detectGreetingWait))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err == nil && n > 0 {
		return classifyGreeting(buf[:n])
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		return ""
	}

	// Silent peer: the Hitachi raw port sends no greeting. Issue a
	// harmless status read and look for a tagged reply.
	conn.SetDeadline(probeDeadline(ctx, detectProbeWait))
	frame := hitachi.BuildPacket(hitachi.ActionGet, hitachi.ItemErrorStatus, 0)
	if _, err := conn.Write(frame); err != nil {
		return ""
	}
	tag := make([]byte, 1)
	if _, err := conn.Read(tag); err != nil {
		return ""
	}
	if hitachi.KnownReplyTag(tag[0]) {
		return protocol.Hitachi
	}
	return ""
}

// classifyGreeting maps unsolicited post-connect bytes to a protocol.
func classifyGreeting(data []byte) protocol.ID {
	if strings.HasPrefix(strings.ToUpper(string(data)), "PJLINK") {
		return protocol.PJLink
	}
	// The Hitachi authenticated port sends exactly its 8-byte random
	// challenge and nothing else.
	if len(data) == hitachi.ChallengeLength {
		return protocol.Hitachi
	}
	return ""
}

func probeDeadline(ctx context.Context, wait time.Duration) time.Time {
	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}
