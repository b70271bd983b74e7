package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the mDNS service type PJLink-capable projectors
	// advertise.
	ServiceType = "_pjlink._tcp"

	// Domain is the mDNS browse domain.
	Domain = "local"

	// DefaultTimeout bounds a Find call when the caller passes zero.
	DefaultTimeout = 3 * time.Second
)

// Projector is one advertised device on the local network.
type Projector struct {
	// Name is the mDNS instance name.
	Name string

	// Host is the advertised hostname.
	Host string

	// Port is the advertised control port.
	Port int

	// Addrs are the resolved IP addresses, IPv4 first.
	Addrs []string
}

// Endpoint returns the preferred host:port to dial: the first resolved
// address when one exists, otherwise the advertised hostname.
func (p Projector) Endpoint() string {
	host := p.Host
	if len(p.Addrs) > 0 {
		host = p.Addrs[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(p.Port))
}

// Browser browses for projectors. The zero value browses on all
// interfaces.
type Browser struct {
	// Interface restricts browsing to one named network interface.
	Interface string
}

// Browse streams projectors as they are found until ctx is cancelled.
// Records for the same instance arriving from multiple interfaces are
// emitted once. The error channel carries at most one value: a browse
// failure, so an unusable mDNS stack is distinguishable from an empty
// network. It is closed when browsing ends.
func (b *Browser) Browse(ctx context.Context) (<-chan Projector, <-chan error) {
	out := make(chan Projector)
	errc := make(chan error, 1)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	// A browse failure cancels the fan-in so out closes promptly
	// instead of waiting for the caller's deadline.
	bctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)

		seen := make(map[string]struct{})
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				p := entryToProjector(entry)
				if _, dup := seen[p.Name]; dup {
					continue
				}
				seen[p.Name] = struct{}{}
				select {
				case out <- p:
				case <-bctx.Done():
					return
				}

			case _, ok := <-removed:
				// Departures are irrelevant for a one-shot scan.
				if !ok {
					continue
				}

			case <-bctx.Done():
				return
			}
		}
	}()

	go func() {
		defer cancel()
		defer close(errc)
		if err := zeroconf.Browse(bctx, ServiceType, Domain, entries, removed, b.options()...); err != nil && bctx.Err() == nil {
			errc <- err
		}
	}()

	return out, errc
}

// Find browses for up to timeout and returns everything found, sorted
// by instance name.
func (b *Browser) Find(ctx context.Context, timeout time.Duration) ([]Projector, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, errc := b.Browse(ctx)

	var found []Projector
	for p := range ch {
		found = append(found, p)
	}
	if err := <-errc; err != nil {
		return found, fmt.Errorf("mdns browse: %w", err)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// FindProjectors is the package-level convenience for a one-shot scan
// on all interfaces.
func FindProjectors(ctx context.Context, timeout time.Duration) ([]Projector, error) {
	var b Browser
	return b.Find(ctx, timeout)
}

func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.Interface != "" {
		if iface, err := net.InterfaceByName(b.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryToProjector converts a zeroconf entry, collecting IPv4 before
// IPv6 addresses.
func entryToProjector(entry *zeroconf.ServiceEntry) Projector {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return Projector{
		Name:  entry.Instance,
		Host:  entry.HostName,
		Port:  entry.Port,
		Addrs: addrs,
	}
}
