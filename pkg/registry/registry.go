package registry

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avlink-protocol/avlink-go/pkg/config"
	"github.com/avlink-protocol/avlink-go/pkg/controller"
	"github.com/avlink-protocol/avlink-go/pkg/hitachi"
	"github.com/avlink-protocol/avlink-go/pkg/metrics"
	"github.com/avlink-protocol/avlink-go/pkg/pjlink"
	"github.com/avlink-protocol/avlink-go/pkg/pool"
	"github.com/avlink-protocol/avlink-go/pkg/protocol"
	"github.com/avlink-protocol/avlink-go/pkg/telemetry"
)

// Christie identifies Christie projector requests. There is no native
// codec for it: the binary transport stalls on common firmware, so
// Create maps it to PJLink unless ForceNative is set.
const Christie protocol.ID = "christie"

// ErrNoProtocolDetected is returned by Detect when no candidate port
// produced a recognizable handshake.
var ErrNoProtocolDetected = errors.New("no protocol detected")

// NotImplementedError reports a protocol the registry cannot build,
// naming a fallback the caller can use instead.
type NotImplementedError struct {
	// Protocol is the identifier as requested.
	Protocol string

	// Fallback is a protocol known to work for the same hardware
	// class.
	Fallback protocol.ID
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("protocol %q not implemented (fallback: %s)", e.Protocol, e.Fallback)
}

// Normalize maps a decorated, case-insensitive protocol string to its
// identifier. "PJLink Class 1", "pjlink", "HITACHI (TCP)" all resolve.
func Normalize(s string) (protocol.ID, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(t, "pjlink"):
		return protocol.PJLink, true
	case strings.Contains(t, "hitachi"):
		return protocol.Hitachi, true
	case strings.Contains(t, "christie"):
		return Christie, true
	default:
		return "", false
	}
}

// Options carries the parameters Create needs to build a controller.
type Options struct {
	// Protocol is the identifier, in any form Normalize accepts.
	Protocol string

	// Host is the device's hostname or IP.
	Host string

	// Port overrides the protocol's default port when non-zero.
	Port int

	// Secret is the device password. For Hitachi it also selects the
	// authenticated port and codec mode.
	Secret string

	// Timeout bounds connect and per-exchange I/O. Zero uses the
	// controller defaults.
	Timeout time.Duration

	// ForceNative disables the Christie-to-PJLink compatibility
	// override.
	ForceNative bool

	// Options carries per-protocol extras. Unknown keys are ignored.
	Options map[string]any

	// Pool, Logger and Metrics are handed through to the controller.
	Pool    *pool.Pool
	Logger  telemetry.Logger
	Metrics *metrics.Recorder
}

// Builder constructs the codec for one protocol and reports its
// default port given the options.
type Builder func(opts Options) (protocol.Codec, int)

// Registry maps protocol identifiers to codec builders. It is an
// explicitly owned object, not process-wide state; callers inject it
// where controllers are made.
type Registry struct {
	mu       sync.RWMutex
	builders map[protocol.ID]Builder
}

// New creates a Registry with the built-in protocols registered.
func New() *Registry {
	r := &Registry{builders: make(map[protocol.ID]Builder)}
	r.Register(protocol.PJLink, func(Options) (protocol.Codec, int) {
		return pjlink.NewCodec(), pjlink.DefaultPort
	})
	r.Register(protocol.Hitachi, func(opts Options) (protocol.Codec, int) {
		if opts.Secret != "" {
			return hitachi.NewAuthCodec(), hitachi.DefaultAuthPort
		}
		return hitachi.NewCodec(), hitachi.DefaultRawPort
	})
	return r
}

// Register adds or replaces a protocol builder.
func (r *Registry) Register(id protocol.ID, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[id] = b
}

// Protocols returns the registered identifiers.
func (r *Registry) Protocols() []protocol.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ID, 0, len(r.builders))
	for id := range r.builders {
		out = append(out, id)
	}
	return out
}

// Create builds a controller for the requested protocol, defaulting
// the port per protocol and applying the Christie compatibility
// override.
func (r *Registry) Create(opts Options) (*controller.Controller, error) {
	id, ok := Normalize(opts.Protocol)
	if !ok {
		return nil, &NotImplementedError{Protocol: opts.Protocol, Fallback: protocol.PJLink}
	}
	if id == Christie {
		if opts.ForceNative {
			return nil, &NotImplementedError{Protocol: string(Christie), Fallback: protocol.PJLink}
		}
		id = protocol.PJLink
	}

	r.mu.RLock()
	b := r.builders[id]
	r.mu.RUnlock()
	if b == nil {
		return nil, &NotImplementedError{Protocol: string(id), Fallback: protocol.PJLink}
	}

	codec, defaultPort := b(opts)
	port := opts.Port
	if port == 0 {
		port = defaultPort
	}

	cfg := controller.Config{
		Endpoint:       net.JoinHostPort(opts.Host, strconv.Itoa(port)),
		Secret:         opts.Secret,
		ConnectTimeout: opts.Timeout,
		IOTimeout:      opts.Timeout,
	}
	var copts []controller.Option
	if opts.Pool != nil {
		copts = append(copts, controller.WithPool(opts.Pool))
	}
	if opts.Logger != nil {
		copts = append(copts, controller.WithLogger(opts.Logger))
	}
	if opts.Metrics != nil {
		copts = append(copts, controller.WithMetrics(opts.Metrics))
	}
	return controller.New(codec, cfg, copts...), nil
}

// CreateFromConfig builds a controller from a loosely-typed settings
// map, tolerating the key aliases and sloppy types config.FromMap
// accepts.
func (r *Registry) CreateFromConfig(m map[string]any) (*controller.Controller, error) {
	s := config.FromMap(m)
	return r.Create(Options{
		Protocol:    s.Protocol,
		Host:        s.Host,
		Port:        s.Port,
		Secret:      s.Secret,
		Timeout:     s.Timeout.Std(),
		ForceNative: boolOption(s.Options, "force_native"),
		Options:     s.Options,
	})
}

func boolOption(m map[string]any, key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}
