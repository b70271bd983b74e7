package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultTimeout = 5 * time.Second

	DefaultMaxRetries = 3
	DefaultBaseDelay  = 250 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second

	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultBreakerTimeout   = 30 * time.Second

	DefaultMaxPerEndpoint = 4
	DefaultMaxLifetime    = 30 * time.Minute
	DefaultIdleTimeout    = 5 * time.Minute
)

// Duration wraps time.Duration so YAML can carry either a Go duration
// string ("5s", "200ms") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			*d = Duration(time.Duration(secs * float64(time.Second)))
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value on line %d", node.Line)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RetrySettings tunes the facade's retry policy.
type RetrySettings struct {
	MaxRetries   int      `yaml:"max_retries"`
	Strategy     string   `yaml:"strategy"`
	BaseDelay    Duration `yaml:"base_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	JitterFactor float64  `yaml:"jitter_factor"`
}

// BreakerSettings tunes the per-endpoint circuit breaker.
type BreakerSettings struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	SuccessThreshold int      `yaml:"success_threshold"`
	Timeout          Duration `yaml:"timeout"`
	HalfOpenMaxCalls int      `yaml:"half_open_max_calls"`
}

// PoolSettings tunes the connection pool.
type PoolSettings struct {
	MaxPerEndpoint int      `yaml:"max_per_endpoint"`
	MaxLifetime    Duration `yaml:"max_lifetime"`
	MaxUses        int      `yaml:"max_uses"`
	IdleTimeout    Duration `yaml:"idle_timeout"`
	AcquireTimeout Duration `yaml:"acquire_timeout"`
}

// Settings is the device configuration surface consumed by the
// registry and the facade.
type Settings struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	Protocol string         `yaml:"protocol"`
	Secret   string         `yaml:"secret"`
	Timeout  Duration       `yaml:"timeout"`
	Options  map[string]any `yaml:"options"`

	Retry   RetrySettings   `yaml:"retry"`
	Breaker BreakerSettings `yaml:"breaker"`
	Pool    PoolSettings    `yaml:"pool"`
}

// ApplyDefaults fills zero-valued tuning fields. Host, Port, Protocol
// and Secret are left alone: the registry defaults the port per
// protocol.
func (s *Settings) ApplyDefaults() {
	if s.Timeout <= 0 {
		s.Timeout = Duration(DefaultTimeout)
	}
	if s.Retry.MaxRetries == 0 {
		s.Retry.MaxRetries = DefaultMaxRetries
	}
	if s.Retry.BaseDelay <= 0 {
		s.Retry.BaseDelay = Duration(DefaultBaseDelay)
	}
	if s.Retry.MaxDelay <= 0 {
		s.Retry.MaxDelay = Duration(DefaultMaxDelay)
	}
	if s.Breaker.FailureThreshold == 0 {
		s.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if s.Breaker.SuccessThreshold == 0 {
		s.Breaker.SuccessThreshold = DefaultSuccessThreshold
	}
	if s.Breaker.Timeout <= 0 {
		s.Breaker.Timeout = Duration(DefaultBreakerTimeout)
	}
	if s.Pool.MaxPerEndpoint == 0 {
		s.Pool.MaxPerEndpoint = DefaultMaxPerEndpoint
	}
	if s.Pool.MaxLifetime <= 0 {
		s.Pool.MaxLifetime = Duration(DefaultMaxLifetime)
	}
	if s.Pool.IdleTimeout <= 0 {
		s.Pool.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if s.Options == nil {
		s.Options = map[string]any{}
	}
}

// Load reads a YAML settings file and applies defaults.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}
	s.ApplyDefaults()
	return s, nil
}

// FromMap extracts Settings from a loosely-typed map, the shape
// management layers hand over. Aliased keys are accepted
// (host/address/ip, secret/password, protocol/type), ports may be
// numeric or strings, and a malformed options payload degrades to an
// empty map instead of failing the whole extraction.
func FromMap(m map[string]any) Settings {
	var s Settings
	s.Host = stringKey(m, "host", "address", "ip")
	s.Secret = stringKey(m, "secret", "password")
	s.Protocol = stringKey(m, "protocol", "type")
	s.Port = intKey(m, "port")
	if t := durationKey(m, "timeout"); t > 0 {
		s.Timeout = Duration(t)
	}
	if opts, ok := m["options"].(map[string]any); ok {
		s.Options = opts
	}
	s.ApplyDefaults()
	return s
}

// stringKey returns the first key present with a usable string value.
func stringKey(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case fmt.Stringer:
			return t.String()
		}
	}
	return ""
}

// intKey returns the key's value as an int, accepting numeric types
// and numeric strings.
func intKey(m map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case int:
			return t
		case int64:
			return int(t)
		case float64:
			return int(t)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n
			}
		}
	}
	return 0
}

// durationKey returns the key's value as a duration, accepting Go
// duration strings, bare seconds, and time.Duration values.
func durationKey(m map[string]any, keys ...string) time.Duration {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case time.Duration:
			return t
		case int:
			return time.Duration(t) * time.Second
		case int64:
			return time.Duration(t) * time.Second
		case float64:
			return time.Duration(t * float64(time.Second))
		case string:
			if d, err := time.ParseDuration(t); err == nil {
				return d
			}
			if secs, err := strconv.ParseFloat(t, 64); err == nil {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}
