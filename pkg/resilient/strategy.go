package resilient

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Retry policy defaults.
const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 250 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
	DefaultJitterFactor = 0.25
)

// Strategy selects how retry delays grow between attempts.
type Strategy uint8

const (
	// StrategyNone disables delays: retries fire back to back.
	StrategyNone Strategy = iota

	// StrategyFixed waits BaseDelay before every retry.
	StrategyFixed

	// StrategyLinear waits BaseDelay*(attempt+1).
	StrategyLinear

	// StrategyExponential waits BaseDelay*2^attempt.
	StrategyExponential

	// StrategyExponentialJitter is StrategyExponential plus a uniform
	// random addition of up to JitterFactor times the delay.
	StrategyExponentialJitter
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyFixed:
		return "fixed"
	case StrategyLinear:
		return "linear"
	case StrategyExponential:
		return "exponential"
	case StrategyExponentialJitter:
		return "exponential_jitter"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return StrategyNone, nil
	case "fixed":
		return StrategyFixed, nil
	case "linear":
		return StrategyLinear, nil
	case "exponential":
		return StrategyExponential, nil
	case "exponential_jitter", "jitter":
		return StrategyExponentialJitter, nil
	default:
		return StrategyNone, fmt.Errorf("unknown retry strategy %q", s)
	}
}

// RetryPolicy tunes how often and how fast a failed operation is
// reissued.
type RetryPolicy struct {
	// Strategy selects delay growth.
	Strategy Strategy

	// MaxRetries is the number of reissues after the first attempt.
	MaxRetries int

	// BaseDelay seeds the delay computation.
	BaseDelay time.Duration

	// MaxDelay caps every computed delay, jitter included.
	MaxDelay time.Duration

	// JitterFactor bounds the random addition for
	// StrategyExponentialJitter, as a fraction of the delay.
	JitterFactor float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.JitterFactor <= 0 {
		p.JitterFactor = DefaultJitterFactor
	}
	return p
}

// DefaultRetryPolicy is a sensible starting point for flaky venue
// networks.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Strategy:     StrategyExponentialJitter,
		MaxRetries:   DefaultMaxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}
}

// delay computes the wait before reissuing after the given zero-based
// attempt.
func (p RetryPolicy) delay(attempt int) time.Duration {
	var d time.Duration
	switch p.Strategy {
	case StrategyNone:
		return 0
	case StrategyFixed:
		d = p.BaseDelay
	case StrategyLinear:
		d = time.Duration(attempt+1) * p.BaseDelay
	case StrategyExponential, StrategyExponentialJitter:
		if attempt > 30 {
			attempt = 30
		}
		d = p.BaseDelay << uint(attempt)
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Strategy == StrategyExponentialJitter && d > 0 {
		d += time.Duration(rand.Float64() * p.JitterFactor * float64(d))
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}
