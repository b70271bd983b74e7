package interactive

import (
	"testing"
	"time"

	"github.com/avlink-protocol/avlink-go/pkg/config"
	"github.com/avlink-protocol/avlink-go/pkg/resilient"
)

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
	}{
		{"projector.local", "projector.local", 0},
		{"10.0.0.20", "10.0.0.20", 0},
		{"10.0.0.20:4352", "10.0.0.20", 4352},
		{"projector.local:9715", "projector.local", 9715},
		{"[fe80::1]:4352", "fe80::1", 4352},
	}
	for _, tt := range tests {
		host, port, err := splitHostPort(tt.in)
		if err != nil {
			t.Errorf("splitHostPort(%q): unexpected error %v", tt.in, err)
			continue
		}
		if host != tt.host || port != tt.port {
			t.Errorf("splitHostPort(%q) = %q, %d; want %q, %d", tt.in, host, port, tt.host, tt.port)
		}
	}
}

func TestSplitHostPortBadPort(t *testing.T) {
	if _, _, err := splitHostPort("host:abc"); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestRetryPolicyFromSettings(t *testing.T) {
	p, err := retryPolicy(config.RetrySettings{
		MaxRetries:   5,
		Strategy:     "linear",
		BaseDelay:    config.Duration(100 * time.Millisecond),
		MaxDelay:     config.Duration(2 * time.Second),
		JitterFactor: 0.1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Strategy != resilient.StrategyLinear {
		t.Errorf("Strategy = %v, want %v", p.Strategy, resilient.StrategyLinear)
	}
	if p.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", p.MaxRetries)
	}
	if p.BaseDelay != 100*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 100ms", p.BaseDelay)
	}
}

func TestRetryPolicyDefaultsToJitter(t *testing.T) {
	p, err := retryPolicy(config.RetrySettings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Strategy != resilient.StrategyExponentialJitter {
		t.Errorf("Strategy = %v, want %v", p.Strategy, resilient.StrategyExponentialJitter)
	}
}

func TestRetryPolicyRejectsUnknownStrategy(t *testing.T) {
	if _, err := retryPolicy(config.RetrySettings{Strategy: "quadratic"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
