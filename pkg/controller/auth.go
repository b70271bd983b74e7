package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAuthLockedOut marks a connect refused by the local lockout. It
// never reaches the wire and is never retried by the facade.
var ErrAuthLockedOut = errors.New("authentication locked out")

// Default lockout tuning.
const (
	DefaultMaxAuthFailures = 3
	DefaultLockoutDuration = 5 * time.Minute
)

// AuthState is the session's authentication state.
type AuthState uint8

const (
	// AuthPending means no auth outcome has been observed yet.
	AuthPending AuthState = iota

	// AuthAuthenticated means the device accepted the credential.
	AuthAuthenticated

	// AuthFailed means the device rejected the credential.
	AuthFailed

	// AuthLockedOut means the local cooldown is blocking attempts.
	AuthLockedOut
)

// String returns the auth state name.
func (s AuthState) String() string {
	switch s {
	case AuthPending:
		return "PENDING"
	case AuthAuthenticated:
		return "AUTHENTICATED"
	case AuthFailed:
		return "FAILED"
	case AuthLockedOut:
		return "LOCKED_OUT"
	default:
		return "UNKNOWN"
	}
}

// LockoutError is returned while the local lockout is active.
type LockoutError struct {
	// Until is when attempts become permissible again.
	Until time.Time
}

// Error implements the error interface.
func (e *LockoutError) Error() string {
	return fmt.Sprintf("authentication locked out until %s", e.Until.Format(time.RFC3339))
}

// Is allows errors.Is(err, ErrAuthLockedOut).
func (e *LockoutError) Is(target error) bool {
	return target == ErrAuthLockedOut
}

// authTracker owns the session's auth state. The failure count
// persists across reconnects and resets only on success or a manual
// clear.
type authTracker struct {
	mu          sync.Mutex
	state       AuthState
	failures    int
	lockedUntil time.Time

	maxFailures int
	lockout     time.Duration
	now         func() time.Time
}

func newAuthTracker(maxFailures int, lockout time.Duration) *authTracker {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxAuthFailures
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}
	return &authTracker{
		state:       AuthPending,
		maxFailures: maxFailures,
		lockout:     lockout,
		now:         time.Now,
	}
}

// checkLockout returns a *LockoutError while the cooldown is active.
// An elapsed lockout falls back to AuthFailed so a new attempt may run.
func (a *authTracker) checkLockout() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != AuthLockedOut {
		return nil
	}
	if a.now().Before(a.lockedUntil) {
		return &LockoutError{Until: a.lockedUntil}
	}
	a.state = AuthFailed
	return nil
}

// recordFailure counts a rejection and reports whether it engaged the
// lockout, along with the current failure count.
func (a *authTracker) recordFailure() (lockedOut bool, failures int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.failures++
	if a.failures >= a.maxFailures {
		a.state = AuthLockedOut
		a.lockedUntil = a.now().Add(a.lockout)
		return true, a.failures
	}
	a.state = AuthFailed
	return false, a.failures
}

// recordSuccess resets the failure count.
func (a *authTracker) recordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = AuthAuthenticated
	a.failures = 0
	a.lockedUntil = time.Time{}
}

// clear manually resets the tracker (operator override).
func (a *authTracker) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = AuthPending
	a.failures = 0
	a.lockedUntil = time.Time{}
}

func (a *authTracker) snapshot() (AuthState, int, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.failures, a.lockedUntil
}
