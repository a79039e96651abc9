package session

import (
	"sync"
	"time"
)

// ReconnectStatus is what observers are told about a session that may not
// be connected yet.
type ReconnectStatus int

const (
	// Waiting is the grace period right after start.
	Waiting ReconnectStatus = iota
	// Pending means an attempt was made recently and is cooling down.
	Pending
	// Error means the session is not connected and will not retry on its own.
	Error
	// Connected means the transport is up.
	Connected
)

func (s ReconnectStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Error:
		return "error"
	case Connected:
		return "connected"
	default:
		return "waiting"
	}
}

// MarshalText renders the status in JSON snapshots.
func (s ReconnectStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ReconnectPolicy tunes automatic reconnection.
type ReconnectPolicy struct {
	Auto     bool          // retry without user action
	Interval time.Duration // how often the policy is evaluated
	Pending  time.Duration // minimum time between two attempts
	Grace    time.Duration // how long after start a missing connection is not an error
}

// DefaultReconnectPolicy returns the 1s / 4s / 2s policy. Automatic
// retry starts off; the operator retries by hand or turns it on.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Interval: time.Second,
		Pending:  4 * time.Second,
		Grace:    2 * time.Second,
	}
}

// reconnector decides when to attempt a connection. It holds no timers;
// the session calls step on every tick.
type reconnector struct {
	mu          sync.Mutex
	policy      ReconnectPolicy
	started     time.Time
	lastAttempt time.Time
	status      ReconnectStatus
}

func newReconnector(policy ReconnectPolicy, now time.Time) *reconnector {
	return &reconnector{policy: policy, started: now, status: Waiting}
}

// attempted records a connection attempt made outside step, e.g. a manual
// retry.
func (r *reconnector) attempted(now time.Time) {
	r.mu.Lock()
	r.lastAttempt = now
	r.mu.Unlock()
}

// restart begins a new grace period, e.g. after the host address changed.
func (r *reconnector) restart(now time.Time) {
	r.mu.Lock()
	r.started = now
	r.lastAttempt = time.Time{}
	r.status = Waiting
	r.mu.Unlock()
}

func (r *reconnector) setAuto(auto bool) {
	r.mu.Lock()
	r.policy.Auto = auto
	r.mu.Unlock()
}

func (r *reconnector) auto() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy.Auto
}

// step returns the status for now and whether a new attempt should start.
func (r *reconnector) step(now time.Time, connected bool) (ReconnectStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempt := false
	switch {
	case connected:
		r.status = Connected
	case now.Sub(r.started) < r.policy.Grace:
		r.status = Waiting
	case !r.policy.Auto:
		r.status = Error
	case r.lastAttempt.IsZero() || now.Sub(r.lastAttempt) >= r.policy.Pending:
		r.lastAttempt = now
		r.status = Pending
		attempt = true
	default:
		r.status = Pending
	}
	return r.status, attempt
}

func (r *reconnector) current() ReconnectStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}
