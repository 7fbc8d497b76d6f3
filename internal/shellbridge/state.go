package shellbridge

import (
	"sync"
	"time"
)

// ConnectionState is the lifecycle state of the bridge's current attempt.
type ConnectionState string

const (
	StateIdle       ConnectionState = "idle"
	StateConnecting ConnectionState = "connecting"
	StateReady      ConnectionState = "ready"
	StateStreaming  ConnectionState = "streaming"
	StateClosing    ConnectionState = "closing"
	StateClosed     ConnectionState = "closed"
	StateFailed     ConnectionState = "failed"
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	return string(s)
}

// IsValid returns true if the state is one of the defined constants.
func (s ConnectionState) IsValid() bool {
	switch s {
	case StateIdle, StateConnecting, StateReady, StateStreaming, StateClosing, StateClosed, StateFailed:
		return true
	default:
		return false
	}
}

// IsLive reports whether an attempt in this state holds transport resources
// that must be torn down before another attempt may start.
func (s ConnectionState) IsLive() bool {
	switch s {
	case StateConnecting, StateReady, StateStreaming, StateClosing:
		return true
	default:
		return false
	}
}

// StateTransition records a state change for debugging.
type StateTransition struct {
	Attempt   uint64          `json:"attempt"`
	From      ConnectionState `json:"from"`
	To        ConnectionState `json:"to"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// maxTransitions limits the number of stored state transitions.
const maxTransitions = 50

// stateTracker holds the current state and a bounded transition history.
// Only the bridge loop writes; readers may be on any goroutine.
type stateTracker struct {
	mu          sync.RWMutex
	state       ConnectionState
	reason      string
	transitions []StateTransition
}

func newStateTracker() *stateTracker {
	return &stateTracker{state: StateIdle}
}

func (t *stateTracker) get() ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *stateTracker) failureReason() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reason
}

// set moves to newState and returns the previous state. reason is kept only
// for StateFailed. Setting the current state again records nothing.
func (t *stateTracker) set(attempt uint64, newState ConnectionState, reason string) ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.state
	if old == newState {
		return old
	}
	t.state = newState
	if newState == StateFailed {
		t.reason = reason
	} else {
		t.reason = ""
	}

	t.transitions = append(t.transitions, StateTransition{
		Attempt:   attempt,
		From:      old,
		To:        newState,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	if len(t.transitions) > maxTransitions {
		t.transitions = t.transitions[len(t.transitions)-maxTransitions:]
	}
	return old
}

func (t *stateTracker) history() []StateTransition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]StateTransition, len(t.transitions))
	copy(out, t.transitions)
	return out
}
