package session

import (
	"errors"
	"sync"
	"time"

	"github.com/sandterm/sandterm/internal/sandbox"
)

var (
	// ErrNotFound indicates an unknown or expired session ID.
	ErrNotFound = errors.New("session not found")

	// ErrResourceExhausted indicates the sandbox runtime could not
	// provision a new environment.
	ErrResourceExhausted = errors.New("sandbox resources exhausted")
)

// State is a session's lifecycle phase.
type State string

const (
	StateProvisioning State = "provisioning"
	StateActive       State = "active"
	StateDisconnected State = "disconnected"
	StateTerminating  State = "terminating"
	StateTerminated   State = "terminated"
)

// Session is one sandbox-backed terminal session. The registry creates it
// and serializes all mutation; the embedded mutex protects dimensions,
// activity, state, and channel ownership against concurrent resize, bridge
// attach, and reaping.
type Session struct {
	id        string
	handle    sandbox.Handle
	createdAt time.Time

	mu           sync.Mutex
	state        State
	cols, rows   int
	lastActivity time.Time
	channel      sandbox.Channel
}

// ID returns the session's immutable identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dimensions returns the most recently requested terminal size as a
// self-consistent pair.
func (s *Session) Dimensions() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Touch records client activity now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the last inbound transport frame (or
// creation, whichever is later).
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Active reports whether a bridge currently runs for this session.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive && s.channel != nil
}

// Status is the externally visible snapshot of a session.
type Status struct {
	ID           string    `json:"session_id"`
	State        State     `json:"state"`
	Active       bool      `json:"active"`
	Cols         int       `json:"cols"`
	Rows         int       `json:"rows"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Snapshot captures a self-consistent status.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:           s.id,
		State:        s.state,
		Active:       s.state == StateActive && s.channel != nil,
		Cols:         s.cols,
		Rows:         s.rows,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}
