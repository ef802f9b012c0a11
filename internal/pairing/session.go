package pairing

import (
	"sync"
	"time"
)

// State is a pairing session's position in its lifecycle. Transitions are
// strictly forward; a session never leaves a terminal state.
type State string

const (
	StatePending         State = "pending"
	StateChallengeIssued State = "challenge_issued"
	StateConnected       State = "connected"
	StateDelivered       State = "delivered"
	StateClosed          State = "closed"
	StateFailed          State = "failed"

	// StateExpired is never stored on a live session: a QR wait that times
	// out fails before any record exists. It is synthesized by status
	// lookups for ids that are unknown or already evicted from retention.
	StateExpired State = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateDelivered, StateClosed, StateExpired, StateFailed:
		return true
	}
	return false
}

// PollStatus maps a state onto the four statuses the polling surface
// exposes: pending, connected, closed, expired.
func (s State) PollStatus() string {
	switch s {
	case StatePending, StateChallengeIssued:
		return "pending"
	case StateConnected, StateDelivered:
		return "connected"
	case StateClosed, StateFailed:
		return "closed"
	default:
		return "expired"
	}
}

// Update is pushed to session watchers on every observable change.
type Update struct {
	Status string `json:"status"`
	// QR carries the rotated QR data URL when the challenge changed.
	QR string `json:"qr,omitempty"`
}

// Session is one pairing attempt. All mutation goes through the registry
// under the session mutex; transitions are monotonic.
type Session struct {
	ID     string
	Mode   Mode
	Target string // normalized number, ModeCode only

	mu        sync.Mutex
	state     State
	challenge Challenge
	dir       string // exclusively owned workspace
	link      Link
	err       error
	createdAt time.Time

	teardown *time.Timer // pending teardown task, cancellable
	watchers []chan Update
}

func newSession(id string, mode Mode, target, dir string) *Session {
	return &Session{
		ID:        id,
		Mode:      mode,
		Target:    target,
		state:     StatePending,
		dir:       dir,
		createdAt: time.Now(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// advance moves the session forward if it has not reached a terminal state.
// Returns false when the transition was suppressed (duplicate event or
// backward move), which is how duplicate OPEN notifications are absorbed.
// Must be called with s.mu held.
func (s *Session) advance(from, to State) bool {
	if s.state != from || s.state.Terminal() {
		return false
	}
	s.state = to
	return true
}

// notify pushes an update to all watchers without blocking. Must be called
// with s.mu held.
func (s *Session) notify(u Update) {
	for _, ch := range s.watchers {
		select {
		case ch <- u:
		default:
		}
	}
}

// closeWatchers ends every watcher stream. Must be called with s.mu held.
func (s *Session) closeWatchers() {
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
}

// cancelTeardown stops a pending teardown task if one is scheduled.
// Must be called with s.mu held.
func (s *Session) cancelTeardown() {
	if s.teardown != nil {
		s.teardown.Stop()
		s.teardown = nil
	}
}
