// Package pairing owns the ephemeral pairing session lifecycle: it allocates
// an isolated workspace per linking attempt, drives the attempt through its
// state machine off the adapter's connection events, delivers the encoded
// session token back over the freshly-linked account, and guarantees every
// workspace is reclaimed no matter how the attempt ends.
package pairing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nebulalabs/nebula-pair/internal/creds"
	"github.com/nebulalabs/nebula-pair/internal/workspace"
)

// Timeouts holds the lifecycle timers of a pairing attempt.
type Timeouts struct {
	// QRWait bounds how long StartQR blocks waiting for the first payload.
	QRWait time.Duration
	// Settle is the delay between the connection opening and the first
	// credential read.
	Settle time.Duration
	// Teardown is the grace delay between delivery and workspace removal.
	Teardown time.Duration
	// Retention is how long a terminal record stays observable.
	Retention time.Duration
}

// maxTerminalRecords bounds the retention cache; entries also expire after
// the retention window regardless of pressure.
const maxTerminalRecords = 1024

type terminalRecord struct {
	state State
}

// Registry is the authoritative owner of every pairing session. The session
// map supports concurrent starts and lookups across sessions; transitions
// for one session are serialized by its own mutex plus the single event
// goroutine driving it.
type Registry struct {
	adapter  Adapter
	spaces   *workspace.Store
	codec    *creds.Codec
	deliver  *Deliverer
	timeouts Timeouts

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
	targets  map[string]string // normalized number → session id

	// terminal keeps recently-finished sessions observable by pollers for
	// the retention window, then evicts them.
	terminal *expirable.LRU[string, terminalRecord]
}

// NewRegistry creates a registry. Close must be called to release the
// background goroutines and any in-flight workspaces.
func NewRegistry(adapter Adapter, spaces *workspace.Store, codec *creds.Codec, deliver *Deliverer, timeouts Timeouts) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		adapter:  adapter,
		spaces:   spaces,
		codec:    codec,
		deliver:  deliver,
		timeouts: timeouts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
		targets:  make(map[string]string),
		terminal: expirable.NewLRU[string, terminalRecord](maxTerminalRecords, nil, timeouts.Retention),
	}
}

// StartCode begins a pairing-code attempt for a raw phone identifier and
// returns the dash-grouped code. The response is immediate; connection
// events drive the rest of the lifecycle asynchronously.
func (r *Registry) StartCode(ctx context.Context, rawNumber string) (string, error) {
	number := NormalizePhoneNumber(rawNumber)
	if !ValidPhoneNumber(number) {
		return "", ErrInvalidNumber
	}

	id := uuid.NewString()
	if !r.reserveTarget(number, id) {
		return "", ErrAlreadyActive
	}

	_, dir, err := r.spaces.Create()
	if err != nil {
		r.releaseTarget(number, id)
		return "", err
	}

	link, err := r.adapter.Dial(ctx, dir, ChallengeRequest{Mode: ModeCode, Target: number})
	if err != nil {
		r.releaseTarget(number, id)
		if rmErr := r.spaces.Remove(dir); rmErr != nil {
			slog.Error("workspace removal failed", "session", id, "error", rmErr)
		}
		return "", err
	}

	s := newSession(id, ModeCode, number, dir)
	s.link = link
	s.challenge = link.Challenge()
	s.state = StateChallengeIssued

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.wg.Add(1)
	go r.drive(s)

	slog.Info("pairing code issued", "session", id, "number", number, "code", s.challenge.Code)
	return s.challenge.Code, nil
}

// StartQR begins a QR attempt, blocking until the first QR payload arrives
// or the configured wait elapses (ErrChallengeTimeout). Returns the rendered
// QR data URL and the session id for status polling.
func (r *Registry) StartQR(ctx context.Context) (qrDataURL, sessionID string, err error) {
	id := uuid.NewString()

	_, dir, err := r.spaces.Create()
	if err != nil {
		return "", "", err
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.timeouts.QRWait)
	defer cancel()

	link, err := r.adapter.Dial(dialCtx, dir, ChallengeRequest{Mode: ModeQR})
	if err != nil {
		if rmErr := r.spaces.Remove(dir); rmErr != nil {
			slog.Error("workspace removal failed", "session", id, "error", rmErr)
		}
		return "", "", err
	}

	s := newSession(id, ModeQR, "", dir)
	s.link = link
	s.challenge = link.Challenge()
	s.state = StateChallengeIssued

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.wg.Add(1)
	go r.drive(s)

	slog.Info("qr challenge issued", "session", id)
	return s.challenge.QRDataURL, id, nil
}

// Status reports the poll status for a session id. Unknown and evicted ids
// read as "expired".
func (r *Registry) Status(id string) string {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s.State().PollStatus()
	}
	if rec, ok := r.terminal.Get(id); ok {
		return rec.state.PollStatus()
	}
	return "expired"
}

// Watch subscribes to status updates for an active session. The channel is
// closed once the session reaches a terminal state. The returned cancel
// func detaches the watcher; ok is false for unknown or finished sessions.
func (r *Registry) Watch(id string) (updates <-chan Update, cancel func(), ok bool) {
	r.mu.RLock()
	s, found := r.sessions[id]
	r.mu.RUnlock()
	if !found {
		return nil, nil, false
	}

	ch := make(chan Update, 8)
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil, nil, false
	}
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	cancel = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, true
}

// ActiveSessions returns the number of in-flight attempts.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close terminates every in-flight session, reclaims their workspaces and
// waits for the event goroutines to drain.
func (r *Registry) Close() {
	r.cancel()

	r.mu.RLock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.RUnlock()

	for _, s := range open {
		r.finish(s, StateFailed, context.Canceled, false)
	}
	r.wg.Wait()
}

// drive consumes the link's event stream until it ends. Being the only
// consumer, it applies a session's events in emission order.
func (r *Registry) drive(s *Session) {
	defer r.wg.Done()
	for ev := range s.link.Events() {
		switch ev.Kind {
		case EventQRRotated:
			r.rotateQR(s, ev.QR)
		case EventOpen:
			r.handleOpen(s)
		case EventClose:
			r.handleClose(s, ev.Reason)
		}
	}
}

func (r *Registry) rotateQR(s *Session, qr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateChallengeIssued || qr == "" {
		return
	}
	s.challenge.QRDataURL = qr
	s.notify(Update{Status: s.state.PollStatus(), QR: qr})
	slog.Debug("qr rotated", "session", s.ID)
}

// handleOpen runs credential extraction and delivery. The advance guard
// makes it fire at most once per session even if the underlying client
// emits duplicate open notifications.
func (r *Registry) handleOpen(s *Session) {
	s.mu.Lock()
	if !s.advance(StateChallengeIssued, StateConnected) {
		s.mu.Unlock()
		return
	}
	s.notify(Update{Status: StateConnected.PollStatus()})
	s.mu.Unlock()

	slog.Info("remote side authenticated", "session", s.ID)

	// The client flushes credentials asynchronously after the connection
	// opens; one bounded settle delay, then a single read.
	if !sleepCtx(r.ctx, r.timeouts.Settle) {
		return // shutting down, Close reclaims
	}

	raw, err := r.codec.Read(s.dir)
	if err != nil {
		r.finish(s, StateFailed, err, false)
		return
	}

	token := r.codec.Encode(raw)
	if err := r.deliver.Deliver(r.ctx, s.link, token, raw); err != nil {
		r.finish(s, StateFailed, fmt.Errorf("%w: %w", ErrDeliveryFailed, err), false)
		return
	}

	r.finish(s, StateDelivered, nil, true)
}

func (r *Registry) handleClose(s *Session, reason string) {
	switch s.State() {
	case StatePending, StateChallengeIssued:
		slog.Info("connection closed before pairing completed", "session", s.ID, "reason", reason)
		r.finish(s, StateClosed, nil, false)
	default:
		// Close after CONNECTED is the normal teardown; nothing to do.
	}
}

// finish applies the terminal transition exactly once, reclaims the
// workspace (immediately, or after the teardown grace when graceful) and
// moves the record into the retention cache.
func (r *Registry) finish(s *Session, to State, cause error, graceful bool) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.err = cause
	s.notify(Update{Status: to.PollStatus()})
	s.closeWatchers()
	s.cancelTeardown()
	age := time.Since(s.createdAt)
	link := s.link
	if graceful && r.timeouts.Teardown > 0 {
		// The timer is never cancelled once scheduled: only finish
		// schedules it and finish cannot run twice for one session.
		r.wg.Add(1)
		s.teardown = time.AfterFunc(r.timeouts.Teardown, func() {
			defer r.wg.Done()
			r.reclaim(s, link)
		})
	}
	s.mu.Unlock()

	if !graceful || r.timeouts.Teardown <= 0 {
		r.reclaim(s, link)
	}

	r.mu.Lock()
	delete(r.sessions, s.ID)
	if s.Target != "" && r.targets[s.Target] == s.ID {
		delete(r.targets, s.Target)
	}
	r.mu.Unlock()
	r.terminal.Add(s.ID, terminalRecord{state: to})

	if cause != nil {
		slog.Warn("pairing session finished", "session", s.ID, "state", to, "age", age, "error", cause)
	} else {
		slog.Info("pairing session finished", "session", s.ID, "state", to, "age", age)
	}
}

// reclaim closes the link and removes the workspace. Safe to call from the
// success path and the close/timeout path concurrently.
func (r *Registry) reclaim(s *Session, link Link) {
	if link != nil {
		link.Close()
	}
	if err := r.spaces.Remove(s.dir); err != nil {
		slog.Error("workspace removal failed", "session", s.ID, "error", err)
	}
}

func (r *Registry) reserveTarget(number, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.targets[number]; busy {
		return false
	}
	r.targets[number] = id
	return true
}

func (r *Registry) releaseTarget(number, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.targets[number] == id {
		delete(r.targets, number)
	}
}

// sleepCtx sleeps for d unless ctx ends first. Returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
