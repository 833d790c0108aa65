package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PlaybackState is the lifecycle state of a Playback handle.
type PlaybackState string

const (
	PlaybackAllocated PlaybackState = "allocated"
	PlaybackStarted   PlaybackState = "started"
	PlaybackCompleted PlaybackState = "completed"
	PlaybackCancelled PlaybackState = "cancelled"
)

// Playback represents one in-flight agent audio delivery: a unique id,
// estimated total duration, bytes-sent counter, and a cancelable context.
// Owned by the session; destroyed when playback completes, is cancelled,
// or the session ends. Never shared across sessions.
type Playback struct {
	ID            string
	EstDuration   time.Duration
	BytesSent     int64
	State         PlaybackState
	ctx           context.Context
	cancel        context.CancelFunc

	mu sync.Mutex
}

// Cancel cancels this playback's sub-token, derived from the session's root
// cancellation token.
func (p *Playback) Cancel() {
	p.cancel()
}

// Context returns the playback's cancelable context.
func (p *Playback) Context() context.Context { return p.ctx }

// AddBytes accounts for bytes delivered so far.
func (p *Playback) AddBytes(n int) {
	p.mu.Lock()
	p.BytesSent += int64(n)
	p.mu.Unlock()
}

// PlaybackManager tracks all outstanding playback handles for one session,
// enforcing the invariant that at most one is in the
// "started, not completed, not cancelled" state at any instant.
type PlaybackManager struct {
	sessionCtx context.Context

	mu          sync.Mutex
	active      *Playback // the single started-not-terminal handle, if any
	terminated  bool
}

// NewPlaybackManager creates a manager scoped to sessionCtx; all playback
// sub-tokens derive from it, so session termination cancels every
// outstanding playback.
func NewPlaybackManager(sessionCtx context.Context) *PlaybackManager {
	return &PlaybackManager{sessionCtx: sessionCtx}
}

// Allocate creates a new Playback handle. Fails if the manager has been
// terminated (no new playbacks may be enqueued after terminate()).
func (m *PlaybackManager) Allocate(estDuration time.Duration) (*Playback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return nil, fmt.Errorf("session: playback manager terminated, cannot allocate")
	}
	ctx, cancel := context.WithCancel(m.sessionCtx)
	return &Playback{
		ID:          uuid.NewString(),
		EstDuration: estDuration,
		State:       PlaybackAllocated,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// MarkStarted transitions p to started, enforcing the single-active
// invariant: it is an InvariantViolation (see package errs) to start a
// second playback while one is already started.
func (m *PlaybackManager) MarkStarted(p *Playback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active != p {
		return fmt.Errorf("session: invariant violation: playback %s started while %s is still active", p.ID, m.active.ID)
	}
	p.mu.Lock()
	p.State = PlaybackStarted
	p.mu.Unlock()
	m.active = p
	return nil
}

// MarkBytesSent records delivered bytes for p.
func (m *PlaybackManager) MarkBytesSent(p *Playback, n int) {
	p.AddBytes(n)
}

// Complete transitions p to completed and clears it as the active handle.
func (m *PlaybackManager) Complete(p *Playback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.mu.Lock()
	p.State = PlaybackCompleted
	p.mu.Unlock()
	if m.active == p {
		m.active = nil
	}
}

// Cancel cancels p's context and transitions it to cancelled.
func (m *PlaybackManager) Cancel(p *Playback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Cancel()
	p.mu.Lock()
	p.State = PlaybackCancelled
	p.mu.Unlock()
	if m.active == p {
		m.active = nil
	}
}

// Active returns the current started-not-terminal playback, if any.
func (m *PlaybackManager) Active() *Playback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// CancelAll cancels every outstanding handle and marks the manager
// terminated. This is the only operation permitted after terminate() has
// been called on the owning session; it guarantees every outstanding
// handle reaches a terminal state before returning.
func (m *PlaybackManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
	if m.active != nil {
		m.active.Cancel()
		m.active.mu.Lock()
		m.active.State = PlaybackCancelled
		m.active.mu.Unlock()
		m.active = nil
	}
}
