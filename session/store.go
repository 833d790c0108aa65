// Package session implements the process-wide call session store and the
// per-session playback manager. Store reads are not lock-free: each takes
// its shard's read lock for the map lookup. Store writes serialize on the
// shard's write lock, so no session shares mutable state with another.
package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/agentplexus/omnivoice-core/llm"
	"github.com/agentplexus/omnivoice-core/profile"
)

const shardCount = 32

// GateState is the coordinator's ingress-gate state, mirrored onto the
// session for snapshotting/metrics.
type GateState string

const (
	GateOpen   GateState = "open"
	GateClosed GateState = "closed"
)

// Call is the per-call session data model: per-call state owned
// exclusively by its audio transport, provider handle, conversation
// history, and playback handles.
type Call struct {
	ID string

	CallerChannelID string
	SnoopChannelID  string
	BridgeID        string
	CallerNumber    string
	CalleeNumber    string
	Context         string
	PipelineName    string

	Profile *profile.Profile

	Playbacks *PlaybackManager

	CreatedAt     time.Time
	TerminatedAt  time.Time

	mu           sync.RWMutex
	history      []llm.Message
	turnIndex    int64
	gate         GateState
	terminated   bool

	ctx    context.Context
	Cancel context.CancelFunc
}

// NewCall constructs a Call Session rooted on a fresh cancellation token
// derived from parent.
func NewCall(parent context.Context, id string) *Call {
	ctx, cancel := context.WithCancel(parent)
	c := &Call{
		ID:        id,
		CreatedAt: time.Now(),
		gate:      GateClosed,
		ctx:       ctx,
		Cancel:    cancel,
	}
	c.Playbacks = NewPlaybackManager(ctx)
	return c
}

// Context returns the session's root cancellation context.
func (c *Call) Context() context.Context { return c.ctx }

// AppendHistory appends one message to the conversation history. Callers
// needing bounded history should call llm.TrimHistory on the result of
// History() and store it back via SetHistory.
func (c *Call) AppendHistory(m llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return
	}
	c.history = append(c.history, m)
}

// History returns a snapshot copy of the conversation history.
func (c *Call) History() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.Message, len(c.history))
	copy(out, c.history)
	return out
}

// SetHistory replaces the conversation history (used after trimming).
func (c *Call) SetHistory(h []llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = h
}

// NextTurn atomically advances and returns the monotonic turn index.
func (c *Call) NextTurn() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turnIndex++
	return c.turnIndex
}

// TurnIndex returns the current turn index without advancing it.
func (c *Call) TurnIndex() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turnIndex
}

// SetGate records the coordinator's current gate state for snapshotting.
func (c *Call) SetGate(g GateState) {
	c.mu.Lock()
	c.gate = g
	c.mu.Unlock()
}

// Gate returns the last recorded gate state.
func (c *Call) Gate() GateState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gate
}

// Terminate marks the session terminated, preventing further history
// writes and cancelling all outstanding playbacks. Safe to call multiple
// times.
func (c *Call) Terminate() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.TerminatedAt = time.Now()
	c.mu.Unlock()

	c.Playbacks.CancelAll()
	c.Cancel()
}

// Terminated reports whether Terminate has already run.
func (c *Call) Terminated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.terminated
}

// Store is the process-wide, sharded call-id -> *Call mapping. Reads never
// block writers of other shards; each shard serializes its own writes.
type Store struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.RWMutex
	calls map[string]*Call
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].calls = make(map[string]*Call)
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

// Put registers a new Call. Used on Stasis-start.
func (s *Store) Put(c *Call) {
	sh := s.shardFor(c.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.calls[c.ID] = c
}

// Get performs a lock-free-feeling snapshot read (a short read-lock) by
// call id. This is the only way the coordinator may observe session state
// — a lookup by id, never a direct owning reference.
func (s *Store) Get(id string) (*Call, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.calls[id]
	return c, ok
}

// Remove deletes a call from the store. Used on Stasis-end after draining.
func (s *Store) Remove(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.calls, id)
}

// Len returns the number of active sessions, used by health/admission.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		n += len(s.shards[i].calls)
		s.shards[i].mu.RUnlock()
	}
	return n
}

// Snapshot returns every currently tracked call (for diagnostics only; not
// on any hot path).
func (s *Store) Snapshot() []*Call {
	var out []*Call
	for i := range s.shards {
		s.shards[i].mu.RLock()
		for _, c := range s.shards[i].calls {
			out = append(out, c)
		}
		s.shards[i].mu.RUnlock()
	}
	return out
}
