package share

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lukasbauer/evervoice/internal/core"
)

// Session is one guest's ephemeral visit to an owner's persona.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Role      core.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	mu       sync.Mutex
	lastSeen time.Time
	voiceID  string
	rated    bool
	closed   bool

	// converting is set while the voice is being handed to a new account.
	// Clones are refused and closes are parked in pendingClose until the
	// handoff resolves.
	converting   bool
	pendingClose string
}

// VoiceID returns the session's ephemeral voice handle, if any.
func (s *Session) VoiceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceID
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Registry tracks open guest sessions and supports draining on shutdown.
// When draining, new sessions are rejected while open ones are closed by the
// caller.
type Registry struct {
	mu       sync.Mutex
	draining bool
	sessions map[string]*Session
	count    atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session. Returns false if the registry is draining.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return false
	}
	r.sessions[s.ID] = s
	r.count.Add(1)
	return true
}

// Get returns an open session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		r.count.Add(-1)
	}
}

// Idle returns sessions inactive for at least ttl.
func (r *Registry) Idle(now time.Time, ttl time.Duration) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.idleSince(now) >= ttl {
			out = append(out, s)
		}
	}
	return out
}

// All returns a snapshot of open sessions.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// StartDraining makes future Add calls return false.
func (r *Registry) StartDraining() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draining = true
}

func (r *Registry) IsDraining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

// ActiveCount returns the number of open sessions.
func (r *Registry) ActiveCount() int64 {
	return r.count.Load()
}
