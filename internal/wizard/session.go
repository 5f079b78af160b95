package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/lukasbauer/evervoice/internal/core"
)

// Session is the per-browser wizard context. It is not part of the persisted
// persona; it lives in a SessionStore and expires with it.
type Session struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Role      core.Role            `json:"role"`
	Step      int                  `json:"step"`
	Nickname  string               `json:"nickname,omitempty"`
	Tokens    map[core.Role]string `json:"tokens,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (s *Session) clone() *Session {
	out := *s
	out.Tokens = make(map[core.Role]string, len(s.Tokens))
	for k, v := range s.Tokens {
		out.Tokens[k] = v
	}
	return &out
}

// SessionStore persists wizard sessions. Get returns core.ErrNotFound for an
// unknown or expired session.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session *Session
	expires time.Time
}

// MemorySessions keeps sessions in process. Expired entries are dropped on
// read.
type MemorySessions struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemorySessions(ttl time.Duration) *MemorySessions {
	return &MemorySessions{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemorySessions) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	if m.ttl > 0 && m.now().After(e.expires) {
		delete(m.sessions, id)
		return nil, core.ErrNotFound
	}
	return e.session.clone(), nil
}

func (m *MemorySessions) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memoryEntry{session: s.clone(), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemorySessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
