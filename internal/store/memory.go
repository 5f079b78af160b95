package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lukasbauer/evervoice/internal/core"
)

// Records is the record-store surface used by the services. Both *Store and
// *Memory implement it.
type Records interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	EnsureProfile(ctx context.Context, defaults Profile) (*Profile, error)
	ApplyProfileDelta(ctx context.Context, userID string, xpDelta, energyDelta int, reason string) (*Profile, error)
	SettleInteraction(ctx context.Context, userID string, expectedLast, today time.Time, energyDelta int, reason string) (*Profile, bool, error)
	UpgradeTier(ctx context.Context, userID string, from, to core.Tier, xpBonus, energyBonus int, reason string) (*Profile, bool, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)

	CompleteTrainingStep(ctx context.Context, userID string, role core.Role, step, xp int, reason string) (bool, error)
	CompletedSteps(ctx context.Context, userID string, role core.Role) ([]int, error)

	UpsertPersona(ctx context.Context, p Persona) error
	GetPersona(ctx context.Context, userID string, role core.Role) (*Persona, error)
	InsertMemory(ctx context.Context, m MemoryFragment) error
	ListMemories(ctx context.Context, userID string, role core.Role) ([]MemoryFragment, error)

	InsertShareToken(ctx context.Context, t ShareToken) error
	GetShareToken(ctx context.Context, token string) (*ShareToken, error)
	SaveVoiceIdentity(ctx context.Context, v VoiceIdentity) error
	ListVoiceIdentities(ctx context.Context, userID string) ([]VoiceIdentity, error)

	RegisterPushToken(ctx context.Context, userID, token string, platform Platform) error
	UnregisterPushToken(ctx context.Context, token string) error
	ListPushTokens(ctx context.Context, userID string, platform Platform) ([]DevicePushToken, error)
}

var (
	_ Records = (*Store)(nil)
	_ Records = (*Memory)(nil)
)

type personaKey struct {
	userID string
	role   core.Role
}

type stepKey struct {
	userID string
	role   core.Role
	step   int
}

// Memory is an in-process Records implementation used for local development
// and tests. It applies the same clamping, logging and compare-and-swap rules
// as the Postgres store.
type Memory struct {
	mu           sync.Mutex
	profiles     map[string]Profile
	transactions []Transaction
	personas     map[personaKey]Persona
	memories     []MemoryFragment
	tokens       map[string]ShareToken
	steps        map[stepKey]time.Time
	voices       map[string]VoiceIdentity
	pushTokens   []DevicePushToken
	nextID       int64
	now          func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]Profile),
		personas: make(map[personaKey]Persona),
		tokens:   make(map[string]ShareToken),
		steps:    make(map[stepKey]time.Time),
		voices:   make(map[string]VoiceIdentity),
		now:      time.Now,
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) GetProfile(_ context.Context, userID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) EnsureProfile(_ context.Context, defaults Profile) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[defaults.UserID]; ok {
		return &p, nil
	}
	now := m.now()
	p := defaults
	p.CreatedAt, p.UpdatedAt = now, now
	m.profiles[p.UserID] = p
	return &p, nil
}

func (m *Memory) ApplyProfileDelta(_ context.Context, userID string, xpDelta, energyDelta int, reason string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDelta(userID, xpDelta, energyDelta, reason)
}

func (m *Memory) applyDelta(userID string, xpDelta, energyDelta int, reason string) (*Profile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	p.XP = max(0, p.XP+xpDelta)
	p.Energy = max(0, p.Energy+energyDelta)
	p.UpdatedAt = m.now()
	m.profiles[userID] = p
	m.logTransaction(userID, xpDelta, energyDelta, reason)
	return &p, nil
}

func (m *Memory) logTransaction(userID string, xpDelta, energyDelta int, reason string) {
	if reason == "" || (xpDelta == 0 && energyDelta == 0) {
		return
	}
	m.transactions = append(m.transactions, Transaction{
		ID:          m.id(),
		UserID:      userID,
		XPDelta:     xpDelta,
		EnergyDelta: energyDelta,
		Reason:      reason,
		CreatedAt:   m.now(),
	})
}

func (m *Memory) SettleInteraction(_ context.Context, userID string, expectedLast, today time.Time, energyDelta int, reason string) (*Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok || !sameDay(p.LastInteractionDate, expectedLast) {
		return nil, false, nil
	}
	p.LastInteractionDate = today
	p.Energy = max(0, p.Energy+energyDelta)
	p.UpdatedAt = m.now()
	m.profiles[userID] = p
	m.logTransaction(userID, 0, energyDelta, reason)
	return &p, true, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *Memory) UpgradeTier(_ context.Context, userID string, from, to core.Tier, xpBonus, energyBonus int, reason string) (*Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok || p.Tier != from {
		return nil, false, nil
	}
	p.Tier = to
	m.profiles[userID] = p
	out, err := m.applyDelta(userID, xpBonus, energyBonus, reason)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (m *Memory) ListTransactions(_ context.Context, userID string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for i := len(m.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.transactions[i].UserID == userID {
			out = append(out, m.transactions[i])
		}
	}
	return out, nil
}

func (m *Memory) CompleteTrainingStep(_ context.Context, userID string, role core.Role, step, xp int, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stepKey{userID, role, step}
	if _, done := m.steps[key]; done {
		return false, nil
	}
	if _, err := m.applyDelta(userID, xp, 0, reason); err != nil {
		return false, err
	}
	m.steps[key] = m.now()
	return true, nil
}

func (m *Memory) CompletedSteps(_ context.Context, userID string, role core.Role) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var steps []int
	for k := range m.steps {
		if k.userID == userID && k.role == role {
			steps = append(steps, k.step)
		}
	}
	sort.Ints(steps)
	return steps, nil
}

func (m *Memory) UpsertPersona(_ context.Context, p Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = m.now()
	m.personas[personaKey{p.UserID, p.Role}] = p
	return nil
}

func (m *Memory) GetPersona(_ context.Context, userID string, role core.Role) (*Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.personas[personaKey{userID, role}]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) InsertMemory(_ context.Context, f MemoryFragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.id()
	f.CreatedAt = m.now()
	m.memories = append(m.memories, f)
	return nil
}

func (m *Memory) ListMemories(_ context.Context, userID string, role core.Role) ([]MemoryFragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MemoryFragment
	for _, f := range m.memories {
		if f.UserID == userID && f.Role == role {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) InsertShareToken(_ context.Context, t ShareToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[t.Token]; exists {
		return core.ErrTokenExists
	}
	t.CreatedAt = m.now()
	m.tokens[t.Token] = t
	return nil
}

func (m *Memory) GetShareToken(_ context.Context, token string) (*ShareToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &t, nil
}

func (m *Memory) SaveVoiceIdentity(_ context.Context, v VoiceIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.CreatedAt = m.now()
	m.voices[v.VoiceID] = v
	return nil
}

func (m *Memory) ListVoiceIdentities(_ context.Context, userID string) ([]VoiceIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []VoiceIdentity
	for _, v := range m.voices {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RegisterPushToken(_ context.Context, userID, token string, platform Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.pushTokens {
		if t.UserID == userID && t.Token == token {
			m.pushTokens[i].Platform = platform
			m.pushTokens[i].CreatedAt = m.now()
			return nil
		}
	}
	m.pushTokens = append(m.pushTokens, DevicePushToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		Platform:  platform,
		CreatedAt: m.now(),
	})
	return nil
}

func (m *Memory) UnregisterPushToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.pushTokens[:0]
	for _, t := range m.pushTokens {
		if t.Token != token {
			kept = append(kept, t)
		}
	}
	m.pushTokens = kept
	return nil
}

func (m *Memory) ListPushTokens(_ context.Context, userID string, platform Platform) ([]DevicePushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DevicePushToken
	for i := len(m.pushTokens) - 1; i >= 0; i-- {
		t := m.pushTokens[i]
		if t.UserID == userID && (platform == "" || t.Platform == platform) {
			out = append(out, t)
		}
	}
	return out, nil
}
