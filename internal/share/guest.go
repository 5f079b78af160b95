package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lukasbauer/evervoice/internal/audio"
	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/eventlog"
	"github.com/lukasbauer/evervoice/internal/metrics"
	"github.com/lukasbauer/evervoice/internal/notifications"
	"github.com/lukasbauer/evervoice/internal/progression"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyRated  = errors.New("session already rated")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Close reasons.
const (
	ReasonAbandoned = "abandoned"
	ReasonConverted = "converted"
	ReasonExpired   = "expired"
	ReasonShutdown  = "shutdown"
)

// ReasonGuestRating is the audit reason for the owner's rating reward.
const ReasonGuestRating = "guest_rating"

// previewLine is spoken in the guest's cloned voice after the owner's opening.
const previewLine = "Hi, it's me. I recorded this so you could hear us together."

// releaseTimeout bounds voice deletion, which runs even when the request
// context is already cancelled.
const releaseTimeout = 10 * time.Second

type Ledger interface {
	SettleDailyInteraction(ctx context.Context, userID string) (progression.SettlementResult, error)
	ApplyDelta(ctx context.Context, userID string, xpDelta, energyDelta int, reason string) (*store.Profile, error)
}

type Voices interface {
	CloneGuestVoice(ctx context.Context, name string, sample []byte) (string, error)
	DeleteVoice(ctx context.Context, voiceID string)
	GetClip(ctx context.Context, userID string, role core.Role, slot core.Slot) ([]byte, error)
}

type Speech interface {
	Synthesize(ctx context.Context, text, voiceID string) []byte
}

type Identities interface {
	SaveVoiceIdentity(ctx context.Context, v store.VoiceIdentity) error
}

type OwnerNotifier interface {
	NotifyOwner(ctx context.Context, userID string, n notifications.OwnerNotification)
}

type Events interface {
	LogAsync(userID string, role core.Role, eventType eventlog.EventType, data map[string]any)
}

// Deps bundles the guest service's collaborators. Notifier and Events may be nil.
type Deps struct {
	Tokens     *Tokens
	Registry   *Registry
	Ledger     Ledger
	Voices     Voices
	Speech     Speech
	Identities Identities
	Notifier   OwnerNotifier
	Events     Events
}

// Guests runs guest sessions. Every ephemeral voice a session acquires is
// released exactly once, unless it is handed off to a new account.
type Guests struct {
	Deps
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger
}

func NewGuests(deps Deps, ttl time.Duration, log zerolog.Logger) *Guests {
	return &Guests{
		Deps: deps,
		ttl:  ttl,
		now:  time.Now,
		log:  log.With().Str("component", "guest").Logger(),
	}
}

// SetClock replaces the time source used for idle tracking.
func (g *Guests) SetClock(now func() time.Time) {
	g.now = now
}

func (g *Guests) event(s *Session, t eventlog.EventType, data map[string]any) {
	if g.Events != nil {
		if data == nil {
			data = map[string]any{}
		}
		data["session_id"] = s.ID
		g.Events.LogAsync(s.OwnerID, s.Role, t, data)
	}
}

// Start resolves a token and opens a session bound to the owner's persona. The
// guest's arrival settles the owner's daily interaction.
func (g *Guests) Start(ctx context.Context, token string) (*Session, progression.SettlementResult, error) {
	rec, err := g.Tokens.ResolveToken(ctx, token)
	if err != nil {
		return nil, progression.SettlementResult{}, err
	}
	if rec == nil {
		return nil, progression.SettlementResult{}, core.ErrNotFound
	}

	now := g.now()
	s := &Session{
		ID:        uuid.NewString(),
		OwnerID:   rec.UserID,
		Role:      rec.Role,
		CreatedAt: now,
		lastSeen:  now,
	}
	if !g.Registry.Add(s) {
		return nil, progression.SettlementResult{}, core.ErrSessionClosed
	}
	metrics.ActiveGuestSessions.Inc()

	settlement, err := g.Ledger.SettleDailyInteraction(ctx, rec.UserID)
	if err != nil {
		g.log.Warn().Err(err).Str("owner_id", rec.UserID).Msg("owner settlement failed")
	} else if settlement.PenaltyApplied && g.Notifier != nil {
		g.Notifier.NotifyOwner(ctx, rec.UserID, notifications.OwnerNotification{
			Kind:  notifications.KindSettlement,
			Title: "Your family visited",
			Body:  settlement.Message,
		})
	}

	g.event(s, eventlog.EventGuestSessionStarted, nil)
	g.log.Info().Str("session_id", s.ID).Str("owner_id", s.OwnerID).Str("role", string(s.Role)).Msg("guest session started")
	return s, settlement, nil
}

// Session returns an open session and marks it active.
func (g *Guests) Session(id string) (*Session, error) {
	s, ok := g.Registry.Get(id)
	if !ok || s.Closed() {
		return nil, core.ErrNotFound
	}
	s.touch(g.now())
	return s, nil
}

// Preview is the role-swap playback: the owner's opening followed by a line in
// the guest's cloned voice.
type Preview struct {
	VoiceID string `json:"voice_id"`
	Audio   []byte `json:"-"`
}

// CloneVoice clones the guest's sample into the session's ephemeral voice. A
// voice cloned earlier in the session is released and replaced.
func (g *Guests) CloneVoice(ctx context.Context, id string, sample []byte) (*Preview, error) {
	s, err := g.Session(id)
	if err != nil {
		return nil, err
	}

	voiceID, err := g.Voices.CloneGuestVoice(ctx, "guest-"+s.ID, sample)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed || s.converting {
		s.mu.Unlock()
		// The session ended or is handing off its voice; nothing will own this handle.
		g.release(ctx, s, voiceID)
		return nil, core.ErrSessionClosed
	}
	previous := s.voiceID
	s.voiceID = voiceID
	s.mu.Unlock()

	if previous != "" {
		g.release(ctx, s, previous)
	}
	g.event(s, eventlog.EventGuestVoiceCloned, map[string]any{"voice_id": voiceID})

	opening, err := g.Voices.GetClip(ctx, s.OwnerID, s.Role, core.SlotOpening)
	if err != nil {
		g.log.Warn().Err(err).Str("session_id", s.ID).Msg("owner opening unavailable for preview")
	}
	line := g.Speech.Synthesize(ctx, previewLine, voiceID)
	return &Preview{VoiceID: voiceID, Audio: audio.SpliceDialogue([][]byte{opening, line})}, nil
}

// Rate records the guest's rating once and rewards the owner with 1 XP.
func (g *Guests) Rate(ctx context.Context, id string, stars int) (*store.Profile, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrInvalidRating
	}
	s, err := g.Session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.rated {
		s.mu.Unlock()
		return nil, ErrAlreadyRated
	}
	s.rated = true
	s.mu.Unlock()

	p, err := g.Ledger.ApplyDelta(ctx, s.OwnerID, 1, 0, ReasonGuestRating)
	if err != nil {
		s.mu.Lock()
		s.rated = false
		s.mu.Unlock()
		return nil, err
	}

	if g.Notifier != nil {
		g.Notifier.NotifyOwner(ctx, s.OwnerID, notifications.OwnerNotification{
			Kind:  notifications.KindGuestRating,
			Title: "New rating",
			Body:  fmt.Sprintf("A visitor rated your %s persona %d/5. +1 XP", s.Role, stars),
			Data:  map[string]any{"stars": stars, "role": string(s.Role)},
		})
	}
	g.event(s, eventlog.EventGuestRated, map[string]any{"stars": stars})
	return p, nil
}

// Convert hands the session's voice to a new account and ends the session
// without deleting it. If persisting the handoff fails the session stays open,
// unless a close arrived meanwhile, in which case that close runs and releases
// the voice.
func (g *Guests) Convert(ctx context.Context, id, newUserID string) (string, error) {
	s, err := g.Session(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed || s.converting {
		s.mu.Unlock()
		return "", core.ErrSessionClosed
	}
	s.converting = true
	voiceID := s.voiceID
	s.mu.Unlock()

	if voiceID != "" {
		err := g.Identities.SaveVoiceIdentity(ctx, store.VoiceIdentity{
			UserID:  newUserID,
			VoiceID: voiceID,
			Source:  "guest_session",
		})
		if err != nil {
			s.mu.Lock()
			s.converting = false
			pending := s.pendingClose
			s.pendingClose = ""
			s.mu.Unlock()
			if pending != "" {
				g.close(ctx, s, pending, true)
			}
			return "", fmt.Errorf("hand off voice: %w", err)
		}
	}

	s.mu.Lock()
	s.converting = false
	s.pendingClose = ""
	s.closed = true
	s.voiceID = ""
	s.mu.Unlock()
	g.finish(s, ReasonConverted)

	if voiceID != "" {
		g.event(s, eventlog.EventGuestVoiceHandedOff, map[string]any{"voice_id": voiceID, "new_user_id": newUserID})
	}
	return voiceID, nil
}

// Abandon ends the session and releases its voice.
func (g *Guests) Abandon(ctx context.Context, id string) error {
	s, ok := g.Registry.Get(id)
	if !ok {
		return core.ErrNotFound
	}
	g.close(ctx, s, ReasonAbandoned, true)
	return nil
}

// ReapIdle closes sessions idle for longer than the TTL and releases their
// voices. It returns the number of sessions closed.
func (g *Guests) ReapIdle(ctx context.Context) int {
	n := 0
	for _, s := range g.Registry.Idle(g.now(), g.ttl) {
		if g.close(ctx, s, ReasonExpired, true) {
			n++
		}
	}
	return n
}

// Shutdown rejects new sessions and closes every open one.
func (g *Guests) Shutdown(ctx context.Context) {
	g.Registry.StartDraining()
	for _, s := range g.Registry.All() {
		g.close(ctx, s, ReasonShutdown, true)
	}
}

// close ends the session once. It returns false if the session was already
// closed, or if a conversion is in flight, in which case the close is parked
// and the conversion decides the voice's fate.
func (g *Guests) close(ctx context.Context, s *Session, reason string, releaseVoice bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.converting {
		if s.pendingClose == "" {
			s.pendingClose = reason
		}
		s.mu.Unlock()
		return false
	}
	s.closed = true
	voiceID := s.voiceID
	s.voiceID = ""
	s.mu.Unlock()

	if releaseVoice && voiceID != "" {
		g.release(ctx, s, voiceID)
	}
	g.finish(s, reason)
	return true
}

func (g *Guests) finish(s *Session, reason string) {
	g.Registry.Remove(s.ID)
	metrics.ActiveGuestSessions.Dec()
	metrics.GuestSessionsClosed.WithLabelValues(reason).Inc()
	g.log.Info().Str("session_id", s.ID).Str("reason", reason).Msg("guest session closed")
}

func (g *Guests) release(ctx context.Context, s *Session, voiceID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	g.Voices.DeleteVoice(ctx, voiceID)
	g.event(s, eventlog.EventGuestVoiceReleased, map[string]any{"voice_id": voiceID})
}
