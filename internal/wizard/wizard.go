// Package wizard drives the five-step voice training flow.
package wizard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lukasbauer/evervoice/internal/audio"
	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/eventlog"
	"github.com/lukasbauer/evervoice/internal/metrics"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
)

const (
	FirstStep = 1
	LastStep  = 5
)

// ReasonTrainingStep is the audit reason for the per-step XP reward.
const ReasonTrainingStep = "training_step"

// StepXP is granted the first time a step is completed for a role.
const StepXP = 1

// StepInfo describes what the caller should record at a step.
type StepInfo struct {
	Step   int    `json:"step"`
	Title  string `json:"title"`
	Script string `json:"script,omitempty"`
}

var steps = map[int]StepInfo{
	1: {Step: 1, Title: "Invocation", Script: "Say the name they call you, the way you'd answer the phone."},
	2: {Step: 2, Title: "Comfort", Script: "Hey, it's okay. Take a breath. I'm right here and we'll figure this out together."},
	3: {Step: 3, Title: "Encouragement", Script: "You've got this. I've watched you do harder things than this, and I'm proud of you."},
	4: {Step: 4, Title: "Humor", Script: "Well, that went about as well as my attempt at baking bread. Remember the smoke alarm?"},
	5: {Step: 5, Title: "Share"},
}

// Info returns the prompt for a step.
func Info(step int) (StepInfo, bool) {
	s, ok := steps[step]
	return s, ok
}

type Clips interface {
	GetClip(ctx context.Context, userID string, role core.Role, slot core.Slot) ([]byte, error)
	UploadClip(ctx context.Context, userID string, role core.Role, slot core.Slot, audio []byte) error
	DeleteClip(ctx context.Context, userID string, role core.Role, slot core.Slot) error
	TrainDefaultVoice(ctx context.Context, sample []byte) error
}

type Profiles interface {
	GetOrCreateProfile(ctx context.Context, userID string) (*store.Profile, error)
}

type Completions interface {
	CompleteTrainingStep(ctx context.Context, userID string, role core.Role, step, xp int, reason string) (bool, error)
}

type Speech interface {
	Synthesize(ctx context.Context, text, voiceID string) []byte
}

type TokenIssuer interface {
	CreateToken(ctx context.Context, userID string, role core.Role) (string, error)
}

type Events interface {
	LogAsync(userID string, role core.Role, eventType eventlog.EventType, data map[string]any)
}

// Deps bundles the wizard's collaborators. Events may be nil.
type Deps struct {
	Sessions    SessionStore
	Clips       Clips
	Profiles    Profiles
	Completions Completions
	Speech      Speech
	Tokens      TokenIssuer
	Events      Events
}

// Wizard runs training sessions. Steps for the same (user, role) are
// serialised within the process.
type Wizard struct {
	Deps
	shareBaseURL string
	locks        keyedMutex
	now          func() time.Time
	log          zerolog.Logger
}

func New(deps Deps, shareBaseURL string, log zerolog.Logger) *Wizard {
	return &Wizard{
		Deps:         deps,
		shareBaseURL: strings.TrimRight(shareBaseURL, "/"),
		now:          time.Now,
		log:          log.With().Str("component", "wizard").Logger(),
	}
}

// Start opens a session at step 1.
func (w *Wizard) Start(ctx context.Context, userID string, role core.Role) (*Session, error) {
	now := w.now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Step:      FirstStep,
		Tokens:    map[core.Role]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.Sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	w.log.Info().Str("session_id", s.ID).Str("user_id", userID).Str("role", string(role)).Msg("wizard session started")
	return s, nil
}

// Get returns a session owned by userID.
func (w *Wizard) Get(ctx context.Context, id, userID string) (*Session, error) {
	s, err := w.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, core.ErrNotFound
	}
	return s, nil
}

// SelectRole switches the role being trained and returns to step 1. Tokens
// already issued in this session are kept per role.
func (w *Wizard) SelectRole(ctx context.Context, id, userID string, role core.Role) (*Session, error) {
	return w.update(ctx, id, userID, func(s *Session) error {
		s.Role = role
		s.Step = FirstStep
		return nil
	})
}

// Next advances one step, from 1 through 4.
func (w *Wizard) Next(ctx context.Context, id, userID string) (*Session, error) {
	return w.update(ctx, id, userID, func(s *Session) error {
		if s.Step < FirstStep || s.Step >= LastStep {
			return fmt.Errorf("%w: next from step %d", core.ErrInvalidTransition, s.Step)
		}
		s.Step++
		return nil
	})
}

// Back returns to the previous step.
func (w *Wizard) Back(ctx context.Context, id, userID string) (*Session, error) {
	return w.update(ctx, id, userID, func(s *Session) error {
		if s.Step <= FirstStep {
			return fmt.Errorf("%w: back from step %d", core.ErrInvalidTransition, s.Step)
		}
		s.Step--
		return nil
	})
}

// Restart is only valid from the final step. It returns to step 1 and drops
// the token cached for the current role.
func (w *Wizard) Restart(ctx context.Context, id, userID string) (*Session, error) {
	return w.update(ctx, id, userID, func(s *Session) error {
		if s.Step != LastStep {
			return fmt.Errorf("%w: restart from step %d", core.ErrInvalidTransition, s.Step)
		}
		delete(s.Tokens, s.Role)
		s.Step = FirstStep
		return nil
	})
}

func (w *Wizard) update(ctx context.Context, id, userID string, fn func(*Session) error) (*Session, error) {
	s, unlock, err := w.acquire(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := fn(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = w.now()
	if err := w.Sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// StepResult reports a completed step.
type StepResult struct {
	Session   *Session `json:"session"`
	Step      int      `json:"step"`
	XPGranted bool     `json:"xp_granted"`
	Preview   []byte   `json:"-"`
}

// Submit records the audio for the session's current step. Clip writes,
// training and the XP grant succeed or fail together; on failure the step is
// not completed and the session does not advance. If only the final session
// write fails, the step's XP stays granted and a resubmission of the same step
// trains again without granting more.
func (w *Wizard) Submit(ctx context.Context, id, userID string, step int, phrase string, recording []byte) (*StepResult, error) {
	s, unlock, err := w.acquire(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if step != s.Step || step < FirstStep || step >= LastStep {
		return nil, fmt.Errorf("%w: submit step %d while at step %d", core.ErrInvalidTransition, step, s.Step)
	}
	if len(recording) == 0 {
		return nil, core.ErrEmptyAudio
	}
	if _, err := w.Profiles.GetOrCreateProfile(ctx, userID); err != nil {
		return nil, err
	}

	res, err := w.runStep(ctx, s, step, phrase, recording)
	label := strconv.Itoa(step)
	if err != nil {
		metrics.WizardSteps.WithLabelValues(label, metrics.OutcomeError).Inc()
		w.event(s, eventlog.EventWizardStepFailed, map[string]any{"step": step, "error": err.Error()})
		w.log.Warn().Err(err).Str("user_id", userID).Str("role", string(s.Role)).Int("step", step).Msg("wizard step failed")
		return nil, err
	}

	if step == 1 && phrase != "" {
		s.Nickname = phrase
	}
	s.Step = step + 1
	s.UpdatedAt = w.now()
	if err := w.Sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	res.Session = s

	metrics.WizardSteps.WithLabelValues(label, metrics.OutcomeOK).Inc()
	w.event(s, eventlog.EventWizardStepCompleted, map[string]any{"step": step, "xp_granted": res.XPGranted})
	w.log.Info().Str("user_id", userID).Str("role", string(s.Role)).Int("step", step).Bool("xp_granted", res.XPGranted).Msg("wizard step completed")
	return res, nil
}

func (w *Wizard) runStep(ctx context.Context, s *Session, step int, phrase string, recording []byte) (*StepResult, error) {
	var restore func()
	if step == 1 {
		var err error
		restore, err = w.replaceInvocationClips(ctx, s, recording)
		if err != nil {
			return nil, err
		}
	}

	if err := w.Clips.TrainDefaultVoice(ctx, recording); err != nil {
		if restore != nil {
			restore()
		}
		return nil, err
	}

	granted, err := w.Completions.CompleteTrainingStep(ctx, s.UserID, s.Role, step, StepXP, ReasonTrainingStep)
	if err != nil {
		if restore != nil {
			restore()
		}
		return nil, fmt.Errorf("record step completion: %w", err)
	}

	res := &StepResult{Step: step, XPGranted: granted}
	if step == 1 {
		confirmation := w.Speech.Synthesize(ctx, confirmationLine(phrase), "")
		res.Preview = audio.SpliceIntro(recording, confirmation)
	}
	return res, nil
}

var invocationSlots = []core.Slot{core.SlotOpening, core.SlotNickname}

// replaceInvocationClips writes the step-1 recording to the opening and
// nickname slots and returns a func that puts the previous clips back.
func (w *Wizard) replaceInvocationClips(ctx context.Context, s *Session, recording []byte) (func(), error) {
	previous := make(map[core.Slot][]byte, len(invocationSlots))
	for _, slot := range invocationSlots {
		clip, err := w.Clips.GetClip(ctx, s.UserID, s.Role, slot)
		if err != nil {
			return nil, err
		}
		previous[slot] = clip
	}

	restore := func() {
		ctx := context.WithoutCancel(ctx)
		for _, slot := range invocationSlots {
			var err error
			if prev := previous[slot]; prev != nil {
				err = w.Clips.UploadClip(ctx, s.UserID, s.Role, slot, prev)
			} else {
				err = w.Clips.DeleteClip(ctx, s.UserID, s.Role, slot)
			}
			if err != nil {
				w.log.Error().Err(err).Str("user_id", s.UserID).Str("slot", string(slot)).Msg("clip restore failed")
			}
		}
	}

	for _, slot := range invocationSlots {
		if err := w.Clips.UploadClip(ctx, s.UserID, s.Role, slot, recording); err != nil {
			restore()
			return nil, err
		}
	}
	return restore, nil
}

func confirmationLine(phrase string) string {
	if phrase = strings.TrimSpace(phrase); phrase != "" {
		return fmt.Sprintf("Got it. I'll answer to %s.", phrase)
	}
	return "Got it. That's how I'll greet you."
}

// Invite is the shareable payload surfaced at the final step.
type Invite struct {
	Token    string    `json:"token"`
	ShareURL string    `json:"share_url"`
	Role     core.Role `json:"role"`
}

// Invite issues the share token for the session's role. Calling it again in
// the same session returns the same token until Restart.
func (w *Wizard) Invite(ctx context.Context, id, userID string) (*Invite, error) {
	s, unlock, err := w.acquire(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if s.Step != LastStep {
		return nil, fmt.Errorf("%w: invite at step %d", core.ErrInvalidTransition, s.Step)
	}

	token, ok := s.Tokens[s.Role]
	if !ok {
		token, err = w.Tokens.CreateToken(ctx, userID, s.Role)
		if err != nil {
			return nil, err
		}
		if s.Tokens == nil {
			s.Tokens = map[core.Role]string{}
		}
		s.Tokens[s.Role] = token
		s.UpdatedAt = w.now()
		if err := w.Sessions.Put(ctx, s); err != nil {
			return nil, err
		}
		w.event(s, eventlog.EventShareTokenIssued, nil)
	}
	return &Invite{Token: token, ShareURL: w.ShareURL(token), Role: s.Role}, nil
}

// ShareURL builds the guest link for a token.
func (w *Wizard) ShareURL(token string) string {
	return w.shareBaseURL + "/s/" + token
}

func (w *Wizard) event(s *Session, t eventlog.EventType, data map[string]any) {
	if w.Events == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["session_id"] = s.ID
	w.Events.LogAsync(s.UserID, s.Role, t, data)
}

const maxAcquireAttempts = 3

// acquire takes the (user, role) lock for a session and returns the session
// as read under that lock. If the role changed between the read and the lock,
// the lock is dropped and taken again for the new role.
func (w *Wizard) acquire(ctx context.Context, id, userID string) (*Session, func(), error) {
	for range maxAcquireAttempts {
		seen, err := w.Get(ctx, id, userID)
		if err != nil {
			return nil, nil, err
		}
		unlock := w.locks.lock(lockKey(userID, seen.Role))
		s, err := w.Get(ctx, id, userID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if s.Role == seen.Role {
			return s, unlock, nil
		}
		unlock()
	}
	return nil, nil, fmt.Errorf("%w: role changed while acquiring session %s", core.ErrInvalidTransition, id)
}

func lockKey(userID string, role core.Role) string {
	return userID + "/" + string(role)
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
