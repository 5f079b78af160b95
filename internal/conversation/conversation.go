// Package conversation runs one persona chat turn: transcribe, prompt, reply,
// speak.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lukasbauer/evervoice/internal/audio"
	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/llm"
	"github.com/lukasbauer/evervoice/internal/memory"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
)

// ReasonChat is the audit reason for the energy an owner spends per turn.
const ReasonChat = "chat"

// maxHistory bounds the turns forwarded to the chat model.
const maxHistory = 20

var ErrEmptyTurn = errors.New("turn has neither text nor audio")

type Ledger interface {
	GetOrCreateProfile(ctx context.Context, userID string) (*store.Profile, error)
	ApplyDelta(ctx context.Context, userID string, xpDelta, energyDelta int, reason string) (*store.Profile, error)
}

type Personas interface {
	LoadPersona(ctx context.Context, userID string, role core.Role) (*store.Persona, error)
	ListFragments(ctx context.Context, userID string, role core.Role) ([]store.MemoryFragment, error)
}

type Clips interface {
	GetClip(ctx context.Context, userID string, role core.Role, slot core.Slot) ([]byte, error)
}

type Speech interface {
	Synthesize(ctx context.Context, text, voiceID string) []byte
}

// Models maps tiers to chat model names.
type Models struct {
	Basic    string
	Advanced string
}

// For returns the model used for a tier.
func (m Models) For(tier core.Tier) string {
	if tier.AtLeast(core.TierAdvanced) {
		return m.Advanced
	}
	return m.Basic
}

// Deps bundles the service's collaborators. Transcriber may be nil, in which
// case audio turns fail with core.ErrTranscription.
type Deps struct {
	Ledger      Ledger
	Personas    Personas
	Clips       Clips
	Chat        core.ChatModel
	Speech      Speech
	Transcriber core.Transcriber
}

type Service struct {
	Deps
	models Models
	log    zerolog.Logger
}

func NewService(deps Deps, models Models, log zerolog.Logger) *Service {
	return &Service{
		Deps:   deps,
		models: models,
		log:    log.With().Str("component", "conversation").Logger(),
	}
}

// Turn is one user utterance addressed to a persona.
type Turn struct {
	OwnerID string
	Role    core.Role
	Text    string
	Audio   []byte
	History []core.Message
	// Guest turns are free; owner turns cost one energy.
	Guest bool
}

// Reply is the persona's answer. Audio is nil when synthesis was unavailable.
type Reply struct {
	Transcript string `json:"transcript,omitempty"`
	Text       string `json:"text"`
	Audio      []byte `json:"-"`
	Energy     *int   `json:"energy,omitempty"`
}

// Reply answers a turn. Energy is only spent once the chat model has replied.
func (s *Service) Reply(ctx context.Context, t Turn) (*Reply, error) {
	out := &Reply{}

	text := strings.TrimSpace(t.Text)
	if text == "" && len(t.Audio) > 0 {
		if s.Transcriber == nil {
			return nil, fmt.Errorf("%w: no transcriber configured", core.ErrTranscription)
		}
		transcript, err := s.Transcriber.Transcribe(ctx, t.Audio)
		if err != nil {
			if !errors.Is(err, core.ErrTranscription) {
				err = fmt.Errorf("%w: %w", core.ErrTranscription, err)
			}
			return nil, err
		}
		text = strings.TrimSpace(transcript)
		out.Transcript = text
	}
	if text == "" {
		return nil, ErrEmptyTurn
	}

	profile, err := s.Ledger.GetOrCreateProfile(ctx, t.OwnerID)
	if err != nil {
		return nil, err
	}
	if !t.Guest && profile.Energy <= 0 {
		return nil, core.ErrOutOfEnergy
	}

	system, err := s.systemPrompt(ctx, t.OwnerID, t.Role)
	if err != nil {
		return nil, err
	}

	history := t.History
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	model := s.models.For(profile.Tier)
	answer, err := s.Chat.Chat(ctx, core.ChatRequest{
		Model:        model,
		SystemPrompt: system,
		History:      history,
		UserText:     text,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", t.OwnerID).Str("model", model).Msg("chat failed")
		return nil, fmt.Errorf("chat: %w", err)
	}
	out.Text = answer

	if !t.Guest {
		p, err := s.Ledger.ApplyDelta(ctx, t.OwnerID, 0, -1, ReasonChat)
		if err != nil {
			return nil, err
		}
		out.Energy = &p.Energy
	}

	out.Audio = s.speak(ctx, t, answer)
	s.log.Debug().
		Str("user_id", t.OwnerID).
		Str("role", string(t.Role)).
		Bool("guest", t.Guest).
		Str("model", model).
		Bool("audio", out.Audio != nil).
		Msg("turn answered")
	return out, nil
}

func (s *Service) systemPrompt(ctx context.Context, userID string, role core.Role) (string, error) {
	persona, err := s.Personas.LoadPersona(ctx, userID, role)
	if err != nil {
		return "", err
	}
	var content, nickname string
	if persona != nil {
		content = persona.Content
		if persona.MemberNickname != nil {
			nickname = *persona.MemberNickname
		}
	}
	if strings.TrimSpace(content) == "" {
		content = llm.DefaultPersonaPrompt(role, nickname)
	}

	frags, err := s.Personas.ListFragments(ctx, userID, role)
	if err != nil {
		return "", err
	}
	var memories []string
	for _, f := range frags {
		if memory.IsSkip(f.AnswerText) {
			continue
		}
		memories = append(memories, fmt.Sprintf("%s: %s", f.QuestionLabel, f.AnswerText))
	}
	return llm.PersonaSystemPrompt(content, memories), nil
}

// speak synthesizes the answer and puts the recorded nickname clip in front.
// Without synthesized speech the reply is text only.
func (s *Service) speak(ctx context.Context, t Turn, answer string) []byte {
	speech := s.Speech.Synthesize(ctx, answer, "")
	if speech == nil {
		return nil
	}
	intro, err := s.Clips.GetClip(ctx, t.OwnerID, t.Role, core.SlotNickname)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", t.OwnerID).Msg("nickname clip unavailable")
		return speech
	}
	return audio.SpliceIntro(intro, speech)
}
