// Package memory keeps the memory fragments and persona summaries of each
// (user, role) persona.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
)

// SkipAnswer marks a prompt the user explicitly declined. It counts as
// answered but never as substantive.
const SkipAnswer = "[skip]"

var ErrEmptyAnswer = errors.New("answer is empty")

// Store is the subset of the record store used for memories and personas.
type Store interface {
	UpsertPersona(ctx context.Context, p store.Persona) error
	GetPersona(ctx context.Context, userID string, role core.Role) (*store.Persona, error)
	InsertMemory(ctx context.Context, m store.MemoryFragment) error
	ListMemories(ctx context.Context, userID string, role core.Role) ([]store.MemoryFragment, error)
}

type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(s Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log.With().Str("component", "memory").Logger()}
}

// SaveFragment appends an answer. Re-answering a question adds a second fragment.
func (s *Service) SaveFragment(ctx context.Context, userID string, role core.Role, question, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrEmptyAnswer
	}
	err := s.store.InsertMemory(ctx, store.MemoryFragment{
		UserID:        userID,
		Role:          role,
		QuestionLabel: strings.TrimSpace(question),
		AnswerText:    answer,
	})
	if err != nil {
		return fmt.Errorf("save fragment: %w", err)
	}
	s.log.Debug().Str("user_id", userID).Str("role", string(role)).Str("question", question).Msg("fragment saved")
	return nil
}

// ListFragments returns fragments in insertion order.
func (s *Service) ListFragments(ctx context.Context, userID string, role core.Role) ([]store.MemoryFragment, error) {
	frags, err := s.store.ListMemories(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	return frags, nil
}

// SavePersona upserts the persona summary for (user, role).
func (s *Service) SavePersona(ctx context.Context, userID string, role core.Role, content string, nickname *string) error {
	err := s.store.UpsertPersona(ctx, store.Persona{
		UserID:         userID,
		Role:           role,
		Content:        content,
		MemberNickname: nickname,
	})
	if err != nil {
		return fmt.Errorf("save persona: %w", err)
	}
	return nil
}

// LoadPersona returns the persona summary, or nil when none has been saved.
func (s *Service) LoadPersona(ctx context.Context, userID string, role core.Role) (*store.Persona, error) {
	p, err := s.store.GetPersona(ctx, userID, role)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}
	return p, nil
}

// IsSkip reports whether an answer is the skip marker.
func IsSkip(answer string) bool {
	return strings.TrimSpace(answer) == SkipAnswer
}

// SubstantiveCount counts fragments that are not skips.
func SubstantiveCount(frags []store.MemoryFragment) int {
	n := 0
	for _, f := range frags {
		if !IsSkip(f.AnswerText) {
			n++
		}
	}
	return n
}

// PendingQuestions returns the bank questions for role that have no fragment
// yet. Skipped questions count as answered.
func (s *Service) PendingQuestions(ctx context.Context, userID string, role core.Role) ([]Question, error) {
	frags, err := s.ListFragments(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	answered := make(map[string]bool, len(frags))
	for _, f := range frags {
		answered[f.QuestionLabel] = true
	}

	var pending []Question
	for _, q := range QuestionsFor(role) {
		if !answered[q.Label] {
			pending = append(pending, q)
		}
	}
	return pending, nil
}
