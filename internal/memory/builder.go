package memory

import (
	"context"
	"fmt"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/llm"
	"github.com/lukasbauer/evervoice/internal/store"
)

// Builder condenses memory fragments into persona instructions with the chat
// capability and saves the result.
type Builder struct {
	memories *Service
	chat     core.ChatModel
}

func NewBuilder(memories *Service, chat core.ChatModel) *Builder {
	return &Builder{memories: memories, chat: chat}
}

// Build regenerates the persona for (user, role). With no substantive answers
// the default persona prompt is saved instead of calling the model.
func (b *Builder) Build(ctx context.Context, userID string, role core.Role, nickname string) (*store.Persona, error) {
	frags, err := b.memories.ListFragments(ctx, userID, role)
	if err != nil {
		return nil, err
	}

	var qa [][2]string
	for _, f := range frags {
		if !IsSkip(f.AnswerText) {
			qa = append(qa, [2]string{f.QuestionLabel, f.AnswerText})
		}
	}

	content := llm.DefaultPersonaPrompt(role, nickname)
	if len(qa) > 0 {
		out, err := b.chat.Chat(ctx, core.ChatRequest{
			SystemPrompt: llm.PersonaBuilderPrompt,
			UserText:     llm.BuildPersonaInput(role, nickname, qa),
		})
		if err != nil {
			return nil, fmt.Errorf("build persona: %w", err)
		}
		if out != "" {
			content = out
		}
	}

	var nick *string
	if nickname != "" {
		nick = &nickname
	}
	if err := b.memories.SavePersona(ctx, userID, role, content, nick); err != nil {
		return nil, err
	}
	b.memories.log.Info().Str("user_id", userID).Str("role", string(role)).Int("answers", len(qa)).Msg("persona built")
	return &store.Persona{UserID: userID, Role: role, Content: content, MemberNickname: nick}, nil
}
