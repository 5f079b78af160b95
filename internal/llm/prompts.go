package llm

import (
	"fmt"
	"strings"

	"github.com/lukasbauer/evervoice/internal/core"
)

// voiceGuardrails is prepended to every persona prompt. Replies are spoken
// aloud, so they must be short and free of markup.
const voiceGuardrails = `STYLE RULES:
- Answer in 1-3 short sentences, the way you would speak on the phone.
- No lists, no markdown, no emoji.
- Never say you are an AI or a model. Stay in character.
- If you do not know something about your shared past, say so warmly instead of inventing details.`

var roleDescriptions = map[core.Role]string{
	core.RoleWife:     "their wife",
	core.RoleHusband:  "their husband",
	core.RoleSon:      "their son",
	core.RoleDaughter: "their daughter",
	core.RoleFriend:   "a close friend",
	core.RoleGrandson: "their grandson",
	core.RoleOthers:   "someone close to them",
}

// DefaultPersonaPrompt is used when no persona summary has been built yet.
func DefaultPersonaPrompt(role core.Role, nickname string) string {
	who := roleDescriptions[role]
	if who == "" {
		who = roleDescriptions[core.RoleOthers]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are speaking as %s, in a warm and familiar voice.", who)
	if nickname != "" {
		fmt.Fprintf(&b, " You call the person you talk to %q.", nickname)
	}
	return b.String()
}

// PersonaSystemPrompt combines guardrails, the persona content and the
// background memories into the system prompt for a conversation turn.
func PersonaSystemPrompt(content string, memories []string) string {
	var b strings.Builder
	b.WriteString(voiceGuardrails)
	b.WriteString("\n\n")
	b.WriteString(content)
	if len(memories) > 0 {
		b.WriteString("\n\nSHARED MEMORIES (use naturally, do not recite):\n")
		for _, m := range memories {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// PersonaBuilderPrompt asks the model to condense memory answers into persona
// instructions.
const PersonaBuilderPrompt = `You write character instructions for a voice companion that speaks as a real person.
You will receive the relationship, an optional nickname and a list of question/answer pairs written by the family member.
Write 5-10 sentences in second person ("You are...", "You often...") describing personality, speech habits, shared memories and how to address the listener.
Use only facts from the answers. Return plain text only.`

// BuildPersonaInput formats the builder's user message.
func BuildPersonaInput(role core.Role, nickname string, qa [][2]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relationship: %s\n", role)
	if nickname != "" {
		fmt.Fprintf(&b, "Nickname used for the listener: %s\n", nickname)
	}
	b.WriteString("\nAnswers:\n")
	for _, pair := range qa {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", pair[0], pair[1])
	}
	return b.String()
}
