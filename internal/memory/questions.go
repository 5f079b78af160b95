package memory

import "github.com/lukasbauer/evervoice/internal/core"

// Question is one memory prompt. Label is the stable key stored with answers.
type Question struct {
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

var commonQuestions = []Question{
	{Label: "first_memory", Prompt: "What is the first memory of them that comes to mind?"},
	{Label: "catchphrase", Prompt: "Is there a phrase or saying they used all the time?"},
	{Label: "comfort", Prompt: "How did they comfort you when things went wrong?"},
	{Label: "laughter", Prompt: "What always made them laugh?"},
	{Label: "favorite_food", Prompt: "What did they love to eat or cook?"},
	{Label: "advice", Prompt: "What is the best advice they ever gave you?"},
}

var roleQuestions = map[core.Role][]Question{
	core.RoleWife: {
		{Label: "how_we_met", Prompt: "How did the two of you meet?"},
		{Label: "anniversary", Prompt: "How did you usually spend your anniversary?"},
	},
	core.RoleHusband: {
		{Label: "how_we_met", Prompt: "How did the two of you meet?"},
		{Label: "anniversary", Prompt: "How did you usually spend your anniversary?"},
	},
	core.RoleSon: {
		{Label: "childhood", Prompt: "What was he like as a child?"},
		{Label: "proud_moment", Prompt: "When were you proudest of him?"},
	},
	core.RoleDaughter: {
		{Label: "childhood", Prompt: "What was she like as a child?"},
		{Label: "proud_moment", Prompt: "When were you proudest of her?"},
	},
	core.RoleFriend: {
		{Label: "how_we_met", Prompt: "How did your friendship begin?"},
		{Label: "adventure", Prompt: "What was the best trip or adventure you shared?"},
	},
	core.RoleGrandson: {
		{Label: "visits", Prompt: "What did you do together when he visited?"},
		{Label: "proud_moment", Prompt: "When were you proudest of him?"},
	},
}

// QuestionsFor returns the common questions followed by the role-specific ones.
func QuestionsFor(role core.Role) []Question {
	out := make([]Question, 0, len(commonQuestions)+len(roleQuestions[role]))
	out = append(out, commonQuestions...)
	return append(out, roleQuestions[role]...)
}
