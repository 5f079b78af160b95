// Package similarity derives a bounded likeness score from how much of a
// persona has been trained.
package similarity

import (
	"context"
	"fmt"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/memory"
	"github.com/lukasbauer/evervoice/internal/store"
)

const (
	BaseScore       = 50
	MaxScore        = 90
	openingGain     = 10
	toneGain        = 5
	perMemoryGain   = 3
	maxMemoryGain   = 15
	memoriesForFull = 5
)

// Clips reports clip presence.
type Clips interface {
	HasClip(ctx context.Context, userID string, role core.Role, slot core.Slot) (bool, error)
}

// Fragments lists memory fragments.
type Fragments interface {
	ListFragments(ctx context.Context, userID string, role core.Role) ([]store.MemoryFragment, error)
}

// Result is a score with a hint for the next improvement.
type Result struct {
	Score    int    `json:"score"`
	NextHint string `json:"next_hint"`
	NextGain int    `json:"next_gain"`
}

type Scorer struct {
	clips     Clips
	fragments Fragments
}

func NewScorer(clips Clips, fragments Fragments) *Scorer {
	return &Scorer{clips: clips, fragments: fragments}
}

type clipStage struct {
	slot core.Slot
	gain int
	hint string
}

var clipStages = []clipStage{
	{core.SlotOpening, openingGain, "Record your opening phrase in step 1 of the training wizard."},
	{core.SlotToneComfort, toneGain, "Record the comfort tone: read the comforting script aloud."},
	{core.SlotToneEncourage, toneGain, "Record the encourage tone: read the encouraging script aloud."},
	{core.SlotToneHumor, toneGain, "Record the humor tone: read the playful script aloud."},
}

// Score evaluates the stages in order and stops at the first gap. Later stages
// are not evaluated once a gap is found.
func (s *Scorer) Score(ctx context.Context, userID string, role core.Role) (Result, error) {
	score := BaseScore

	for _, st := range clipStages {
		ok, err := s.clips.HasClip(ctx, userID, role, st.slot)
		if err != nil {
			return Result{}, fmt.Errorf("check %s clip: %w", st.slot, err)
		}
		if !ok {
			return Result{Score: score, NextHint: st.hint, NextGain: st.gain}, nil
		}
		score += st.gain
	}

	frags, err := s.fragments.ListFragments(ctx, userID, role)
	if err != nil {
		return Result{}, err
	}
	n := memory.SubstantiveCount(frags)
	score += min(maxMemoryGain, n*perMemoryGain)
	if n < memoriesForFull {
		remaining := memoriesForFull - n
		return Result{
			Score:    score,
			NextHint: fmt.Sprintf("Answer %d more memory %s.", remaining, plural(remaining, "question", "questions")),
			NextGain: perMemoryGain,
		}, nil
	}

	return Result{Score: min(score, MaxScore), NextHint: "Your persona is at the maximum likeness.", NextGain: 0}, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
