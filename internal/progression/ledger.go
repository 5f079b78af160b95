// Package progression owns the XP, energy and tier economy of each user.
package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
)

// Defaults for a lazily provisioned profile.
const (
	DefaultEnergy = 30
	DefaultTier   = core.TierBasic
)

// Audit reasons written by the ledger itself.
const (
	ReasonDailyInteraction = "daily_interaction"
	ReasonTierUpgrade      = "tier_upgrade"
)

// Store is the subset of the record store the ledger needs.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*store.Profile, error)
	EnsureProfile(ctx context.Context, defaults store.Profile) (*store.Profile, error)
	ApplyProfileDelta(ctx context.Context, userID string, xpDelta, energyDelta int, reason string) (*store.Profile, error)
	SettleInteraction(ctx context.Context, userID string, expectedLast, today time.Time, energyDelta int, reason string) (*store.Profile, bool, error)
	UpgradeTier(ctx context.Context, userID string, from, to core.Tier, xpBonus, energyBonus int, reason string) (*store.Profile, bool, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]store.Transaction, error)
}

type Ledger struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewLedger(s Store, log zerolog.Logger) *Ledger {
	return &Ledger{
		store: s,
		log:   log.With().Str("component", "progression").Logger(),
		now:   time.Now,
	}
}

// SetClock replaces the time source. Tests use it to pin "today".
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) today() time.Time {
	return dateOf(l.now())
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GetOrCreateProfile returns the stored profile, provisioning defaults on first
// access. Storage failures are returned, never masked with defaults.
func (l *Ledger) GetOrCreateProfile(ctx context.Context, userID string) (*store.Profile, error) {
	p, err := l.store.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	p, err = l.store.EnsureProfile(ctx, store.Profile{
		UserID:              userID,
		Energy:              DefaultEnergy,
		Tier:                DefaultTier,
		LastInteractionDate: l.today(),
	})
	if err != nil {
		return nil, fmt.Errorf("provision profile: %w", err)
	}
	l.log.Info().Str("user_id", userID).Msg("profile provisioned")
	return p, nil
}

// ApplyDelta adds the deltas to the user's stats, clamping each at zero, and
// records an audit entry when reason is non-empty and a delta is non-zero.
func (l *Ledger) ApplyDelta(ctx context.Context, userID string, xpDelta, energyDelta int, reason string) (*store.Profile, error) {
	p, err := l.store.ApplyProfileDelta(ctx, userID, xpDelta, energyDelta, reason)
	if errors.Is(err, core.ErrNotFound) {
		if _, err = l.GetOrCreateProfile(ctx, userID); err != nil {
			return nil, err
		}
		p, err = l.store.ApplyProfileDelta(ctx, userID, xpDelta, energyDelta, reason)
	}
	if err != nil {
		return nil, fmt.Errorf("apply delta: %w", err)
	}
	l.log.Debug().
		Str("user_id", userID).
		Int("xp_delta", xpDelta).
		Int("energy_delta", energyDelta).
		Str("reason", reason).
		Msg("delta applied")
	return p, nil
}

// SettlementResult describes the outcome of a daily settlement.
type SettlementResult struct {
	Message        string         `json:"message"`
	Settled        bool           `json:"settled"`
	PenaltyApplied bool           `json:"penalty_applied"`
	DaysMissed     int            `json:"days_missed"`
	EnergyDelta    int            `json:"energy_delta"`
	Profile        *store.Profile `json:"profile,omitempty"`
}

const alreadySettled = "already settled"

// SettleDailyInteraction applies the upkeep rule at most once per calendar day:
// a visit grants one energy and each missed day beyond the first costs one.
func (l *Ledger) SettleDailyInteraction(ctx context.Context, userID string) (SettlementResult, error) {
	p, err := l.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return SettlementResult{}, err
	}

	today := l.today()
	last := dateOf(p.LastInteractionDate)
	if !last.Before(today) {
		return SettlementResult{Message: alreadySettled, Profile: p}, nil
	}

	days := int(today.Sub(last).Hours() / 24)
	missed := max(0, days-1)
	delta := 1 - missed

	updated, ok, err := l.store.SettleInteraction(ctx, userID, p.LastInteractionDate, today, delta, ReasonDailyInteraction)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settle interaction: %w", err)
	}
	if !ok {
		// Another request settled today first.
		return SettlementResult{Message: alreadySettled, Profile: p}, nil
	}

	res := SettlementResult{
		Settled:        true,
		PenaltyApplied: missed > 0,
		DaysMissed:     missed,
		EnergyDelta:    delta,
		Profile:        updated,
		Message:        settlementMessage(missed, delta),
	}
	l.log.Info().
		Str("user_id", userID).
		Int("days_missed", missed).
		Int("energy_delta", delta).
		Msg("daily interaction settled")
	return res, nil
}

func settlementMessage(missed, delta int) string {
	if missed == 0 {
		return "Welcome back! +1 energy for today's visit."
	}
	unit := "days"
	if missed == 1 {
		unit = "day"
	}
	return fmt.Sprintf("Welcome back! +1 energy for today's visit, -%d for %d missed %s (net %+d).", missed, missed, unit, delta)
}

// Transactions returns recent audit entries, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]store.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.store.ListTransactions(ctx, userID, limit)
}
