package progression

import (
	"context"
	"fmt"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/store"
)

// UpgradeResult is the outcome of a tier upgrade request.
type UpgradeResult string

const (
	UpgradeSuccess         UpgradeResult = "success"
	UpgradeAlreadyUpgraded UpgradeResult = "already_upgraded"
	UpgradeFailed          UpgradeResult = "failed"
)

// Bonus is granted once when a tier is first reached.
type Bonus struct {
	Energy int `json:"energy"`
	XP     int `json:"xp"`
}

// Bonuses is the grant table used by GrantTier.
var Bonuses = map[core.Tier]Bonus{
	core.TierIntermediate: {Energy: 50, XP: 10},
	core.TierAdvanced:     {Energy: 150, XP: 30},
	core.TierEternal:      {Energy: 500, XP: 100},
}

// maxUpgradeAttempts bounds retries when a concurrent writer changes the tier
// between our read and the conditional update.
const maxUpgradeAttempts = 3

// UpgradeTier moves the user to newTier and grants the bonuses, unless the user
// already holds newTier or higher.
func (l *Ledger) UpgradeTier(ctx context.Context, userID string, newTier core.Tier, energyBonus, xpBonus int) (UpgradeResult, *store.Profile, error) {
	if newTier.Rank() < 0 {
		return UpgradeFailed, nil, fmt.Errorf("%w: %q", core.ErrInvalidTier, newTier)
	}

	for attempt := 0; attempt < maxUpgradeAttempts; attempt++ {
		p, err := l.GetOrCreateProfile(ctx, userID)
		if err != nil {
			return UpgradeFailed, nil, err
		}
		if p.Tier.AtLeast(newTier) {
			return UpgradeAlreadyUpgraded, p, nil
		}

		updated, ok, err := l.store.UpgradeTier(ctx, userID, p.Tier, newTier, xpBonus, energyBonus, ReasonTierUpgrade+":"+string(newTier))
		if err != nil {
			l.log.Error().Err(err).Str("user_id", userID).Str("tier", string(newTier)).Msg("tier upgrade failed")
			return UpgradeFailed, nil, fmt.Errorf("upgrade tier: %w", err)
		}
		if ok {
			l.log.Info().
				Str("user_id", userID).
				Str("from", string(p.Tier)).
				Str("to", string(newTier)).
				Msg("tier upgraded")
			return UpgradeSuccess, updated, nil
		}
	}
	return UpgradeFailed, nil, fmt.Errorf("upgrade tier: %w: tier kept changing", core.ErrStorageWrite)
}

// GrantTier upgrades using the standard bonus table.
func (l *Ledger) GrantTier(ctx context.Context, userID string, tier core.Tier) (UpgradeResult, *store.Profile, error) {
	b := Bonuses[tier]
	return l.UpgradeTier(ctx, userID, tier, b.Energy, b.XP)
}
