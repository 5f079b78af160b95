package progression

import (
	"context"
	"testing"
	"time"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	l := NewLedger(mem, zerolog.Nop())
	l.SetClock(func() time.Time { return fixedNow })
	return l, mem
}

func seedProfile(t *testing.T, mem *store.Memory, userID string, last time.Time, energy int) {
	t.Helper()
	_, err := mem.EnsureProfile(context.Background(), store.Profile{
		UserID:              userID,
		Energy:              energy,
		Tier:                core.TierBasic,
		LastInteractionDate: last,
	})
	require.NoError(t, err)
}

func TestGetOrCreateProfileDefaults(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	p, err := l.GetOrCreateProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.XP)
	assert.Equal(t, DefaultEnergy, p.Energy)
	assert.Equal(t, core.TierBasic, p.Tier)
	assert.Equal(t, dateOf(fixedNow), p.LastInteractionDate)

	_, err = l.ApplyDelta(ctx, "u1", 4, 0, "test")
	require.NoError(t, err)
	again, err := l.GetOrCreateProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, again.XP, "existing profile must not be reset")
}

func TestApplyDeltaNeverNegative(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	deltas := []struct{ xp, energy int }{
		{-1, -1}, {-1000, 0}, {0, -31}, {5, -1 << 20}, {-7, 3},
	}
	for _, d := range deltas {
		p, err := l.ApplyDelta(ctx, "u1", d.xp, d.energy, "adjust")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.XP, 0)
		assert.GreaterOrEqual(t, p.Energy, 0)
	}
}

func TestApplyDeltaAuditRules(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ApplyDelta(ctx, "u1", 2, 3, "both")
	require.NoError(t, err)
	_, err = l.ApplyDelta(ctx, "u1", 0, 0, "nothing")
	require.NoError(t, err)
	_, err = l.ApplyDelta(ctx, "u1", 1, 0, "")
	require.NoError(t, err)

	txs, err := l.Transactions(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 2, txs[0].XPDelta)
	assert.Equal(t, 3, txs[0].EnergyDelta)
	assert.Equal(t, "both", txs[0].Reason)
}

func TestSettleDailyInteractionSameDayIsNoop(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	seedProfile(t, mem, "u1", dateOf(fixedNow).AddDate(0, 0, -1), 10)

	first, err := l.SettleDailyInteraction(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Settled)
	assert.False(t, first.PenaltyApplied)
	assert.Equal(t, 11, first.Profile.Energy)

	second, err := l.SettleDailyInteraction(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, second.Settled)
	assert.Equal(t, "already settled", second.Message)
	assert.Equal(t, 11, second.Profile.Energy)

	txs, err := l.Transactions(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "no duplicate audit entry")
}

func TestSettleDailyInteractionPenalty(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	seedProfile(t, mem, "u1", dateOf(fixedNow).AddDate(0, 0, -3), 10)

	res, err := l.SettleDailyInteraction(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.PenaltyApplied)
	assert.Equal(t, 2, res.DaysMissed)
	assert.Equal(t, -1, res.EnergyDelta)
	assert.Equal(t, 9, res.Profile.Energy)
	assert.Equal(t, dateOf(fixedNow), res.Profile.LastInteractionDate)
	assert.Contains(t, res.Message, "2 missed days")
}

func TestSettleDailyInteractionClampsEnergy(t *testing.T) {
	l, mem := newTestLedger(t)
	seedProfile(t, mem, "u1", dateOf(fixedNow).AddDate(0, 0, -40), 3)

	res, err := l.SettleDailyInteraction(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Profile.Energy)
}

func TestUpgradeTierOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	res, p, err := l.UpgradeTier(ctx, "u1", core.TierAdvanced, 150, 30)
	require.NoError(t, err)
	assert.Equal(t, UpgradeSuccess, res)
	assert.Equal(t, core.TierAdvanced, p.Tier)
	assert.Equal(t, DefaultEnergy+150, p.Energy)
	assert.Equal(t, 30, p.XP)

	for _, tier := range []core.Tier{core.TierAdvanced, core.TierIntermediate, core.TierBasic} {
		res, p, err = l.UpgradeTier(ctx, "u1", tier, 150, 30)
		require.NoError(t, err)
		assert.Equal(t, UpgradeAlreadyUpgraded, res, "tier %s", tier)
		assert.Equal(t, DefaultEnergy+150, p.Energy)
		assert.Equal(t, 30, p.XP)
	}
}

func TestGrantTierUsesBonusTable(t *testing.T) {
	l, _ := newTestLedger(t)

	res, p, err := l.GrantTier(context.Background(), "u1", core.TierEternal)
	require.NoError(t, err)
	assert.Equal(t, UpgradeSuccess, res)
	assert.Equal(t, DefaultEnergy+500, p.Energy)
	assert.Equal(t, 100, p.XP)
}

func TestUpgradeTierRejectsUnknownTier(t *testing.T) {
	l, _ := newTestLedger(t)
	res, _, err := l.UpgradeTier(context.Background(), "u1", core.Tier("platinum"), 1, 1)
	assert.Equal(t, UpgradeFailed, res)
	assert.ErrorIs(t, err, core.ErrInvalidTier)
}
