package httpapi

import (
	"net/http"
	"strings"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/eventlog"
	"github.com/lukasbauer/evervoice/internal/progression"
)

// handleAdminGrantTier applies a tier purchase confirmed by the billing
// provider. Granting a tier the user already holds is not an error.
func (r *Router) handleAdminGrantTier(w http.ResponseWriter, req *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Tier   string `json:"tier"`
	}
	if !decodeJSON(w, req, &body) {
		return
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	tier, err := core.ParseTier(body.Tier)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tier"})
		return
	}

	result, profile, err := r.Ledger.GrantTier(req.Context(), userID, tier)
	if err != nil {
		r.writeError(w, req, err, "tier grant failed")
		return
	}

	if result == progression.UpgradeSuccess {
		r.EventLog.LogAsync(userID, "", eventlog.EventTierUpgraded, map[string]any{"tier": string(tier)})
		r.Discord.NotifyTierUpgraded(req.Context(), userID, string(tier))
		r.log.Info().Str("user_id", userID).Str("tier", string(tier)).Msg("tier granted")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":  result,
		"profile": profile,
	})
}

// handleAdminSettle runs the daily settlement for a user.
func (r *Router) handleAdminSettle(w http.ResponseWriter, req *http.Request) {
	userID := req.PathValue("userID")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	res, err := r.Ledger.SettleDailyInteraction(req.Context(), userID)
	if err != nil {
		r.writeError(w, req, err, "settlement failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
