package httpapi

import (
	"net/http"

	"github.com/lukasbauer/evervoice/internal/store"
)

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// handlePushRegister stores a device token so the owner hears about guest
// ratings and visit settlements.
func (r *Router) handlePushRegister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body pushTokenRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}
	platform, err := store.ParsePlatform(body.Platform)
	if err != nil {
		r.writeError(w, req, err, "register push token")
		return
	}

	if err := r.Records.RegisterPushToken(req.Context(), user.ID, body.Token, platform); err != nil {
		r.writeError(w, req, err, "register push token")
		return
	}

	r.log.Info().Str("user_id", user.ID).Str("platform", string(platform)).Msg("device registered")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (r *Router) handlePushUnregister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body pushTokenRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}

	if err := r.Records.UnregisterPushToken(req.Context(), body.Token); err != nil {
		r.writeError(w, req, err, "unregister push token")
		return
	}

	r.log.Info().Str("user_id", user.ID).Msg("device unregistered")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
