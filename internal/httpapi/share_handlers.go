package httpapi

import (
	"net/http"
	"strings"

	"github.com/lukasbauer/evervoice/internal/conversation"
	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/eventlog"
)

// handleCreateShare mints a share token outside the wizard.
func (r *Router) handleCreateShare(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, req, &body) {
		return
	}
	role, err := core.ParseRole(body.Role)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return
	}

	token, err := r.Tokens.CreateToken(req.Context(), user.ID, role)
	if err != nil {
		r.writeError(w, req, err, "failed to create share token")
		return
	}
	r.EventLog.LogAsync(user.ID, role, eventlog.EventShareTokenIssued, nil)
	writeJSON(w, http.StatusCreated, map[string]string{
		"token":     token,
		"share_url": r.Wizard.ShareURL(token),
		"role":      string(role),
	})
}

// handleStartGuest resolves a share token and opens a guest session. The
// response carries the guest token used on every other guest route.
func (r *Router) handleStartGuest(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, req, &body) {
		return
	}
	token := strings.TrimSpace(body.Token)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}

	s, _, err := r.Guests.Start(req.Context(), token)
	if err != nil {
		r.writeError(w, req, err, "failed to start guest session")
		return
	}

	guestToken, expiresAt, err := r.generateGuestJWT(s.ID)
	if err != nil {
		_ = r.Guests.Abandon(req.Context(), s.ID)
		r.writeError(w, req, err, "failed to issue guest token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":  s.ID,
		"role":        s.Role,
		"guest_token": guestToken,
		"expires_at":  expiresAt,
	})
}

// handleGuestVoice clones the guest's recording and returns the role-swap
// preview.
func (r *Router) handleGuestVoice(w http.ResponseWriter, req *http.Request) {
	guest := getAuthGuest(req.Context())
	if guest == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	audio, err := readAudio(w, req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid audio upload"})
		return
	}
	if len(audio) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMissingAudio.Error()})
		return
	}

	preview, err := r.Guests.CloneVoice(req.Context(), guest.SessionID, audio)
	if err != nil {
		r.writeError(w, req, err, "guest voice clone failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voice_id": preview.VoiceID,
		"preview":  preview.Audio,
	})
}

// handleGuestChat talks to the owner's persona. Guest turns cost no energy.
func (r *Router) handleGuestChat(w http.ResponseWriter, req *http.Request) {
	guest := getAuthGuest(req.Context())
	if guest == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	s, err := r.Guests.Session(guest.SessionID)
	if err != nil {
		r.writeError(w, req, err, "guest session unavailable")
		return
	}
	text, audio, history, ok := readTurn(w, req)
	if !ok {
		return
	}

	reply, err := r.Conversation.Reply(req.Context(), conversation.Turn{
		OwnerID: s.OwnerID,
		Role:    s.Role,
		Text:    text,
		Audio:   audio,
		History: history,
		Guest:   true,
	})
	if err != nil {
		r.writeError(w, req, err, "guest chat turn failed")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Transcript: reply.Transcript,
		Text:       reply.Text,
		Audio:      reply.Audio,
	})
}

func (r *Router) handleGuestRate(w http.ResponseWriter, req *http.Request) {
	guest := getAuthGuest(req.Context())
	if guest == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		Stars int `json:"stars"`
	}
	if !decodeJSON(w, req, &body) {
		return
	}

	if _, err := r.Guests.Rate(req.Context(), guest.SessionID, body.Stars); err != nil {
		r.writeError(w, req, err, "guest rating failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleGuestConvert hands the guest's cloned voice to the newly signed-in
// account and ends the guest session.
func (r *Router) handleGuestConvert(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	guest := getAuthGuest(req.Context())
	if user == nil || guest == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	s, err := r.Guests.Session(guest.SessionID)
	if err != nil {
		r.writeError(w, req, err, "guest session unavailable")
		return
	}

	voiceID, err := r.Guests.Convert(req.Context(), guest.SessionID, user.ID)
	if err != nil {
		r.writeError(w, req, err, "guest conversion failed")
		return
	}
	r.Discord.NotifyGuestConverted(req.Context(), s.OwnerID, user.ID, string(s.Role))

	r.log.Info().Str("session_id", guest.SessionID).Str("user_id", user.ID).Bool("voice", voiceID != "").Msg("guest converted")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "voice_id": voiceID})
}

func (r *Router) handleGuestAbandon(w http.ResponseWriter, req *http.Request) {
	guest := getAuthGuest(req.Context())
	if guest == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if err := r.Guests.Abandon(req.Context(), guest.SessionID); err != nil {
		r.writeError(w, req, err, "guest abandon failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
