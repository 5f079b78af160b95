package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/wizard"
)

type wizardResponse struct {
	Session *wizard.Session `json:"session"`
	Prompt  wizard.StepInfo `json:"prompt"`
	Invite  *wizard.Invite  `json:"invite,omitempty"`
}

// respondWizard writes the session with its current prompt. At the final step
// the share invite is issued (or reused) and included.
func (r *Router) respondWizard(w http.ResponseWriter, req *http.Request, s *wizard.Session) {
	prompt, _ := wizard.Info(s.Step)
	resp := wizardResponse{Session: s, Prompt: prompt}
	if s.Step == wizard.LastStep {
		invite, err := r.Wizard.Invite(req.Context(), s.ID, s.UserID)
		if err != nil {
			r.writeError(w, req, err, "failed to issue share token")
			return
		}
		resp.Invite = invite
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handleStartWizard(w http.ResponseWriter, req *http.Request) {
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

	s, err := r.Wizard.Start(req.Context(), user.ID, role)
	if err != nil {
		r.writeError(w, req, err, "failed to start wizard")
		return
	}
	prompt, _ := wizard.Info(s.Step)
	writeJSON(w, http.StatusCreated, wizardResponse{Session: s, Prompt: prompt})
}

func (r *Router) handleGetWizard(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	s, err := r.Wizard.Get(req.Context(), req.PathValue("id"), user.ID)
	if err != nil {
		r.writeError(w, req, err, "failed to load wizard session")
		return
	}
	r.respondWizard(w, req, s)
}

func (r *Router) handleSelectWizardRole(w http.ResponseWriter, req *http.Request) {
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

	s, err := r.Wizard.SelectRole(req.Context(), req.PathValue("id"), user.ID, role)
	if err != nil {
		r.writeError(w, req, err, "failed to select role")
		return
	}
	r.respondWizard(w, req, s)
}

type stepResponse struct {
	wizardResponse
	CompletedStep int    `json:"completed_step"`
	XPGranted     bool   `json:"xp_granted"`
	Preview       []byte `json:"preview,omitempty"`
}

// handleSubmitStep accepts the recording for the current step as multipart
// ("audio", optional "phrase") or a raw audio body with ?phrase=.
func (r *Router) handleSubmitStep(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	step, err := strconv.Atoi(req.PathValue("step"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid step"})
		return
	}

	audio, err := readAudio(w, req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid audio upload"})
		return
	}
	phrase := req.URL.Query().Get("phrase")
	if isMultipart(req) {
		phrase = req.FormValue("phrase")
	}

	res, err := r.Wizard.Submit(req.Context(), req.PathValue("id"), user.ID, step, phrase, audio)
	if err != nil {
		r.writeError(w, req, err, "wizard step failed")
		return
	}

	prompt, _ := wizard.Info(res.Session.Step)
	resp := stepResponse{
		wizardResponse: wizardResponse{Session: res.Session, Prompt: prompt},
		CompletedStep:  res.Step,
		XPGranted:      res.XPGranted,
		Preview:        res.Preview,
	}
	if res.Session.Step == wizard.LastStep {
		invite, err := r.Wizard.Invite(req.Context(), res.Session.ID, user.ID)
		if err != nil {
			r.writeError(w, req, err, "failed to issue share token")
			return
		}
		resp.Invite = invite
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handleWizardNext(w http.ResponseWriter, req *http.Request) {
	r.wizardTransition(w, req, r.Wizard.Next)
}

func (r *Router) handleWizardBack(w http.ResponseWriter, req *http.Request) {
	r.wizardTransition(w, req, r.Wizard.Back)
}

func (r *Router) handleWizardRestart(w http.ResponseWriter, req *http.Request) {
	r.wizardTransition(w, req, r.Wizard.Restart)
}

type transitionFunc func(ctx context.Context, id, userID string) (*wizard.Session, error)

func (r *Router) wizardTransition(w http.ResponseWriter, req *http.Request, fn transitionFunc) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	s, err := fn(req.Context(), req.PathValue("id"), user.ID)
	if err != nil {
		r.writeError(w, req, err, "wizard transition failed")
		return
	}
	r.respondWizard(w, req, s)
}
