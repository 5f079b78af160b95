package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lukasbauer/evervoice/internal/conversation"
	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/store"
)

func (r *Router) handleGetPersona(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}

	p, err := r.Memories.LoadPersona(req.Context(), user.ID, role)
	if err != nil {
		r.writeError(w, req, err, "failed to load persona")
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "persona not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (r *Router) handleSavePersona(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}

	var body struct {
		Content        string  `json:"content"`
		MemberNickname *string `json:"member_nickname"`
	}
	if !decodeJSON(w, req, &body) {
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	if err := r.Memories.SavePersona(req.Context(), user.ID, role, body.Content, body.MemberNickname); err != nil {
		r.writeError(w, req, err, "failed to save persona")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleBuildPersona regenerates the persona instructions from the saved
// memory answers.
func (r *Router) handleBuildPersona(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}

	var body struct {
		Nickname string `json:"nickname"`
	}
	if req.ContentLength > 0 && !decodeJSON(w, req, &body) {
		return
	}

	p, err := r.Builder.Build(req.Context(), user.ID, role, body.Nickname)
	if err != nil {
		r.writeError(w, req, err, "failed to build persona")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (r *Router) handleListMemories(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}

	frags, err := r.Memories.ListFragments(req.Context(), user.ID, role)
	if err != nil {
		r.writeError(w, req, err, "failed to list memories")
		return
	}
	if frags == nil {
		frags = []store.MemoryFragment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": frags})
}

// handleSaveMemory stores an answer given as JSON text, or as a multipart
// recording that is transcribed first.
func (r *Router) handleSaveMemory(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}

	var question, answer string
	if isMultipart(req) {
		audio, err := readAudio(w, req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid audio upload"})
			return
		}
		question = req.FormValue("question")
		answer = req.FormValue("answer")
		if answer == "" && len(audio) > 0 {
			if r.Conversation == nil || r.Conversation.Transcriber == nil {
				r.writeError(w, req, core.ErrTranscription, "no transcriber configured")
				return
			}
			answer, err = r.Conversation.Transcriber.Transcribe(req.Context(), audio)
			if err != nil {
				r.writeError(w, req, err, "memory transcription failed")
				return
			}
		}
	} else {
		var body struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		question, answer = body.Question, body.Answer
	}

	if strings.TrimSpace(question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if err := r.Memories.SaveFragment(req.Context(), user.ID, role, question, answer); err != nil {
		r.writeError(w, req, err, "failed to save memory")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "answer": strings.TrimSpace(answer)})
}

func (r *Router) handlePendingQuestions(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}

	qs, err := r.Memories.PendingQuestions(req.Context(), user.ID, role)
	if err != nil {
		r.writeError(w, req, err, "failed to list questions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

func (r *Router) handleSimilarity(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}

	res, err := r.Scorer.Score(req.Context(), user.ID, role)
	if err != nil {
		r.writeError(w, req, err, "failed to score persona")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type chatResponse struct {
	Transcript string `json:"transcript,omitempty"`
	Text       string `json:"text"`
	Audio      []byte `json:"audio,omitempty"`
	Energy     *int   `json:"energy,omitempty"`
}

// readTurn parses a chat turn from JSON {text, history} or a multipart form
// with "audio", "text" and a JSON "history" field.
func readTurn(w http.ResponseWriter, req *http.Request) (text string, audio []byte, history []core.Message, ok bool) {
	if isMultipart(req) {
		var err error
		audio, err = readAudio(w, req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid audio upload"})
			return "", nil, nil, false
		}
		text = req.FormValue("text")
		if h := req.FormValue("history"); h != "" {
			if err := json.Unmarshal([]byte(h), &history); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid history"})
				return "", nil, nil, false
			}
		}
		return text, audio, history, true
	}

	var body struct {
		Text    string         `json:"text"`
		History []core.Message `json:"history"`
	}
	if !decodeJSON(w, req, &body) {
		return "", nil, nil, false
	}
	return body.Text, nil, body.History, true
}

func (r *Router) handleOwnerChat(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}
	text, audio, history, ok := readTurn(w, req)
	if !ok {
		return
	}

	reply, err := r.Conversation.Reply(req.Context(), conversation.Turn{
		OwnerID: user.ID,
		Role:    role,
		Text:    text,
		Audio:   audio,
		History: history,
	})
	if err != nil {
		r.writeError(w, req, err, "chat turn failed")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Transcript: reply.Transcript,
		Text:       reply.Text,
		Audio:      reply.Audio,
		Energy:     reply.Energy,
	})
}
