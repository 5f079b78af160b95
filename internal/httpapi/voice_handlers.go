package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/lukasbauer/evervoice/internal/core"
)

// maxAudioSize bounds uploaded recordings.
const maxAudioSize = 10 * 1024 * 1024

var errMissingAudio = errors.New("audio is required")

// readAudio reads a recording from a multipart "audio" field or, for any other
// content type, from the raw body.
func readAudio(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	req.Body = http.MaxBytesReader(w, req.Body, maxAudioSize+1<<20)
	if isMultipart(req) {
		if err := req.ParseMultipartForm(maxAudioSize); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		f, _, err := req.FormFile("audio")
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxAudioSize))
	}
	return io.ReadAll(io.LimitReader(req.Body, maxAudioSize))
}

func isMultipart(req *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return strings.HasPrefix(mt, "multipart/")
}

func isJSON(req *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return mt == "application/json"
}

func roleParam(w http.ResponseWriter, req *http.Request) (core.Role, bool) {
	role, err := core.ParseRole(req.PathValue("role"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return "", false
	}
	return role, true
}

func writeAudio(w http.ResponseWriter, audio []byte) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(audio)))
	_, _ = w.Write(audio)
}

// handleUploadClip stores a recording in a slot. Tone slots also train the
// default voice.
func (r *Router) handleUploadClip(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}
	slot, err := core.ParseSlot(req.PathValue("slot"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid slot"})
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

	if slot.IsTone() {
		err = r.Assets.RecordTone(req.Context(), user.ID, role, slot, audio)
	} else {
		err = r.Assets.UploadClip(req.Context(), user.ID, role, slot, audio)
	}
	if err != nil {
		r.writeError(w, req, err, "clip upload failed")
		return
	}

	r.log.Info().Str("user_id", user.ID).Str("role", string(role)).Str("slot", string(slot)).Int("bytes", len(audio)).Msg("clip uploaded")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "slot": slot})
}

// handleGetClip returns the stored recording as MP3.
func (r *Router) handleGetClip(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	role, ok := roleParam(w, req)
	if !ok {
		return
	}
	slot, err := core.ParseSlot(req.PathValue("slot"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid slot"})
		return
	}

	audio, err := r.Assets.GetClip(req.Context(), user.ID, role, slot)
	if err != nil {
		r.writeError(w, req, err, "clip read failed")
		return
	}
	if audio == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "clip not found"})
		return
	}
	writeAudio(w, audio)
}

// decodeJSON decodes a JSON request body into v.
func decodeJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return false
	}
	return true
}
