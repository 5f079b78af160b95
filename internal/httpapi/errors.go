package httpapi

import (
	"errors"
	"net/http"

	"github.com/lukasbauer/evervoice/internal/conversation"
	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/memory"
	"github.com/lukasbauer/evervoice/internal/share"
)

// statusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrInvalidRole):
		return http.StatusBadRequest, "invalid role"
	case errors.Is(err, core.ErrInvalidSlot):
		return http.StatusBadRequest, "invalid slot"
	case errors.Is(err, core.ErrInvalidTier):
		return http.StatusBadRequest, "invalid tier"
	case errors.Is(err, core.ErrInvalidPlatform):
		return http.StatusBadRequest, "platform must be 'ios' or 'android'"
	case errors.Is(err, core.ErrEmptyAudio):
		return http.StatusBadRequest, "audio is required"
	case errors.Is(err, memory.ErrEmptyAnswer):
		return http.StatusBadRequest, "answer is required"
	case errors.Is(err, conversation.ErrEmptyTurn):
		return http.StatusBadRequest, "text or audio is required"
	case errors.Is(err, share.ErrInvalidRating):
		return http.StatusBadRequest, "rating must be between 1 and 5"
	case errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict, "invalid step transition"
	case errors.Is(err, share.ErrAlreadyRated):
		return http.StatusConflict, "already rated"
	case errors.Is(err, core.ErrOutOfEnergy):
		return http.StatusPaymentRequired, "out of energy"
	case errors.Is(err, core.ErrSessionClosed):
		return http.StatusGone, "session closed"
	case errors.Is(err, core.ErrTranscription):
		return http.StatusUnprocessableEntity, "could not transcribe audio"
	case errors.Is(err, core.ErrTrain), errors.Is(err, core.ErrClone), errors.Is(err, core.ErrSynthesis):
		return http.StatusBadGateway, "voice provider unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError writes the mapped status and reports server-side failures.
func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error, msg string) {
	status, text := statusFor(err)
	if status >= http.StatusInternalServerError {
		r.log.Error().Err(err).Str("path", req.URL.Path).Msg(msg)
		if status == http.StatusInternalServerError {
			captureError(req, err, msg)
		}
	} else {
		r.log.Debug().Err(err).Str("path", req.URL.Path).Msg(msg)
	}
	writeJSON(w, status, map[string]string{"error": text})
}
