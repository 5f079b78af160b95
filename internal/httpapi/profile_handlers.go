package httpapi

import (
	"net/http"
	"strconv"
)

// handleGetProfile returns the caller's progression profile, provisioning it
// on first access.
func (r *Router) handleGetProfile(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	p, err := r.Ledger.GetOrCreateProfile(req.Context(), user.ID)
	if err != nil {
		r.writeError(w, req, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleListTransactions returns recent audit entries, newest first.
func (r *Router) handleListTransactions(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	limit := 50
	if l := req.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}

	txs, err := r.Ledger.Transactions(req.Context(), user.ID, limit)
	if err != nil {
		r.writeError(w, req, err, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}
