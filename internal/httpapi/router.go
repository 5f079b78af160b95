package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lukasbauer/evervoice/internal/conversation"
	"github.com/lukasbauer/evervoice/internal/eventlog"
	"github.com/lukasbauer/evervoice/internal/memory"
	"github.com/lukasbauer/evervoice/internal/metrics"
	"github.com/lukasbauer/evervoice/internal/notifications"
	"github.com/lukasbauer/evervoice/internal/progression"
	"github.com/lukasbauer/evervoice/internal/share"
	"github.com/lukasbauer/evervoice/internal/similarity"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/lukasbauer/evervoice/internal/voice"
	"github.com/lukasbauer/evervoice/internal/wizard"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	PublicBaseURL string

	// JWT authentication. User tokens are issued by the identity provider
	// with the shared secret; guest tokens are issued here.
	JWTSecret     string
	GuestTokenTTL time.Duration

	// Admin access (X-Admin-Key header).
	AdminAPIKey string
}

// Services are the domain components the router exposes.
type Services struct {
	Records      store.Records
	Ledger       *progression.Ledger
	Memories     *memory.Service
	Builder      *memory.Builder
	Assets       *voice.Assets
	Scorer       *similarity.Scorer
	Conversation *conversation.Service
	Wizard       *wizard.Wizard
	Tokens       *share.Tokens
	Guests       *share.Guests
	EventLog     *eventlog.Logger
	Discord      *notifications.Discord
}

type Router struct {
	cfg RouterConfig
	Services
	log zerolog.Logger
	mux *http.ServeMux
}

func NewRouter(cfg RouterConfig, svc Services, log zerolog.Logger) http.Handler {
	if cfg.GuestTokenTTL <= 0 {
		cfg.GuestTokenTTL = 12 * time.Hour
	}
	r := &Router{
		cfg:      cfg,
		Services: svc,
		log:      log.With().Str("component", "http").Logger(),
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withMetrics(withSentryRecovery(withCORS(r.mux)))
}

func (r *Router) routes() {
	// Health and metrics
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	// Profile (protected)
	r.mux.HandleFunc("GET /api/profile", r.withAuth(r.handleGetProfile))
	r.mux.HandleFunc("GET /api/profile/transactions", r.withAuth(r.handleListTransactions))

	// Personas (protected)
	r.mux.HandleFunc("GET /api/personas/{role}", r.withAuth(r.handleGetPersona))
	r.mux.HandleFunc("PUT /api/personas/{role}", r.withAuth(r.handleSavePersona))
	r.mux.HandleFunc("POST /api/personas/{role}/build", r.withAuth(r.handleBuildPersona))
	r.mux.HandleFunc("GET /api/personas/{role}/memories", r.withAuth(r.handleListMemories))
	r.mux.HandleFunc("POST /api/personas/{role}/memories", r.withAuth(r.handleSaveMemory))
	r.mux.HandleFunc("GET /api/personas/{role}/questions", r.withAuth(r.handlePendingQuestions))
	r.mux.HandleFunc("PUT /api/personas/{role}/clips/{slot}", r.withAuth(r.handleUploadClip))
	r.mux.HandleFunc("GET /api/personas/{role}/clips/{slot}", r.withAuth(r.handleGetClip))
	r.mux.HandleFunc("GET /api/personas/{role}/similarity", r.withAuth(r.handleSimilarity))
	r.mux.HandleFunc("POST /api/personas/{role}/chat", r.withAuth(r.handleOwnerChat))

	// Training wizard (protected)
	r.mux.HandleFunc("POST /api/wizard/sessions", r.withAuth(r.handleStartWizard))
	r.mux.HandleFunc("GET /api/wizard/sessions/{id}", r.withAuth(r.handleGetWizard))
	r.mux.HandleFunc("POST /api/wizard/sessions/{id}/role", r.withAuth(r.handleSelectWizardRole))
	r.mux.HandleFunc("POST /api/wizard/sessions/{id}/steps/{step}", r.withAuth(r.handleSubmitStep))
	r.mux.HandleFunc("POST /api/wizard/sessions/{id}/next", r.withAuth(r.handleWizardNext))
	r.mux.HandleFunc("POST /api/wizard/sessions/{id}/back", r.withAuth(r.handleWizardBack))
	r.mux.HandleFunc("POST /api/wizard/sessions/{id}/restart", r.withAuth(r.handleWizardRestart))

	// Sharing and push (protected)
	r.mux.HandleFunc("POST /api/share", r.withAuth(r.handleCreateShare))
	r.mux.HandleFunc("POST /api/push/register", r.withAuth(r.handlePushRegister))
	r.mux.HandleFunc("POST /api/push/unregister", r.withAuth(r.handlePushUnregister))

	// Guest sessions (guest token)
	r.mux.HandleFunc("POST /guest/sessions", r.handleStartGuest)
	r.mux.HandleFunc("POST /guest/sessions/{id}/voice", r.withGuest(r.handleGuestVoice))
	r.mux.HandleFunc("POST /guest/sessions/{id}/chat", r.withGuest(r.handleGuestChat))
	r.mux.HandleFunc("POST /guest/sessions/{id}/rate", r.withGuest(r.handleGuestRate))
	r.mux.HandleFunc("POST /guest/sessions/{id}/convert", r.withAuth(r.withGuest(r.handleGuestConvert)))
	r.mux.HandleFunc("DELETE /guest/sessions/{id}", r.withGuest(r.handleGuestAbandon))

	// Admin endpoints (admin key)
	r.mux.HandleFunc("POST /admin/tier", r.withAdmin(r.handleAdminGrantTier))
	r.mux.HandleFunc("POST /admin/settle/{userID}", r.withAdmin(r.handleAdminSettle))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Guest-Token")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)

		// ServeMux records the matched pattern on the request.
		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestCount.WithLabelValues(req.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
