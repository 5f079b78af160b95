package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lukasbauer/evervoice/internal/conversation"
	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/memory"
	"github.com/lukasbauer/evervoice/internal/objectstore"
	"github.com/lukasbauer/evervoice/internal/progression"
	"github.com/lukasbauer/evervoice/internal/share"
	"github.com/lukasbauer/evervoice/internal/similarity"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/lukasbauer/evervoice/internal/voice"
	"github.com/lukasbauer/evervoice/internal/wizard"
	"github.com/rs/zerolog"
)

const (
	testSecret   = "test-secret"
	testAdminKey = "admin-key"
)

type fakeCloner struct {
	mu      sync.Mutex
	clones  int
	deleted []string
}

func (f *fakeCloner) CloneVoice(context.Context, string, []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clones++
	return fmt.Sprintf("guest-%d", f.clones), nil
}

func (f *fakeCloner) AddVoiceSample(context.Context, string, []byte) error { return nil }

func (f *fakeCloner) DeleteVoice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeChat struct{}

func (fakeChat) Chat(_ context.Context, req core.ChatRequest) (string, error) {
	return "reply to " + req.UserText, nil
}

type speechFunc func(ctx context.Context, text, voiceID string) []byte

func (f speechFunc) Synthesize(ctx context.Context, text, voiceID string) []byte {
	return f(ctx, text, voiceID)
}

type testEnv struct {
	router  *Router
	handler http.Handler
	mem     *store.Memory
	cloner  *fakeCloner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	mem := store.NewMemory()
	cloner := &fakeCloner{}
	speech := speechFunc(func(context.Context, string, string) []byte { return []byte("MP3") })

	ledger := progression.NewLedger(mem, log)
	memories := memory.NewService(mem, log)
	assets := voice.NewAssets(objectstore.NewMemory(), cloner, "default", log)
	tokens := share.NewTokens(mem, log)

	svc := Services{
		Records:  mem,
		Ledger:   ledger,
		Memories: memories,
		Builder:  memory.NewBuilder(memories, fakeChat{}),
		Assets:   assets,
		Scorer:   similarity.NewScorer(assets, memories),
		Conversation: conversation.NewService(conversation.Deps{
			Ledger:   ledger,
			Personas: memories,
			Clips:    assets,
			Chat:     fakeChat{},
			Speech:   speech,
		}, conversation.Models{Basic: "basic", Advanced: "advanced"}, log),
		Wizard: wizard.New(wizard.Deps{
			Sessions:    wizard.NewMemorySessions(time.Hour),
			Clips:       assets,
			Profiles:    ledger,
			Completions: mem,
			Speech:      speech,
			Tokens:      tokens,
		}, "https://evervoice.test", log),
		Tokens: tokens,
		Guests: share.NewGuests(share.Deps{
			Tokens:     tokens,
			Registry:   share.NewRegistry(),
			Ledger:     ledger,
			Voices:     assets,
			Speech:     speech,
			Identities: mem,
		}, 30*time.Minute, log),
	}

	cfg := RouterConfig{
		PublicBaseURL: "https://evervoice.test",
		JWTSecret:     testSecret,
		AdminAPIKey:   testAdminKey,
	}
	handler := NewRouter(cfg, svc, log)
	r := &Router{cfg: cfg, Services: svc, log: log, mux: http.NewServeMux()}
	if r.cfg.GuestTokenTTL <= 0 {
		r.cfg.GuestTokenTTL = time.Hour
	}
	return &testEnv{router: r, handler: handler, mem: mem, cloner: cloner}
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := IssueUserToken(testSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("IssueUserToken() error: %v", err)
	}
	return tok
}

// do sends a request through the full middleware stack.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if _, raw := body.([]byte); !raw && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}
