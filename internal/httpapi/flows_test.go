package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/lukasbauer/evervoice/internal/core"
)

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(t, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec := e.do(t, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "evervoice_http_requests_total") {
		t.Error("metrics output should include request counter")
	}
}

func TestWizardFlow(t *testing.T) {
	e := newTestEnv(t)
	auth := bearer(userToken(t, "owner"))

	var started wizardResponse
	rec := e.do(t, http.MethodPost, "/api/wizard/sessions", map[string]string{"role": "wife"}, auth)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	decode(t, rec, &started)
	id := started.Session.ID
	base := "/api/wizard/sessions/" + id

	rec = e.do(t, http.MethodPost, base+"/steps/1?phrase=Honey", []byte("RECORDING"), auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("step 1 status = %d (%s)", rec.Code, rec.Body.String())
	}
	var step1 stepResponse
	decode(t, rec, &step1)
	if !step1.XPGranted || step1.Session.Step != 2 || len(step1.Preview) == 0 {
		t.Errorf("step 1 = %+v, want xp granted, step 2 and a preview", step1)
	}

	rec = e.do(t, http.MethodPost, base+"/steps/3", []byte("x"), auth)
	if rec.Code != http.StatusConflict {
		t.Errorf("out-of-order step status = %d, want %d", rec.Code, http.StatusConflict)
	}

	var last stepResponse
	for step := 2; step <= 4; step++ {
		rec = e.do(t, http.MethodPost, base+"/steps/"+strconv.Itoa(step), []byte("script"), auth)
		if rec.Code != http.StatusOK {
			t.Fatalf("step %d status = %d (%s)", step, rec.Code, rec.Body.String())
		}
		last = stepResponse{}
		decode(t, rec, &last)
	}
	if last.Invite == nil || len(last.Invite.Token) != 6 {
		t.Fatalf("final step invite = %+v, want a 6 character token", last.Invite)
	}

	var again wizardResponse
	rec = e.do(t, http.MethodGet, base, nil, auth)
	decode(t, rec, &again)
	if again.Invite == nil || again.Invite.Token != last.Invite.Token {
		t.Errorf("re-entered invite = %+v, want token %q", again.Invite, last.Invite.Token)
	}

	var restarted wizardResponse
	rec = e.do(t, http.MethodPost, base+"/restart", nil, auth)
	decode(t, rec, &restarted)
	if restarted.Session.Step != 1 || restarted.Invite != nil {
		t.Errorf("restart = %+v, want step 1 without invite", restarted)
	}

	var profile struct {
		XP int `json:"xp"`
	}
	decode(t, e.do(t, http.MethodGet, "/api/profile", nil, auth), &profile)
	if profile.XP != 4 {
		t.Errorf("xp = %d, want 4", profile.XP)
	}

	rec = e.do(t, http.MethodGet, base, nil, bearer(userToken(t, "intruder")))
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign session status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func startGuest(t *testing.T, e *testEnv) (id, guestTok string) {
	t.Helper()
	owner := bearer(userToken(t, "owner"))
	var shared map[string]string
	rec := e.do(t, http.MethodPost, "/api/share", map[string]string{"role": "daughter"}, owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("share status = %d (%s)", rec.Code, rec.Body.String())
	}
	decode(t, rec, &shared)
	if !strings.HasSuffix(shared["share_url"], "/s/"+shared["token"]) {
		t.Errorf("share_url = %q", shared["share_url"])
	}

	var started struct {
		SessionID  string `json:"session_id"`
		GuestToken string `json:"guest_token"`
	}
	rec = e.do(t, http.MethodPost, "/guest/sessions", map[string]string{"token": shared["token"]}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("guest start status = %d (%s)", rec.Code, rec.Body.String())
	}
	decode(t, rec, &started)
	return started.SessionID, started.GuestToken
}

func TestGuestAbandonReleasesVoice(t *testing.T) {
	e := newTestEnv(t)
	id, tok := startGuest(t, e)
	guest := map[string]string{"X-Guest-Token": tok}
	base := "/guest/sessions/" + id

	var preview struct {
		VoiceID string `json:"voice_id"`
		Preview []byte `json:"preview"`
	}
	rec := e.do(t, http.MethodPost, base+"/voice", []byte("guest-sample"), guest)
	if rec.Code != http.StatusOK {
		t.Fatalf("voice status = %d (%s)", rec.Code, rec.Body.String())
	}
	decode(t, rec, &preview)
	if preview.VoiceID == "" || len(preview.Preview) == 0 {
		t.Errorf("preview = %+v, want voice and audio", preview)
	}

	var chat chatResponse
	rec = e.do(t, http.MethodPost, base+"/chat", map[string]string{"text": "hello"}, guest)
	decode(t, rec, &chat)
	if chat.Text != "reply to hello" || chat.Energy != nil {
		t.Errorf("guest chat = %+v, want reply without energy", chat)
	}

	if rec := e.do(t, http.MethodPost, base+"/rate", map[string]int{"stars": 5}, guest); rec.Code != http.StatusOK {
		t.Errorf("rate status = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, base+"/rate", map[string]int{"stars": 5}, guest); rec.Code != http.StatusConflict {
		t.Errorf("second rate status = %d, want %d", rec.Code, http.StatusConflict)
	}
	owner, err := e.mem.GetProfile(context.Background(), "owner")
	if err != nil || owner.XP != 1 {
		t.Errorf("owner = %+v, err %v; want 1 XP", owner, err)
	}

	if rec := e.do(t, http.MethodDelete, base, nil, guest); rec.Code != http.StatusNoContent {
		t.Errorf("abandon status = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, base, nil, guest); rec.Code != http.StatusNotFound {
		t.Errorf("second abandon status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if len(e.cloner.deleted) != 1 || e.cloner.deleted[0] != preview.VoiceID {
		t.Errorf("deleted = %v, want [%s]", e.cloner.deleted, preview.VoiceID)
	}
}

func TestGuestConvertKeepsVoice(t *testing.T) {
	e := newTestEnv(t)
	id, tok := startGuest(t, e)
	base := "/guest/sessions/" + id

	rec := e.do(t, http.MethodPost, base+"/voice", []byte("guest-sample"), map[string]string{"X-Guest-Token": tok})
	if rec.Code != http.StatusOK {
		t.Fatalf("voice status = %d", rec.Code)
	}

	headers := bearer(userToken(t, "new-user"))
	headers["X-Guest-Token"] = tok
	var converted struct {
		VoiceID string `json:"voice_id"`
	}
	rec = e.do(t, http.MethodPost, base+"/convert", nil, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("convert status = %d (%s)", rec.Code, rec.Body.String())
	}
	decode(t, rec, &converted)

	ids, err := e.mem.ListVoiceIdentities(context.Background(), "new-user")
	if err != nil || len(ids) != 1 || ids[0].VoiceID != converted.VoiceID {
		t.Errorf("identities = %+v, err %v", ids, err)
	}
	if len(e.cloner.deleted) != 0 {
		t.Errorf("deleted = %v, want none", e.cloner.deleted)
	}
}

func TestGuestStartUnknownToken(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/guest/sessions", map[string]string{"token": "ZZZZZZ"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestPersonaEndpoints(t *testing.T) {
	e := newTestEnv(t)
	auth := bearer(userToken(t, "owner"))

	var score struct {
		Score int `json:"score"`
	}
	decode(t, e.do(t, http.MethodGet, "/api/personas/son/similarity", nil, auth), &score)
	if score.Score != 50 {
		t.Errorf("initial score = %d, want 50", score.Score)
	}

	rec := e.do(t, http.MethodPut, "/api/personas/son/clips/opening", []byte("OPENING"), auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d (%s)", rec.Code, rec.Body.String())
	}
	decode(t, e.do(t, http.MethodGet, "/api/personas/son/similarity", nil, auth), &score)
	if score.Score != 60 {
		t.Errorf("score after opening = %d, want 60", score.Score)
	}

	rec = e.do(t, http.MethodGet, "/api/personas/son/clips/opening", nil, auth)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "audio/mpeg" || rec.Body.String() != "OPENING" {
		t.Errorf("get clip = %d %q %q", rec.Code, rec.Header().Get("Content-Type"), rec.Body.String())
	}
	if rec := e.do(t, http.MethodGet, "/api/personas/son/clips/tone_humor", nil, auth); rec.Code != http.StatusNotFound {
		t.Errorf("missing clip status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := e.do(t, http.MethodGet, "/api/personas/cousin/similarity", nil, auth); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid role status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = e.do(t, http.MethodPost, "/api/personas/son/memories",
		map[string]string{"question": "first_memory", "answer": "Fishing with grandpa"}, auth)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save memory status = %d (%s)", rec.Code, rec.Body.String())
	}
	var memories struct {
		Memories []struct {
			AnswerText string `json:"answer_text"`
		} `json:"memories"`
	}
	decode(t, e.do(t, http.MethodGet, "/api/personas/son/memories", nil, auth), &memories)
	if len(memories.Memories) != 1 {
		t.Errorf("memories = %+v, want 1", memories.Memories)
	}

	var questions struct {
		Questions []struct {
			Label string `json:"label"`
		} `json:"questions"`
	}
	decode(t, e.do(t, http.MethodGet, "/api/personas/son/questions", nil, auth), &questions)
	for _, q := range questions.Questions {
		if q.Label == "first_memory" {
			t.Error("answered question should not be pending")
		}
	}

	rec = e.do(t, http.MethodPut, "/api/personas/son", map[string]string{"content": "You are Tom."}, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("save persona status = %d", rec.Code)
	}
	var persona struct {
		Content string `json:"content"`
	}
	decode(t, e.do(t, http.MethodGet, "/api/personas/son", nil, auth), &persona)
	if persona.Content != "You are Tom." {
		t.Errorf("persona content = %q", persona.Content)
	}

	var chat chatResponse
	decode(t, e.do(t, http.MethodPost, "/api/personas/son/chat", map[string]string{"text": "hi"}, auth), &chat)
	if chat.Energy == nil || *chat.Energy != 29 {
		t.Errorf("chat energy = %v, want 29", chat.Energy)
	}
}

func TestOwnerChatOutOfEnergy(t *testing.T) {
	e := newTestEnv(t)
	auth := bearer(userToken(t, "owner"))
	if _, err := e.router.Ledger.ApplyDelta(context.Background(), "owner", 0, -100, "test"); err != nil {
		t.Fatalf("ApplyDelta() error: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/api/personas/wife/chat", map[string]string{"text": "hi"}, auth)
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}
}

func TestAdminGrantTier(t *testing.T) {
	e := newTestEnv(t)
	admin := map[string]string{"X-Admin-Key": testAdminKey}

	var first, second struct {
		Result  string `json:"result"`
		Profile struct {
			Tier   core.Tier `json:"tier"`
			Energy int       `json:"energy"`
		} `json:"profile"`
	}
	decode(t, e.do(t, http.MethodPost, "/admin/tier", map[string]string{"user_id": "u1", "tier": "advanced"}, admin), &first)
	decode(t, e.do(t, http.MethodPost, "/admin/tier", map[string]string{"user_id": "u1", "tier": "intermediate"}, admin), &second)

	if first.Result != "success" || first.Profile.Tier != core.TierAdvanced || first.Profile.Energy != 180 {
		t.Errorf("first grant = %+v", first)
	}
	if second.Result != "already_upgraded" || second.Profile.Energy != 180 {
		t.Errorf("second grant = %+v", second)
	}

	rec := e.do(t, http.MethodPost, "/admin/tier", map[string]string{"user_id": "u1", "tier": "platinum"}, admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid tier status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = e.do(t, http.MethodPost, "/admin/settle/u1", nil, admin)
	if rec.Code != http.StatusOK {
		t.Errorf("settle status = %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrInvalidTransition, http.StatusConflict},
		{core.ErrOutOfEnergy, http.StatusPaymentRequired},
		{core.ErrSessionClosed, http.StatusGone},
		{core.ErrTrain, http.StatusBadGateway},
		{core.ErrStorageWrite, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
