package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
)

type fakePusher struct {
	sent []string
	err  error
}

func (f *fakePusher) Push(deviceToken string, _ OwnerNotification) error {
	f.sent = append(f.sent, deviceToken)
	return f.err
}

func TestNotifyOwnerOnlyIOS(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	_ = mem.RegisterPushToken(ctx, "owner", "ios-token", "ios")
	_ = mem.RegisterPushToken(ctx, "owner", "android-token", "android")
	_ = mem.RegisterPushToken(ctx, "other", "other-token", "ios")

	pusher := &fakePusher{err: errors.New("rejected")}
	n := NewNotifier(mem, pusher, zerolog.Nop())
	n.NotifyOwner(ctx, "owner", OwnerNotification{Kind: KindGuestRating, Title: "t", Body: "b"})

	if len(pusher.sent) != 1 || pusher.sent[0] != "ios-token" {
		t.Errorf("sent = %v, want [ios-token]", pusher.sent)
	}
}

func TestNotifyOwnerNilSafe(t *testing.T) {
	var n *Notifier
	n.NotifyOwner(context.Background(), "owner", OwnerNotification{})

	var c *APNsClient
	if err := c.Push("tok", OwnerNotification{}); err != nil {
		t.Errorf("nil APNs client Push err = %v, want nil", err)
	}
}

func TestNewAPNsClientDisabledWithoutConfig(t *testing.T) {
	c, err := NewAPNsClient(APNsConfig{}, zerolog.Nop())
	if err != nil || c != nil {
		t.Errorf("NewAPNsClient(empty) = %v, %v; want nil, nil", c, err)
	}
}

func TestDiscordTierUpgraded(t *testing.T) {
	got := make(chan discordMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg discordMessage
		_ = json.NewDecoder(r.Body).Decode(&msg)
		got <- msg
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDiscord(server.URL, zerolog.Nop())
	select {
	case <-d.NotifyTierUpgraded(context.Background(), "u1", "eternal"):
	case <-time.After(5 * time.Second):
		t.Fatal("webhook send did not finish")
	}

	msg := <-got
	if len(msg.Embeds) != 1 || msg.Embeds[0].Title != "Tier upgraded" {
		t.Errorf("message = %+v", msg)
	}
}

func TestDiscordDisabled(t *testing.T) {
	d := NewDiscord("", zerolog.Nop())
	if d.Enabled() {
		t.Error("Enabled() should be false without webhook")
	}
	<-d.NotifyGuestConverted(context.Background(), "o", "n", "wife")
}

func TestOwnerPayload(t *testing.T) {
	p := ownerPayload(OwnerNotification{
		Kind:  KindGuestRating,
		Title: "New rating",
		Body:  "Your daughter rated the call 5/5",
		Data:  map[string]any{"session_id": "s1"},
	})
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	var got struct {
		APS struct {
			Alert struct {
				Title string `json:"title"`
			} `json:"alert"`
			ThreadID string `json:"thread-id"`
		} `json:"aps"`
		Type      string `json:"notification_type"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.APS.Alert.Title != "New rating" || got.APS.ThreadID != "guest_rating" {
		t.Errorf("aps = %+v", got.APS)
	}
	if got.Type != "guest_rating" || got.SessionID != "s1" {
		t.Errorf("custom fields = %q %q", got.Type, got.SessionID)
	}
}

func TestDiscordNilReceiver(t *testing.T) {
	var d *Discord
	if d.Enabled() {
		t.Error("nil Discord reports enabled")
	}
	<-d.NotifyTierUpgraded(context.Background(), "u1", "advanced")
	<-d.NotifyGuestConverted(context.Background(), "o", "n", "son")
}
