// Package notifications delivers owner push notifications and operator
// webhook alerts.
package notifications

import (
	"context"

	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
)

// Kind identifies an owner notification.
type Kind string

const (
	KindGuestRating Kind = "guest_rating"
	KindSettlement  Kind = "settlement_penalty"
	KindGuestVisit  Kind = "guest_visit"
)

// OwnerNotification is a push message to a persona owner.
type OwnerNotification struct {
	Kind  Kind
	Title string
	Body  string
	Data  map[string]any
}

// Pusher delivers a notification to one device.
type Pusher interface {
	Push(deviceToken string, n OwnerNotification) error
}

// TokenLister lists the devices registered by a user.
type TokenLister interface {
	ListPushTokens(ctx context.Context, userID string, platform store.Platform) ([]store.DevicePushToken, error)
}

// Notifier fans an owner notification out to the owner's iOS devices.
// Delivery failures are logged and never returned.
type Notifier struct {
	tokens TokenLister
	pusher Pusher
	log    zerolog.Logger
}

func NewNotifier(tokens TokenLister, pusher Pusher, log zerolog.Logger) *Notifier {
	return &Notifier{tokens: tokens, pusher: pusher, log: log.With().Str("component", "notifications").Logger()}
}

// NotifyOwner pushes n to every iOS device of userID.
func (n *Notifier) NotifyOwner(ctx context.Context, userID string, msg OwnerNotification) {
	if n == nil || n.pusher == nil {
		return
	}
	devices, err := n.tokens.ListPushTokens(ctx, userID, store.PlatformIOS)
	if err != nil {
		n.log.Warn().Err(err).Str("user_id", userID).Msg("failed to list push tokens")
		return
	}
	for _, d := range devices {
		if err := n.pusher.Push(d.Token, msg); err != nil {
			n.log.Warn().Err(err).Str("user_id", userID).Str("kind", string(msg.Kind)).Msg("push failed")
		}
	}
}
