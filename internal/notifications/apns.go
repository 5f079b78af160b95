package notifications

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Owner alerts older than this are not worth delivering.
const pushExpiry = 24 * time.Hour

type APNsConfig struct {
	KeyPath    string // .p8 signing key
	KeyID      string
	TeamID     string
	BundleID   string
	Production bool
}

func (c APNsConfig) complete() bool {
	return c.KeyPath != "" && c.KeyID != "" && c.TeamID != "" && c.BundleID != ""
}

// APNsClient pushes owner notifications to iOS devices with token-based auth.
type APNsClient struct {
	client *apns2.Client
	topic  string
	log    zerolog.Logger
}

// NewAPNsClient returns nil, nil when the configuration is incomplete, which
// leaves push disabled.
func NewAPNsClient(cfg APNsConfig, log zerolog.Logger) (*APNsClient, error) {
	log = log.With().Str("component", "apns").Logger()
	if !cfg.complete() {
		log.Info().Msg("APNs not configured, push disabled")
		return nil, nil
	}

	key, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load APNs key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{AuthKey: key, KeyID: cfg.KeyID, TeamID: cfg.TeamID})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	log.Info().Bool("production", cfg.Production).Str("topic", cfg.BundleID).Msg("APNs ready")
	return &APNsClient{client: client, topic: cfg.BundleID, log: log}, nil
}

// ownerPayload builds the aps body. The kind doubles as thread id so iOS
// groups ratings and identity saves separately.
func ownerPayload(n OwnerNotification) *payload.Payload {
	p := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound("default").
		ThreadID(string(n.Kind)).
		Custom("notification_type", string(n.Kind))
	for k, v := range n.Data {
		p.Custom(k, v)
	}
	return p
}

// Push sends one owner notification to a device.
func (c *APNsClient) Push(deviceToken string, n OwnerNotification) error {
	if c == nil || c.client == nil {
		return nil
	}

	res, err := c.client.Push(&apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       c.topic,
		Payload:     ownerPayload(n),
		Expiration:  time.Now().Add(pushExpiry),
	})
	if err != nil {
		return fmt.Errorf("apns push: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("apns rejected %s: %d %s", n.Kind, res.StatusCode, res.Reason)
	}

	c.log.Debug().Str("kind", string(n.Kind)).Str("device", abbreviate(deviceToken)).Msg("pushed")
	return nil
}

func abbreviate(deviceToken string) string {
	if len(deviceToken) <= 16 {
		return deviceToken
	}
	return deviceToken[:16] + "..."
}
