package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	colorUpgrade   = 0x2ECC71
	colorConverted = 0x3498DB
)

// Discord posts operator events (tier grants, guest conversions) to a
// webhook channel. A nil or unconfigured Discord drops every event.
type Discord struct {
	webhookURL string
	client     *http.Client
	log        zerolog.Logger
	now        func() time.Time
}

func NewDiscord(webhookURL string, log zerolog.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "discord").Logger(),
		now:        time.Now,
	}
}

func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

func (d *Discord) embed(title string, color int, fields ...embedField) discordEmbed {
	return discordEmbed{
		Title:     title,
		Color:     color,
		Fields:    fields,
		Timestamp: d.now().UTC().Format(time.RFC3339),
	}
}

func closedDone() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

func codeField(name, value string) embedField {
	return embedField{Name: name, Value: fmt.Sprintf("`%s`", value), Inline: true}
}

// post delivers embed asynchronously. The returned channel closes once the
// attempt finishes; callers normally ignore it.
func (d *Discord) post(ctx context.Context, embed discordEmbed) <-chan struct{} {
	if !d.Enabled() {
		return closedDone()
	}
	done := make(chan struct{})
	payload, err := json.Marshal(discordMessage{Embeds: []discordEmbed{embed}})
	if err != nil {
		d.log.Warn().Err(err).Msg("encode webhook payload")
		close(done)
		return done
	}
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(done)
		if err := d.deliver(ctx, payload); err != nil {
			d.log.Warn().Err(err).Str("title", embed.Title).Msg("webhook delivery failed")
		}
	}()
	return done
}

func (d *Discord) deliver(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// NotifyTierUpgraded reports a granted tier.
func (d *Discord) NotifyTierUpgraded(ctx context.Context, userID, tier string) <-chan struct{} {
	if !d.Enabled() {
		return closedDone()
	}
	e := d.embed("Tier upgraded", colorUpgrade, codeField("User", userID))
	e.Description = fmt.Sprintf("Now on **%s**", tier)
	return d.post(ctx, e)
}

// NotifyGuestConverted reports a guest who signed up from a shared persona.
func (d *Discord) NotifyGuestConverted(ctx context.Context, ownerID, newUserID, role string) <-chan struct{} {
	if !d.Enabled() {
		return closedDone()
	}
	return d.post(ctx, d.embed("Guest converted", colorConverted,
		codeField("Owner", ownerID),
		codeField("New user", newUserID),
		embedField{Name: "Role", Value: role, Inline: true},
	))
}
