package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lukasbauer/evervoice/internal/core"
)

// Platform is the push service a device token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformIOS, PlatformAndroid:
		return p, nil
	}
	return "", fmt.Errorf("%w: platform must be 'ios' or 'android', got %q", core.ErrInvalidPlatform, s)
}

// DevicePushToken is an owner device registered for notifications.
type DevicePushToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  Platform  `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterPushToken adds a device, or moves an existing (user, token) pair to
// a new platform and refreshes its timestamp.
func (s *Store) RegisterPushToken(ctx context.Context, userID, token string, platform Platform) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_push_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE
		SET platform = EXCLUDED.platform, created_at = NOW()
	`, userID, token, string(platform))
	if err != nil {
		return writeErr("register push token", err)
	}
	return nil
}

// UnregisterPushToken removes the token for every user it was registered to.
func (s *Store) UnregisterPushToken(ctx context.Context, token string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM device_push_tokens WHERE token = $1`, token); err != nil {
		return writeErr("unregister push token", err)
	}
	return nil
}

// ListPushTokens returns a user's devices, newest first. An empty platform
// matches every platform.
func (s *Store) ListPushTokens(ctx context.Context, userID string, platform Platform) ([]DevicePushToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, token, platform, created_at
		FROM device_push_tokens
		WHERE user_id = $1 AND ($2::text = '' OR platform = $2::text)
		ORDER BY created_at DESC
	`, userID, string(platform))
	if err != nil {
		return nil, readErr("list push tokens", err)
	}
	defer rows.Close()

	var devices []DevicePushToken
	for rows.Next() {
		var d DevicePushToken
		var p string
		if err := rows.Scan(&d.ID, &d.UserID, &d.Token, &p, &d.CreatedAt); err != nil {
			return nil, readErr("scan push token", err)
		}
		d.Platform = Platform(p)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("list push tokens", err)
	}
	return devices, nil
}
