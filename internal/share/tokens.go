// Package share issues share tokens and runs the guest sessions that exercise
// an owner's persona.
package share

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/rs/zerolog"
)

const (
	TokenLength      = 6
	tokenAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"
	maxTokenAttempts = 5
)

// TokenStore persists share tokens. Insert returns core.ErrTokenExists on a
// duplicate code.
type TokenStore interface {
	InsertShareToken(ctx context.Context, t store.ShareToken) error
	GetShareToken(ctx context.Context, token string) (*store.ShareToken, error)
}

type Tokens struct {
	store    TokenStore
	generate func() (string, error)
	log      zerolog.Logger
}

func NewTokens(s TokenStore, log zerolog.Logger) *Tokens {
	return &Tokens{
		store:    s,
		generate: randomToken,
		log:      log.With().Str("component", "share").Logger(),
	}
}

// Bytes at or above this are discarded so every alphabet symbol is equally
// likely.
const tokenByteLimit = 256 - 256%len(tokenAlphabet)

func randomToken() (string, error) {
	return tokenFrom(rand.Read)
}

func tokenFrom(read func([]byte) (int, error)) (string, error) {
	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength*2)
	for len(out) < TokenLength {
		if _, err := read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= tokenByteLimit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// CreateToken mints a new token for (user, role), retrying on collisions.
func (t *Tokens) CreateToken(ctx context.Context, userID string, role core.Role) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		code, err := t.generate()
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		err = t.store.InsertShareToken(ctx, store.ShareToken{Token: code, UserID: userID, Role: role})
		if errors.Is(err, core.ErrTokenExists) {
			t.log.Warn().Int("attempt", attempt+1).Msg("share token collision")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create token: %w", err)
		}
		t.log.Info().Str("user_id", userID).Str("role", string(role)).Msg("share token created")
		return code, nil
	}
	return "", fmt.Errorf("%w: %w after %d attempts", core.ErrStorageWrite, core.ErrTokenExists, maxTokenAttempts)
}

// ResolveToken returns the token record, or nil when the code is unknown.
func (t *Tokens) ResolveToken(ctx context.Context, token string) (*store.ShareToken, error) {
	rec, err := t.store.GetShareToken(ctx, token)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return rec, nil
}
