package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	userContextKey  contextKey = "user"
	guestContextKey contextKey = "guest"
)

const guestIssuer = "evervoice-guest"

// AuthUser represents the authenticated user in the request context
type AuthUser struct {
	ID string
}

// JWTClaims represents the claims in a user token. The user ID is the subject.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// GuestClaims bind a token to one guest session.
type GuestClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// AuthGuest represents the guest session in the request context
type AuthGuest struct {
	SessionID string
}

func bearerToken(req *http.Request) (string, bool) {
	authHeader := req.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

func (r *Router) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return []byte(r.cfg.JWTSecret), nil
}

func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") == "" {
			http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
			return
		}
		tokenString, ok := bearerToken(req)
		if !ok {
			http.Error(w, `{"error": "invalid authorization format"}`, http.StatusUnauthorized)
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, r.keyFunc, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}
		// Guest tokens must not pass as user tokens.
		if claims.Issuer == guestIssuer || claims.Subject == "" {
			http.Error(w, `{"error": "invalid token claims"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(req.Context(), userContextKey, &AuthUser{ID: claims.Subject})
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

func getAuthUser(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(userContextKey).(*AuthUser)
	return user
}

// withGuest requires an X-Guest-Token bound to the session in the path.
func (r *Router) withGuest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		tokenString := req.Header.Get("X-Guest-Token")
		if tokenString == "" {
			http.Error(w, `{"error": "missing guest token"}`, http.StatusUnauthorized)
			return
		}

		claims := &GuestClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, r.keyFunc,
			jwt.WithIssuer(guestIssuer), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			http.Error(w, `{"error": "invalid guest token"}`, http.StatusUnauthorized)
			return
		}
		if claims.SessionID == "" || claims.SessionID != req.PathValue("id") {
			http.Error(w, `{"error": "guest token does not match session"}`, http.StatusForbidden)
			return
		}

		ctx := context.WithValue(req.Context(), guestContextKey, &AuthGuest{SessionID: claims.SessionID})
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

func getAuthGuest(ctx context.Context) *AuthGuest {
	guest, _ := ctx.Value(guestContextKey).(*AuthGuest)
	return guest
}

func (r *Router) generateGuestJWT(sessionID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(r.cfg.GuestTokenTTL)
	claims := GuestClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    guestIssuer,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(r.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign guest token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueUserToken signs a user token. The identity provider normally does
// this; operators use it for support access and tests use it directly.
func IssueUserToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (r *Router) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key := req.Header.Get("X-Admin-Key")
		if r.cfg.AdminAPIKey == "" || key == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(r.cfg.AdminAPIKey)) != 1 {
			http.Error(w, `{"error": "admin access required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, req)
	}
}
