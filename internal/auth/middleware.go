// EvoAPI - Field Service Work Order and Fleet Management API
// Copyright 2026 ServiceField
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/servicefield/evoapi

package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/servicefield/evoapi/internal/config"
	"github.com/servicefield/evoapi/internal/logging"
)

type contextKey string

// ClaimsContextKey carries the authenticated Claims on the request
// context.
const ClaimsContextKey contextKey = "claims"

const actorRecorderKey contextKey = "actor_recorder"

// ActorRecorder lets middleware mounted outside the auth layer learn
// which identity a request authenticated as. Authenticate fills the
// recorder when one is present on the context.
type ActorRecorder struct {
	mu       sync.Mutex
	username string
	role     string
	seen     bool
}

func (rec *ActorRecorder) record(claims *Claims) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.username = claims.Username
	rec.role = claims.Role
	rec.seen = true
}

// Identity returns the recorded identity. ok is false when the
// request never authenticated.
func (rec *ActorRecorder) Identity() (username, role string, ok bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.username, rec.role, rec.seen
}

// ContextWithActorRecorder attaches an ActorRecorder to ctx.
func ContextWithActorRecorder(ctx context.Context, rec *ActorRecorder) context.Context {
	return context.WithValue(ctx, actorRecorderKey, rec)
}

// Middleware enforces authentication on the API surface.
type Middleware struct {
	jwtManager *JWTManager
	authMode   string
}

// NewMiddleware creates the authentication middleware. With auth mode
// "none" every request passes through unauthenticated.
func NewMiddleware(jwtManager *JWTManager, authMode string) *Middleware {
	return &Middleware{jwtManager: jwtManager, authMode: authMode}
}

// Authenticate rejects requests without a valid bearer token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.authMode == "none" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "Unauthorized: bearer token required", http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Debug().Err(err).Msg("Token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		if rec, ok := r.Context().Value(actorRecorderKey).(*ActorRecorder); ok {
			rec.record(claims)
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated requests whose claims lack the
// admin role. With auth mode "none" it passes everything through.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.authMode == "none" {
			next.ServeHTTP(w, r)
			return
		}

		claims := ClaimsFromContext(r.Context())
		if claims == nil || !claims.IsAdmin() {
			http.Error(w, "Forbidden: admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext returns the authenticated claims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsContextKey).(*Claims)
	return claims
}

// VerifyAdminCredentials checks a username/password pair against the
// configured admin account. The stored password is a bcrypt hash.
func VerifyAdminCredentials(cfg *config.SecurityConfig, username, password string) bool {
	if cfg.AdminUsername == "" || cfg.AdminPasswordHash == "" {
		return false
	}
	if username != cfg.AdminUsername {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(cfg.AdminPasswordHash), []byte(password)) == nil
}
