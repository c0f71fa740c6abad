// Package auth issues and verifies bearer tokens and carries the caller's
// identity through request contexts.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type Identity struct {
	UserID int64  `json:"id"`
	Role   string `json:"role"`
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

type SessionChecker interface {
	HasActiveSession(ctx context.Context, userID int64) (bool, error)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware requires a valid access token whose user still holds a live
// session, and stores the caller's Identity in the request context.
func Middleware(tokens *Issuer, sessions SessionChecker, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				fail(w, r, ErrNoToken)
				return
			}

			claims, err := tokens.ParseAccess(raw)
			if err != nil {
				fail(w, r, err)
				return
			}

			active, err := sessions.HasActiveSession(r.Context(), claims.UserID)
			if err != nil {
				fail(w, r, fmt.Errorf("check session: %w", err))
				return
			}
			if !active {
				fail(w, r, ErrSessionExpired)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
