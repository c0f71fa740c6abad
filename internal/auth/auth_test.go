package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/fishmart/internal/apperr"
	"github.com/safar/fishmart/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer(accessTTL time.Duration) *Issuer {
	return NewIssuer(config.AuthConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     accessTTL,
		RefreshTTL:    7 * 24 * time.Hour,
	})
}

type sessionsFunc func(ctx context.Context, userID int64) (bool, error)

func (f sessionsFunc) HasActiveSession(ctx context.Context, userID int64) (bool, error) {
	return f(ctx, userID)
}

func TestIssueAndParse(t *testing.T) {
	issuer := testIssuer(15 * time.Minute)

	pair, err := issuer.Issue(7, "seller")
	require.NoError(t, err)

	claims, err := issuer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "seller", claims.Role)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	refresh, err := issuer.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), refresh.ExpiresAt.Time, 5*time.Second)

	_, err = issuer.ParseAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseAccess_Failures(t *testing.T) {
	expired, err := testIssuer(-time.Minute).Issue(1, "buyer")
	require.NoError(t, err)

	_, err = testIssuer(time.Minute).ParseAccess(expired.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = testIssuer(time.Minute).ParseAccess("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: "admin"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = testIssuer(time.Minute).ParseAccess(unsigned)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("Secret1!")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret1!", hash)
	assert.True(t, CheckPassword(hash, "Secret1!"))
	assert.False(t, CheckPassword(hash, "Secret2!"))
}

func TestMiddleware(t *testing.T) {
	issuer := testIssuer(time.Minute)
	pair, err := issuer.Issue(3, "admin")
	require.NoError(t, err)
	expired, err := testIssuer(-time.Minute).Issue(3, "admin")
	require.NoError(t, err)

	loggedIn := map[int64]bool{3: true}
	sessions := sessionsFunc(func(_ context.Context, id int64) (bool, error) {
		if id == 99 {
			return false, errors.New("db down")
		}
		return loggedIn[id], nil
	})

	var got Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	fail := func(w http.ResponseWriter, _ *http.Request, err error) {
		w.WriteHeader(apperr.HTTPStatus(apperr.KindOf(err)))
		w.Write([]byte(apperr.Message(err, "internal")))
	}
	handler := Middleware(issuer, sessions, fail)(next)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "no header", status: http.StatusUnauthorized, body: "No token provided"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, body: "No token provided"},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized, body: "Invalid token"},
		{name: "expired", header: "Bearer " + expired.AccessToken, status: http.StatusUnauthorized, body: "Token has expired"},
		{name: "ok", header: "Bearer " + pair.AccessToken, status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
	assert.Equal(t, Identity{UserID: 3, Role: "admin"}, got)

	loggedIn[3] = false
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Session expired. Please log in again.", rec.Body.String())

	broken, err := issuer.Issue(99, "buyer")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+broken.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
