package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/fishmart/internal/apperr"
	"github.com/safar/fishmart/internal/config"
)

var (
	ErrNoToken        = apperr.New(apperr.Unauthorized, "No token provided")
	ErrTokenExpired   = apperr.New(apperr.Unauthorized, "Token has expired")
	ErrTokenInvalid   = apperr.New(apperr.Unauthorized, "Invalid token")
	ErrSessionExpired = apperr.New(apperr.Unauthorized, "Session expired. Please log in again.")
)

type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer signs and verifies HS256 tokens. Access and refresh tokens use
// different secrets so one can never stand in for the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(cfg config.AuthConfig) *Issuer {
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

func sign(secret []byte, ttl time.Duration, userID int64, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (i *Issuer) Issue(userID int64, role string) (TokenPair, error) {
	access, err := sign(i.accessSecret, i.accessTTL, userID, role)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := sign(i.refreshSecret, i.refreshTTL, userID, role)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func parse(secret []byte, raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (i *Issuer) ParseAccess(raw string) (*Claims, error) {
	return parse(i.accessSecret, raw)
}

func (i *Issuer) ParseRefresh(raw string) (*Claims, error) {
	return parse(i.refreshSecret, raw)
}
