// Package auth admits guests to a shared session.
//
// THE FLOW:
//  1. The guest POSTs its nickname and the share passphrase to /share/join.
//  2. The host checks the passphrase against its bcrypt hash (password.go).
//  3. The host returns a short-lived invite token (this file), a signed JWT
//     whose subject is the nickname.
//  4. The guest opens the websocket at /share/ws?token=...; the middleware
//     (middleware.go) validates the token before the upgrade.
//
// WHY JWT?
// The token is self-contained: the hub can check it on upgrade without a
// session table, and it expires on its own.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// issuer is checked on validation so tokens from other apps using the same
// secret are rejected.
const issuer = "portfolio"

// DefaultInviteTTL is how long a guest has to open the websocket.
const DefaultInviteTTL = 5 * time.Minute

// TokenService issues and validates invite tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; a zero ttl means DefaultInviteTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: token secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims embeds the standard registered claims (sub, iat, exp, iss).
type claims struct {
	jwt.RegisteredClaims
}

// Generate issues an invite for nick with the service TTL.
func (s *TokenService) Generate(nick string) (string, error) {
	return s.GenerateWithDuration(nick, s.ttl)
}

// GenerateWithDuration issues an invite that expires after d. Tests use a
// negative d to get an expired token.
func (s *TokenService) GenerateWithDuration(nick string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   nick,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate checks signature, algorithm, issuer and expiry and returns the
// nickname the invite was issued to.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			// Guard against the "none" and RS/HS confusion attacks.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
