// Package auth turns identity-provider sign-ins into signed session tokens and
// turns those tokens back into a Principal on every request.
//
// FLOW:
//  1. User visits /auth/google/login → redirected to Google
//  2. Google calls back /auth/google/callback with a code
//  3. Server exchanges the code for the OpenID userinfo, upserts the user by email
//  4. Server issues a JWT (sub = user ID, email claim) in an HttpOnly cookie
//  5. RequireAuth validates the JWT on protected routes and stores the Principal
//     in the request context
//
// JWT STRUCTURE:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Payload: {"sub":"<userID>","email":"<email>","iss":"game-saviour","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer     = "game-saviour"
	DefaultTokenTTL = 24 * time.Hour
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// A non-positive ttl falls back to DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of issued tokens; handlers use it for cookie MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" carries the user ID; email rides along so
// the /users/me endpoints can key on it without a lookup.
type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Generate creates and signs a token for p with the configured lifetime.
func (s *TokenService) Generate(p Principal) (string, error) {
	return s.GenerateWithDuration(p, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime.
// Tests use a negative duration to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(p Principal, d time.Duration) (string, error) {
	if p.UserID == "" {
		return "", errors.New("auth: principal has no user ID")
	}

	now := time.Now()
	c := claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the Principal it carries.
//
// The jwt library checks the signature, expiry and issuer. WithValidMethods
// pins HS256 so a token claiming "alg":"none" is rejected (algorithm
// confusion attack).
func (s *TokenService) Validate(tokenStr string) (Principal, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, fmt.Errorf("auth: token expired")
		}
		return Principal{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Principal{}, fmt.Errorf("auth: token has no subject")
	}

	return Principal{UserID: c.Subject, Email: c.Email}, nil
}
