package auth

import (
	"net/http"
	"strings"

	"github.com/bullaburg/game-saviour/internal/apperror"
)

// TokenCookieName is the HttpOnly cookie that carries the session JWT.
const TokenCookieName = "token"

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID string
	Email  string
}

// SessionValidator resolves the caller of a request to a Principal.
//
// It is the only contact point between the API and whatever identity provider
// minted the session. Implementations return an error wrapping
// apperror.ErrUnauthorized when there is no usable session.
type SessionValidator interface {
	ValidateSession(r *http.Request) (Principal, error)
}

// TokenSessionValidator validates sessions issued by TokenService.
// The token is read from the "token" cookie first, then from an
// "Authorization: Bearer" header for non-browser clients.
type TokenSessionValidator struct {
	tokens *TokenService
}

var _ SessionValidator = (*TokenSessionValidator)(nil)

func NewTokenSessionValidator(tokens *TokenService) *TokenSessionValidator {
	return &TokenSessionValidator{tokens: tokens}
}

func (v *TokenSessionValidator) ValidateSession(r *http.Request) (Principal, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return Principal{}, apperror.Unauthorized("authentication required")
	}

	p, err := v.tokens.Validate(raw)
	if err != nil {
		return Principal{}, apperror.Unauthorized("invalid or expired session")
	}
	if p.UserID == "" || p.Email == "" {
		return Principal{}, apperror.Unauthorized("session carries no user identity")
	}

	return p, nil
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// SessionValidatorFunc adapts a plain function to SessionValidator.
type SessionValidatorFunc func(r *http.Request) (Principal, error)

func (f SessionValidatorFunc) ValidateSession(r *http.Request) (Principal, error) {
	return f(r)
}
