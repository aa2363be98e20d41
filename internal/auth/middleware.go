package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// contextKey is an unexported type used for context keys in this package.
//
// A package-private key type means only this package can read or write the
// Principal stored in a request context.
type contextKey string

const principalKey contextKey = "principal"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It asks the validator for the Principal behind the request and stores it in
// the request context. When the validator fails, it answers 401 Unauthorized
// and stops the chain.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := validator.ValidateSession(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "valid authentication required",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the authenticated caller from the request context.
//
// Returns (Principal{}, false) when RequireAuth did not run for this request.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != ""
}
