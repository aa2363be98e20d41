package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/bullaburg/game-saviour/internal/auth"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/service"
)

const stateCookieName = "oauth_state"

// IdentityProvider is the OAuth provider the login flow redirects to.
// *auth.GoogleProvider is the production implementation.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

// AuthHandler manages sign-in and sign-out.
//
//   - HandleGoogleLogin    → redirect the browser to Google
//   - HandleGoogleCallback → exchange the code, upsert the user, set the JWT cookie
//   - HandleLogin          → email/password sign-in
//   - HandleLogout         → clear the JWT cookie
type AuthHandler struct {
	provider     IdentityProvider
	auth         *service.AuthService
	tokenTTL     time.Duration
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. provider may be nil when Google
// sign-in is not configured; the Google routes are then not registered.
func NewAuthHandler(
	provider IdentityProvider,
	authService *service.AuthService,
	tokenTTL time.Duration,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider:     provider,
		auth:         authService,
		tokenTTL:     tokenTTL,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleGoogleLogin redirects the user to Google's consent page.
//
// HTTP: GET /auth/google/login
//
// A random state is stored in a short-lived HttpOnly cookie and echoed by
// Google on the callback; a mismatch means the callback was not started here.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_state", Message: "invalid OAuth state"})
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_state", Message: "invalid OAuth state"})
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code"})
		return
	}

	gUser, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: code exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "auth_failed", Message: "authentication failed"})
		return
	}

	res, err := h.auth.LoginOrRegisterGoogle(r.Context(), gUser)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// HandleLogin signs in with email and password. The token is set as a cookie
// for browsers and also returned in the body for Bearer clients.
//
// HTTP: POST /auth/login → 200, 401 on bad credentials
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusOK, loginResponse{User: res.User, Token: res.Token})
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so the JWT stays valid until it expires; without the
// cookie the browser just stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearTokenCookie(w, h.secureCookie)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearTokenCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
