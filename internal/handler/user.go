package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bullaburg/game-saviour/internal/service"
)

// UserHandler serves registration and profile endpoints under /api/users.
type UserHandler struct {
	users        *service.UserService
	secureCookie bool
	logger       *slog.Logger
}

// NewUserHandler creates a UserHandler. secureCookie must match the flag the
// session cookie was set with, or deleting an account cannot clear it.
func NewUserHandler(users *service.UserService, secureCookie bool, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, secureCookie: secureCookie, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Name       *string   `json:"name"`
	Image      *string   `json:"image"`
	Bio        *string   `json:"bio"`
	Languages  *[]string `json:"languages"`
	Games      *[]string `json:"games"`
	HourlyRate *float64  `json:"hourlyRate"`
	IsOnline   *bool     `json:"isOnline"`
	Password   *string   `json:"password"`
}

// HandleRegister creates a password account.
//
// HTTP: POST /api/users → 201, 409 if the email is taken
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleMe returns the caller's full profile.
//
// HTTP: GET /api/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Me(r.Context(), p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe patches the caller's profile.
//
// HTTP: PUT /api/users/me
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.UpdateMe(r.Context(), p, service.UpdateProfileInput{
		Name:       req.Name,
		Image:      req.Image,
		Bio:        req.Bio,
		Languages:  req.Languages,
		Games:      req.Games,
		HourlyRate: req.HourlyRate,
		IsOnline:   req.IsOnline,
		Password:   req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleDeleteMe deletes the caller's account and, with it, their listings.
//
// HTTP: DELETE /api/users/me → 200 {"id", "name", "email"}
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.DeleteMe(r.Context(), p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	clearTokenCookie(w, h.secureCookie)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

// HandlePublicProfile returns another user's public profile.
//
// HTTP: GET /api/users/{id}
func (h *UserHandler) HandlePublicProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.PublicProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
