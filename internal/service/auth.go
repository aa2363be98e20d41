// AuthService turns identity-provider callbacks and password logins into
// session tokens:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// It never sets cookies or reads requests; that is the handler's job.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/auth"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/repository"
)

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGoogle handles the Google OAuth callback.
//
// The email is the natural key: the first sign-in creates the account, later
// ones refresh name and picture from Google but keep everything the user
// edited on their profile.
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, gUser *auth.GoogleUser) (*AuthResult, error) {
	if gUser == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}

	email, err := normalizeEmail(gUser.Email)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(gUser.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user := &model.User{
		Email: email,
		Name:  name,
		Image: gUser.Picture,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", email, err)
	}

	s.logger.Info("user authenticated via Google", slog.String("userID", user.ID))

	return s.issue(user)
}

// Login checks an email/password pair.
//
// Unknown email, wrong password and accounts without a password (Google-only)
// all produce the same Unauthorized error so the response does not reveal
// which emails are registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, invalid
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("failed password login", slog.String("userID", user.ID))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	s.logger.Info("user authenticated via password", slog.String("userID", user.ID))

	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(auth.Principal{UserID: user.ID, Email: user.Email})
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{
		User:  user,
		Token: token,
	}, nil
}
