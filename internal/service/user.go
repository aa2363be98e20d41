package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/mail"
	"strings"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/auth"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/repository"
)

const (
	MaxNameLength = 100
	MaxBioLength  = 2000
)

// UserService handles account registration and profile management.
// The /users/me operations resolve the caller by the email on the session.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterInput is the payload of POST /api/users.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// UpdateProfileInput is a partial profile update. Password, when set, is
// hashed before it reaches the store.
type UpdateProfileInput struct {
	Name       *string
	Image      *string
	Bio        *string
	Languages  *[]string
	Games      *[]string
	HourlyRate *float64
	IsOnline   *bool
	Password   *string
}

// Register creates a password account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to register user", slog.String("error", err.Error()))
		return nil, fmt.Errorf("registering user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Me returns the full profile of the session user.
func (s *UserService) Me(ctx context.Context, p auth.Principal) (*model.User, error) {
	return s.byEmail(ctx, p)
}

// UpdateMe applies a partial profile update to the session user.
func (s *UserService) UpdateMe(ctx context.Context, p auth.Principal, in UpdateProfileInput) (*model.User, error) {
	user, err := s.byEmail(ctx, p)
	if err != nil {
		return nil, err
	}

	patch := model.UserPatch{
		Image:    trimPtr(in.Image),
		Bio:      trimPtr(in.Bio),
		IsOnline: in.IsOnline,
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperror.ValidationFailed("name", "name must not be empty")
		}
		if len(name) > MaxNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("name must be %d characters or less", MaxNameLength))
		}
		patch.Name = &name
	}
	if patch.Bio != nil && len(*patch.Bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}
	if in.Languages != nil {
		langs := cleanList(*in.Languages)
		patch.Languages = &langs
	}
	if in.Games != nil {
		games := cleanList(*in.Games)
		patch.Games = &games
	}
	if in.HourlyRate != nil {
		rate := *in.HourlyRate
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
			return nil, apperror.ValidationFailed("hourlyRate", "hourlyRate must be a non-negative number")
		}
		patch.HourlyRate = &rate
	}
	if in.Password != nil {
		hash, err := s.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}

	updated, err := s.users.UpdateUser(ctx, user.ID, patch)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update profile",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	s.logger.Info("profile updated", slog.String("userID", updated.ID))
	return updated, nil
}

// DeleteMe removes the session user. Their listings go with them.
func (s *UserService) DeleteMe(ctx context.Context, p auth.Principal) (*model.User, error) {
	user, err := s.byEmail(ctx, p)
	if err != nil {
		return nil, err
	}

	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to delete user",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("deleting user: %w", err)
	}

	s.logger.Info("user deleted", slog.String("userID", user.ID))
	return user, nil
}

// PublicProfile returns what any signed-in user may see about id.
func (s *UserService) PublicProfile(ctx context.Context, id string) (*model.PublicProfile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	profile := user.Public()
	return &profile, nil
}

// byEmail resolves /users/me by the session email, not the user ID listing
// routes use. A token issued before an account was deleted and re-registered
// therefore sees the new profile here but gets NotFound on listing writes.
func (s *UserService) byEmail(ctx context.Context, p auth.Principal) (*model.User, error) {
	if p.Email == "" {
		return nil, apperror.Unauthorized("session carries no email")
	}

	user, err := s.users.GetUserByEmail(ctx, p.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading session user: %w", err)
	}
	return user, nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	if len(password) < auth.MinPasswordLength {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordLength {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return hash, nil
}

// normalizeEmail lower-cases and validates an address.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email is not a valid address")
	}
	return email, nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
