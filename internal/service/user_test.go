package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/auth"
)

func newTestUserService(t *testing.T) (*UserService, *fakeUserRepo) {
	t.Helper()
	users := newFakeUserRepo()
	return NewUserService(users, auth.NewPasswordServiceWithCost(4), testLogger()), users
}

// =========================================================================
// REGISTER
// =========================================================================

func TestUserService_Register(t *testing.T) {
	svc, users := newTestUserService(t)

	u, err := svc.Register(context.Background(), RegisterInput{
		Email:    "  Ana@Example.COM ",
		Name:     "Ana",
		Password: "correct horse",
	})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEmpty(t, u.ID)
	stored := users.users[u.ID]
	require.NotNil(t, stored)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2a$"))
}

func TestUserService_Register_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"no email", RegisterInput{Name: "A", Password: "12345678"}, "email"},
		{"bad email", RegisterInput{Email: "not-an-email", Name: "A", Password: "12345678"}, "email"},
		{"display-name email", RegisterInput{Email: "Ana <ana@x.com>", Name: "A", Password: "12345678"}, "email"},
		{"no name", RegisterInput{Email: "a@x.com", Password: "12345678"}, "name"},
		{"short password", RegisterInput{Email: "a@x.com", Name: "A", Password: "1234567"}, "password"},
		{"long password", RegisterInput{Email: "a@x.com", Name: "A", Password: strings.Repeat("p", 73)}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestUserService(t)

			_, err := svc.Register(context.Background(), tt.in)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestUserService_Register_DuplicateEmail(t *testing.T) {
	svc, _ := newTestUserService(t)
	in := RegisterInput{Email: "a@x.com", Name: "A", Password: "12345678"}

	_, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

// =========================================================================
// /users/me
// =========================================================================

func TestUserService_Me(t *testing.T) {
	svc, users := newTestUserService(t)
	p := seedUser(t, users, "a@x.com")

	u, err := svc.Me(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p.UserID, u.ID)

	_, err = svc.Me(context.Background(), auth.Principal{UserID: "x", Email: "nobody@x.com"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUserService_UpdateMe(t *testing.T) {
	svc, users := newTestUserService(t)
	p := seedUser(t, users, "a@x.com")

	u, err := svc.UpdateMe(context.Background(), p, UpdateProfileInput{
		Bio:        ptr(" I carry. "),
		Languages:  &[]string{"en", " ", "ru"},
		HourlyRate: ptr(20.0),
		IsOnline:   ptr(true),
		Password:   ptr("new password"),
	})
	require.NoError(t, err)

	assert.Equal(t, "I carry.", u.Bio)
	assert.Equal(t, []string{"en", "ru"}, u.Languages)
	assert.Equal(t, 20.0, *u.HourlyRate)
	assert.True(t, u.IsOnline)
	assert.Equal(t, "a@x.com", u.Name, "name untouched")

	require.NoError(t, auth.NewPasswordServiceWithCost(4).Verify(users.users[p.UserID].PasswordHash, "new password"))
}

func TestUserService_UpdateMe_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		in    UpdateProfileInput
		field string
	}{
		{"empty name", UpdateProfileInput{Name: ptr("  ")}, "name"},
		{"negative rate", UpdateProfileInput{HourlyRate: ptr(-1.0)}, "hourlyRate"},
		{"short password", UpdateProfileInput{Password: ptr("short")}, "password"},
		{"long bio", UpdateProfileInput{Bio: ptr(strings.Repeat("b", MaxBioLength+1))}, "bio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users := newTestUserService(t)
			p := seedUser(t, users, "a@x.com")

			_, err := svc.UpdateMe(context.Background(), p, tt.in)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestUserService_DeleteMe_CascadesListings(t *testing.T) {
	svc, users := newTestUserService(t)
	listings := newFakeListingRepo(users)
	p := seedUser(t, users, "a@x.com")

	listingSvc := NewListingService(listings, users, testLogger())
	_, err := listingSvc.Create(context.Background(), p, validInput())
	require.NoError(t, err)

	deleted, err := svc.DeleteMe(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p.UserID, deleted.ID)

	assert.Empty(t, users.users)
	assert.Empty(t, listings.listings)
}

func TestUserService_PublicProfile(t *testing.T) {
	svc, users := newTestUserService(t)
	p := seedUser(t, users, "a@x.com")

	profile, err := svc.PublicProfile(context.Background(), p.UserID)
	require.NoError(t, err)
	assert.Equal(t, p.UserID, profile.ID)

	_, err = svc.PublicProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
