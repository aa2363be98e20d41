// Package repository declares the storage contracts used by the service layer.
// internal/repository/sqlite is the only production implementation; service
// tests use in-memory fakes.
package repository

import (
	"context"

	"github.com/bullaburg/game-saviour/internal/model"
)

// Sort directions accepted by ListingFilter.Order.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListingFilter is the fully parsed form of a listing search.
//
// Zero values mean "no constraint": an empty Game matches every game, a nil
// MinPrice has no lower bound, an empty Tags slice disables tag filtering.
// SortBy is a field name from the JSON model (e.g. "pricePerHour"); the store
// falls back to its default order when it does not recognize it.
type ListingFilter struct {
	Game     string
	MinPrice *float64
	MaxPrice *float64
	Tags     []string
	OwnerID  string
	SortBy   string
	Order    string
	Limit    int
	Offset   int
}

type ListingRepository interface {
	Create(ctx context.Context, listing *model.Listing) error
	GetByID(ctx context.Context, id string) (*model.Listing, error)
	// List returns one page of matches plus the number of rows matching the
	// filter with pagination ignored.
	List(ctx context.Context, filter ListingFilter) ([]model.Listing, int, error)
	// Update applies patch only if the stored version still equals
	// expectedVersion, returning apperror.ErrConflict otherwise.
	Update(ctx context.Context, id string, patch model.ListingPatch, expectedVersion int64) (*model.Listing, error)
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	// Upsert creates the user on first sign-in or refreshes name/image on
	// later ones. Matching is by email.
	Upsert(ctx context.Context, user *model.User) error
	// CreateUser inserts a brand new account and fails with
	// apperror.ErrConflict when the email is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
	// DeleteUser removes the account; the schema cascades to owned listings.
	DeleteUser(ctx context.Context, id string) error
}
