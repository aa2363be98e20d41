// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces ownership, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Services return apperror values, never HTTP status codes. The handler
// translates domain errors to status codes, so the same rules apply to any
// caller (HTTP, the seeder, tests).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/auth"
	"github.com/bullaburg/game-saviour/internal/metrics"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/repository"
)

// Validation limits for listing fields.
const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 5000
	MaxTags              = 20
	MaxImages            = 10
)

// ListingCache is a read-through cache for single listings.
// GetListing returns (nil, nil) on a miss. Entries are stored without the
// owner summary; it is attached from the user store on every hit.
type ListingCache interface {
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	SetListing(ctx context.Context, listing *model.Listing) error
	DeleteListing(ctx context.Context, id string) error
}

// ListingService handles business logic for listings.
type ListingService struct {
	listings repository.ListingRepository
	users    repository.UserRepository
	cache    ListingCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// ListingOption configures optional ListingService collaborators.
type ListingOption func(*ListingService)

// WithCache enables the read-through cache for GetByID.
func WithCache(c ListingCache) ListingOption {
	return func(s *ListingService) { s.cache = c }
}

// WithMetrics counts successful listing mutations.
func WithMetrics(m *metrics.Metrics) ListingOption {
	return func(s *ListingService) { s.metrics = m }
}

func NewListingService(
	listings repository.ListingRepository,
	users repository.UserRepository,
	logger *slog.Logger,
	opts ...ListingOption,
) *ListingService {
	s := &ListingService{
		listings: listings,
		users:    users,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateListingInput is the payload of a new listing.
// PricePerHour is a pointer so "absent" can be told apart from 0.
type CreateListingInput struct {
	Game          string
	Title         string
	Description   string
	PricePerHour  *float64
	Availability  string
	Images        []string
	VoiceIntroURL *string
	Tags          []string

	// Invalid is a field the transport could not decode. It is reported as
	// a validation error once the caller has been checked.
	Invalid error
}

// UpdateListingInput is a partial update. Version, when set, must equal the
// stored version or the update is rejected with a conflict.
type UpdateListingInput struct {
	Patch   model.ListingPatch
	Version *int64
	Invalid error
}

// Create publishes a new listing owned by the caller.
//
// Order of checks:
//  1. the principal must have a backing user record (NotFound)
//  2. required fields and price must be valid (ValidationError)
func (s *ListingService) Create(ctx context.Context, p auth.Principal, in CreateListingInput) (*model.Listing, error) {
	owner, err := s.resolveOwner(ctx, p)
	if err != nil {
		return nil, err
	}
	if in.Invalid != nil {
		return nil, in.Invalid
	}

	listing := &model.Listing{
		UserID:        owner.ID,
		Game:          strings.TrimSpace(in.Game),
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		Availability:  strings.TrimSpace(in.Availability),
		Images:        cleanList(in.Images),
		Tags:          cleanList(in.Tags),
		VoiceIntroURL: cleanOptional(in.VoiceIntroURL),
	}

	required := []struct{ field, value string }{
		{"game", listing.Game},
		{"title", listing.Title},
		{"description", listing.Description},
		{"availability", listing.Availability},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, apperror.ValidationFailed(r.field, r.field+" is required")
		}
	}
	if in.PricePerHour == nil {
		return nil, apperror.ValidationFailed("pricePerHour", "pricePerHour is required")
	}
	listing.PricePerHour = *in.PricePerHour

	if err := validateListing(listing); err != nil {
		return nil, err
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to create listing",
			slog.String("userID", owner.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating listing: %w", err)
	}

	s.metrics.ListingCreated()
	s.logger.Info("listing created",
		slog.String("id", listing.ID),
		slog.String("userID", listing.UserID),
		slog.String("game", listing.Game),
	)

	return listing, nil
}

// GetByID returns a listing with its owner summary. No session is needed.
func (s *ListingService) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "listing ID is required")
	}

	if s.cache != nil {
		cached, err := s.fromCache(ctx, id)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.fill(ctx, listing)
	}

	return listing, nil
}

// fromCache returns a hit with its current owner summary, or nil on a miss.
// A hit whose owner no longer exists was removed with the owner's account;
// it is evicted and the read falls through to the store.
func (s *ListingService) fromCache(ctx context.Context, id string) (*model.Listing, error) {
	cached, err := s.cache.GetListing(ctx, id)
	if err != nil {
		s.logger.Warn("listing cache read failed", slog.String("id", id), slog.String("error", err.Error()))
		return nil, nil
	}
	if cached == nil {
		return nil, nil
	}

	owner, err := s.users.GetUserByID(ctx, cached.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.invalidate(ctx, id)
			return nil, nil
		}
		return nil, fmt.Errorf("loading listing owner: %w", err)
	}

	summary := owner.Summary()
	cached.Owner = &summary
	cached.NormalizeCollections()
	return cached, nil
}

// fill caches listing, then reads the row again. An Update or Delete that
// committed in between may have invalidated the key before this write, so
// the entry survives only if the store still holds the same version.
func (s *ListingService) fill(ctx context.Context, listing *model.Listing) {
	entry := *listing
	entry.Owner = nil
	if err := s.cache.SetListing(ctx, &entry); err != nil {
		s.logger.Warn("listing cache write failed", slog.String("id", listing.ID), slog.String("error", err.Error()))
		return
	}

	current, err := s.listings.GetByID(ctx, listing.ID)
	if err == nil && current.Version == listing.Version {
		return
	}
	s.invalidate(ctx, listing.ID)
}

// List runs a public listing search.
func (s *ListingService) List(ctx context.Context, q ListingQuery) (*ListingPage, error) {
	return s.search(ctx, q, q.Filter())
}

// ListMine runs a listing search restricted to the caller's own listings.
func (s *ListingService) ListMine(ctx context.Context, p auth.Principal, q ListingQuery) (*ListingPage, error) {
	owner, err := s.resolveOwner(ctx, p)
	if err != nil {
		return nil, err
	}

	filter := q.Filter()
	filter.OwnerID = owner.ID
	return s.search(ctx, q, filter)
}

func (s *ListingService) search(ctx context.Context, q ListingQuery, filter repository.ListingFilter) (*ListingPage, error) {
	listings, total, err := s.listings.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list listings", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	if listings == nil {
		listings = []model.Listing{}
	}

	return &ListingPage{
		Listings:   listings,
		TotalCount: total,
		PageInfo:   q.PageInfo(total),
	}, nil
}

// Update merges the supplied fields into a listing the caller owns.
//
// The version read during the ownership check is the compare-and-swap token
// for the store update, so a concurrent writer that got in first turns this
// call into a Conflict instead of being silently overwritten.
func (s *ListingService) Update(ctx context.Context, p auth.Principal, id string, in UpdateListingInput) (*model.Listing, error) {
	existing, err := s.authorize(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if in.Invalid != nil {
		return nil, in.Invalid
	}

	patch := normalizePatch(in.Patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	if in.Version != nil && *in.Version != existing.Version {
		return nil, apperror.Conflict(fmt.Sprintf(
			"listing %s is at version %d, not %d", id, existing.Version, *in.Version))
	}

	// Nothing to write: the stored listing is already the result.
	if patch.IsEmpty() {
		return existing, nil
	}

	updated, err := s.listings.Update(ctx, existing.ID, patch, existing.Version)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to update listing",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating listing: %w", err)
	}

	s.invalidate(ctx, id)
	s.metrics.ListingUpdated()
	s.logger.Info("listing updated",
		slog.String("id", updated.ID),
		slog.Int64("version", updated.Version),
	)

	return updated, nil
}

// Delete removes a listing the caller owns.
func (s *ListingService) Delete(ctx context.Context, p auth.Principal, id string) error {
	existing, err := s.authorize(ctx, p, id)
	if err != nil {
		return err
	}

	if err := s.listings.Delete(ctx, existing.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to delete listing",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting listing: %w", err)
	}

	s.invalidate(ctx, id)
	s.metrics.ListingDeleted()
	s.logger.Info("listing deleted", slog.String("id", id))
	return nil
}

// authorize loads the listing and checks that p owns it.
// NotFound wins over Forbidden: a stranger learns only that the ID is unknown
// when it really is unknown.
func (s *ListingService) authorize(ctx context.Context, p auth.Principal, id string) (*model.Listing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "listing ID is required")
	}

	existing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.UserID != p.UserID {
		return nil, apperror.Forbidden("you do not own this listing")
	}
	return existing, nil
}

// resolveOwner maps the session principal to its stored user.
// Listings are keyed by the token's user ID, so a token minted for a deleted
// account never reaches a later account registered with the same email.
func (s *ListingService) resolveOwner(ctx context.Context, p auth.Principal) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolving session user: %w", err)
	}
	return user, nil
}

func (s *ListingService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteListing(ctx, id); err != nil {
		s.logger.Warn("listing cache invalidation failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}

func validateListing(l *model.Listing) error {
	if err := validatePrice(l.PricePerHour); err != nil {
		return err
	}
	if len(l.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if len(l.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if len(l.Tags) > MaxTags {
		return apperror.ValidationFailed("tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	if len(l.Images) > MaxImages {
		return apperror.ValidationFailed("images", fmt.Sprintf("at most %d images are allowed", MaxImages))
	}
	return nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return apperror.ValidationFailed("pricePerHour", "pricePerHour must be a finite number")
	}
	if price < 0 {
		return apperror.ValidationFailed("pricePerHour", "pricePerHour must not be negative")
	}
	return nil
}

// validatePatch checks only the supplied fields. A supplied required field
// may not be blanked out.
func validatePatch(p model.ListingPatch) error {
	blank := []struct {
		field string
		value *string
	}{
		{"game", p.Game},
		{"title", p.Title},
		{"description", p.Description},
		{"availability", p.Availability},
	}
	for _, b := range blank {
		if b.value != nil && *b.value == "" {
			return apperror.ValidationFailed(b.field, b.field+" must not be empty")
		}
	}

	probe := model.Listing{}
	if p.PricePerHour != nil {
		probe.PricePerHour = *p.PricePerHour
	}
	if p.Title != nil {
		probe.Title = *p.Title
	}
	if p.Description != nil {
		probe.Description = *p.Description
	}
	if p.Tags != nil {
		probe.Tags = *p.Tags
	}
	if p.Images != nil {
		probe.Images = *p.Images
	}
	return validateListing(&probe)
}

func normalizePatch(p model.ListingPatch) model.ListingPatch {
	p.Game = trimPtr(p.Game)
	p.Title = trimPtr(p.Title)
	p.Description = trimPtr(p.Description)
	p.Availability = trimPtr(p.Availability)
	p.VoiceIntroURL = trimPtr(p.VoiceIntroURL)
	if p.Tags != nil {
		tags := cleanList(*p.Tags)
		p.Tags = &tags
	}
	if p.Images != nil {
		images := cleanList(*p.Images)
		p.Images = &images
	}
	return p
}

// cleanList trims entries and drops blanks. The result is never nil.
func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func cleanOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
