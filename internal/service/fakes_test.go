package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/auth"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/repository"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// In-memory implementations of the repository interfaces. They follow the
// same contracts as the SQLite store (NotFound/Conflict errors, copies in
// and out) so service tests exercise the real business rules without disk.

type fakeUserRepo struct {
	users  map[string]*model.User // keyed by ID
	nextID int

	// set to a non-nil error to simulate a database failure
	err error

	// listings is cascaded on DeleteUser when set.
	listings *fakeListingRepo
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) findByEmail(email string) *model.User {
	for _, u := range f.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (f *fakeUserRepo) insert(user *model.User) {
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
}

func (f *fakeUserRepo) Upsert(_ context.Context, user *model.User) error {
	if f.err != nil {
		return f.err
	}
	if existing := f.findByEmail(user.Email); existing != nil {
		existing.Name = user.Name
		existing.Image = user.Image
		existing.UpdatedAt = time.Now().UTC()
		*user = *existing
		return nil
	}
	f.insert(user)
	return nil
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if f.err != nil {
		return f.err
	}
	if f.findByEmail(user.Email) != nil {
		return apperror.Conflict("email already in use")
	}
	f.insert(user)
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u := f.findByEmail(email)
	if u == nil {
		return nil, apperror.NotFound("user", email)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, id string, p model.UserPatch) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Image != nil {
		u.Image = *p.Image
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Languages != nil {
		u.Languages = *p.Languages
	}
	if p.Games != nil {
		u.Games = *p.Games
	}
	if p.HourlyRate != nil {
		u.HourlyRate = p.HourlyRate
	}
	if p.IsOnline != nil {
		u.IsOnline = *p.IsOnline
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	u.UpdatedAt = time.Now().UTC()
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) DeleteUser(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	if f.listings != nil {
		for lid, l := range f.listings.listings {
			if l.UserID == id {
				delete(f.listings.listings, lid)
			}
		}
	}
	return nil
}

type fakeListingRepo struct {
	listings map[string]*model.Listing
	users    *fakeUserRepo
	nextID   int

	err error
	// lastFilter records the filter of the most recent List call.
	lastFilter repository.ListingFilter
	// afterGet runs after GetByID has copied the row, standing in for a
	// request that commits between this read and the caller's next step.
	afterGet func(id string)
}

var _ repository.ListingRepository = (*fakeListingRepo)(nil)

func newFakeListingRepo(users *fakeUserRepo) *fakeListingRepo {
	r := &fakeListingRepo{listings: make(map[string]*model.Listing), users: users}
	users.listings = r
	return r
}

func (f *fakeListingRepo) Create(_ context.Context, l *model.Listing) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users.users[l.UserID]; !ok {
		return apperror.NotFound("user", l.UserID)
	}
	f.nextID++
	l.ID = fmt.Sprintf("listing-%02d", f.nextID)
	l.Version = 1
	l.CreatedAt = time.Now().UTC().Add(time.Duration(f.nextID) * time.Millisecond)
	l.UpdatedAt = l.CreatedAt
	l.NormalizeCollections()
	stored := *l
	f.listings[l.ID] = &stored
	return nil
}

func (f *fakeListingRepo) GetByID(_ context.Context, id string) (*model.Listing, error) {
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.listings[id]
	if !ok {
		return nil, apperror.NotFound("listing", id)
	}
	copied := *l
	if hook := f.afterGet; hook != nil {
		f.afterGet = nil
		hook(id)
	}
	return &copied, nil
}

func (f *fakeListingRepo) List(_ context.Context, filter repository.ListingFilter) ([]model.Listing, int, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, 0, f.err
	}

	var matched []model.Listing
	for _, l := range f.listings {
		if filter.Game != "" && l.Game != filter.Game {
			continue
		}
		if filter.MinPrice != nil && l.PricePerHour < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && l.PricePerHour > *filter.MaxPrice {
			continue
		}
		if filter.OwnerID != "" && l.UserID != filter.OwnerID {
			continue
		}
		if len(filter.Tags) > 0 && !slices.ContainsFunc(l.Tags, func(t string) bool {
			return slices.Contains(filter.Tags, t)
		}) {
			continue
		}
		matched = append(matched, *l)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if filter.Offset >= total {
		return []model.Listing{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (f *fakeListingRepo) Update(_ context.Context, id string, p model.ListingPatch, expectedVersion int64) (*model.Listing, error) {
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.listings[id]
	if !ok {
		return nil, apperror.NotFound("listing", id)
	}
	if l.Version != expectedVersion {
		return nil, apperror.Conflict("listing " + id + " was modified by another request")
	}
	if p.Game != nil {
		l.Game = *p.Game
	}
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.PricePerHour != nil {
		l.PricePerHour = *p.PricePerHour
	}
	if p.Availability != nil {
		l.Availability = *p.Availability
	}
	if p.Images != nil {
		l.Images = *p.Images
	}
	if p.VoiceIntroURL != nil {
		l.VoiceIntroURL = p.VoiceIntroURL
	}
	if p.Tags != nil {
		l.Tags = *p.Tags
	}
	l.Version++
	l.UpdatedAt = time.Now().UTC()
	copied := *l
	return &copied, nil
}

func (f *fakeListingRepo) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.listings[id]; !ok {
		return apperror.NotFound("listing", id)
	}
	delete(f.listings, id)
	return nil
}

// fakeCache is an in-memory ListingCache that counts hits.
type fakeCache struct {
	entries map[string]model.Listing
	hits    int
	err     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]model.Listing)}
}

func (c *fakeCache) GetListing(_ context.Context, id string) (*model.Listing, error) {
	if c.err != nil {
		return nil, c.err
	}
	l, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &l, nil
}

func (c *fakeCache) SetListing(_ context.Context, l *model.Listing) error {
	if c.err != nil {
		return c.err
	}
	c.entries[l.ID] = *l
	return nil
}

func (c *fakeCache) DeleteListing(_ context.Context, id string) error {
	delete(c.entries, id)
	return c.err
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T { return &v }

// seedUser stores a user and returns the principal a session for it would carry.
func seedUser(t *testing.T, users *fakeUserRepo, email string) auth.Principal {
	t.Helper()
	u := &model.User{Email: email, Name: email}
	if err := users.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return auth.Principal{UserID: u.ID, Email: u.Email}
}
