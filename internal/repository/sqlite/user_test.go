package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/repository"
)

// createTestUser is a test helper that upserts a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email: email,
		Name:  "User " + email,
		Image: "https://example.com/avatar.png",
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// UPSERT
// =========================================================================

func TestUpsert_NewUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Email: "new@example.com", Name: "New"}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Upsert() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Upsert() did not set user.CreatedAt")
	}
	if user.Languages == nil || user.Games == nil {
		t.Error("Upsert() left languages/games nil")
	}
}

func TestUpsert_ExistingUserKeepsIDAndProfile(t *testing.T) {
	db := newTestDB(t)
	first := createTestUser(t, db, "same@example.com")

	if _, err := db.UpdateUser(context.Background(), first.ID, model.UserPatch{
		Bio: ptr("I love games!"),
	}); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	second := &model.User{Email: "same@example.com", Name: "Renamed", Image: "new.png"}
	if err := db.Upsert(context.Background(), second); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("ID changed on re-upsert: %q -> %q", first.ID, second.ID)
	}
	if second.Name != "Renamed" || second.Image != "new.png" {
		t.Errorf("provider fields not refreshed: %+v", second)
	}
	if second.Bio != "I love games!" {
		t.Errorf("Bio = %q, user-edited profile must survive sign-in", second.Bio)
	}
}

// =========================================================================
// CREATE (registration)
// =========================================================================

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "taken@example.com")

	err := db.CreateUser(context.Background(), &model.User{Email: "taken@example.com", Name: "x"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}
}

func TestCreateUser_StoresPasswordHash(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Email: "reg@example.com", Name: "Reg", PasswordHash: "$2a$04$hash"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	found, err := db.GetUserByEmail(context.Background(), "reg@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if found.ID != user.ID || found.PasswordHash != "$2a$04$hash" {
		t.Errorf("GetUserByEmail() = %+v, want stored registration", found)
	}
}

// =========================================================================
// GET / UPDATE / DELETE
// =========================================================================

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateUser_PartialPatch(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "p@example.com")

	updated, err := db.UpdateUser(context.Background(), user.ID, model.UserPatch{
		Languages:  ptr([]string{"English", "Nepali"}),
		HourlyRate: ptr(10.0),
		IsOnline:   ptr(true),
	})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	if updated.Name != user.Name {
		t.Errorf("Name = %q, unsupplied field changed", updated.Name)
	}
	if len(updated.Languages) != 2 || updated.Languages[1] != "Nepali" {
		t.Errorf("Languages = %v", updated.Languages)
	}
	if updated.HourlyRate == nil || *updated.HourlyRate != 10 {
		t.Errorf("HourlyRate = %v, want 10", updated.HourlyRate)
	}
	if !updated.IsOnline {
		t.Error("IsOnline = false, want true")
	}
}

func TestDeleteUser_CascadesListings(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "gone@example.com")
	keeper := createTestUser(t, db, "stays@example.com")
	doomed := createTestListing(t, db, owner.ID, "Valorant", 10)
	kept := createTestListing(t, db, keeper.ID, "Valorant", 10)

	if err := db.DeleteUser(context.Background(), owner.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	if _, err := db.GetByID(context.Background(), doomed.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("owned listing still present after user delete: err = %v", err)
	}
	if _, err := db.GetByID(context.Background(), kept.ID); err != nil {
		t.Errorf("other user's listing affected: %v", err)
	}

	_, total, _ := db.List(context.Background(), repository.ListingFilter{})
	if total != 1 {
		t.Errorf("total listings = %d, want 1", total)
	}
}

func TestDeleteUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.DeleteUser(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteUser() error = %v, want ErrNotFound", err)
	}
}
