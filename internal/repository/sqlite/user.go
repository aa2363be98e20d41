package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `
	id, email, name, image, bio, languages, games, hourly_rate, is_online,
	password_hash, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u          model.User
		languages  string
		games      string
		hourlyRate sql.NullFloat64
	)

	if err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Image, &u.Bio, &languages, &games,
		&hourlyRate, &u.IsOnline, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if u.Languages, err = decodeStrings(languages); err != nil {
		return nil, fmt.Errorf("decoding languages: %w", err)
	}
	if u.Games, err = decodeStrings(games); err != nil {
		return nil, fmt.Errorf("decoding games: %w", err)
	}
	if hourlyRate.Valid {
		rate := hourlyRate.Float64
		u.HourlyRate = &rate
	}

	return &u, nil
}

func getUser(ctx context.Context, q querier, column, value string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s %s: %w", column, value, err)
	}
	return u, nil
}

// Upsert inserts or refreshes a user keyed by email.
//
// Used by the OAuth callback: the first sign-in creates the row, later
// sign-ins only refresh name and image from the identity provider (the
// profile fields the user edited themselves are left alone). The caller's
// struct is replaced with the stored row.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	languages, err := encodeStrings(user.Languages)
	if err != nil {
		return fmt.Errorf("sqlite: encoding languages: %w", err)
	}
	games, err := encodeStrings(user.Games)
	if err != nil {
		return fmt.Errorf("sqlite: encoding games: %w", err)
	}

	now := time.Now().UTC()

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, image, bio, languages, games, hourly_rate,
		                    is_online, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		     name = excluded.name,
		     image = excluded.image,
		     updated_at = excluded.updated_at`,
		xid.New().String(),
		user.Email,
		user.Name,
		user.Image,
		user.Bio,
		languages,
		games,
		user.HourlyRate,
		user.IsOnline,
		user.PasswordHash,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user %s: %w", user.Email, err)
	}

	stored, err := getUser(ctx, db.conn, "email", user.Email)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// CreateUser inserts a new account created through registration.
// Returns apperror.ErrConflict if the email is already registered.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	languages, err := encodeStrings(user.Languages)
	if err != nil {
		return fmt.Errorf("sqlite: encoding languages: %w", err)
	}
	games, err := encodeStrings(user.Games)
	if err != nil {
		return fmt.Errorf("sqlite: encoding games: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ?`, user.Email,
	).Scan(&existing); err != nil {
		return fmt.Errorf("sqlite: checking email %s: %w", user.Email, err)
	}
	if existing > 0 {
		return apperror.Conflict("email already in use")
	}

	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Languages, user.Games = nonNil(user.Languages), nonNil(user.Games)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, image, bio, languages, games, hourly_rate,
		                    is_online, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.Image,
		user.Bio,
		languages,
		games,
		user.HourlyRate,
		user.IsOnline,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user %s: %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, db.conn, "id", id)
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return getUser(ctx, db.conn, "email", email)
}

// UpdateUser applies a partial profile update and returns the stored row.
func (db *DB) UpdateUser(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Image != nil {
		set("image", *patch.Image)
	}
	if patch.Bio != nil {
		set("bio", *patch.Bio)
	}
	if patch.Languages != nil {
		languages, err := encodeStrings(*patch.Languages)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding languages: %w", err)
		}
		set("languages", languages)
	}
	if patch.Games != nil {
		games, err := encodeStrings(*patch.Games)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding games: %w", err)
		}
		set("games", games)
	}
	if patch.HourlyRate != nil {
		set("hourly_rate", *patch.HourlyRate)
	}
	if patch.IsOnline != nil {
		set("is_online", *patch.IsOnline)
	}
	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}

	args = append(args, id)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, apperror.NotFound("user", id)
	}

	return getUser(ctx, db.conn, "id", id)
}

// DeleteUser removes a user. listings.user_id is declared ON DELETE CASCADE,
// so the user's listings go with them in the same statement.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
