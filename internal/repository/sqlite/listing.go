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

// compile-time check that *DB implements repository.ListingRepository
var _ repository.ListingRepository = (*DB)(nil)

const (
	defaultListingLimit = 10
	maxListingLimit     = 100
)

// listingColumns is the single SELECT list for listing reads, so every query
// scans columns in the same order. The owner summary comes from the join.
const listingColumns = `
	l.id, l.user_id, l.game, l.title, l.description, l.price_per_hour,
	l.availability, l.images, l.voice_intro_url, l.tags, l.version,
	l.created_at, l.updated_at,
	u.id, u.name, u.image, u.is_online`

const listingFrom = ` FROM listings l JOIN users u ON u.id = l.user_id`

// sortColumns maps the JSON field names accepted in ?sortBy= to SQL columns.
// Anything not in this map falls back to the default order. Never interpolate
// a user-supplied string into ORDER BY directly.
var sortColumns = map[string]string{
	"pricePerHour": "l.price_per_hour",
	"createdAt":    "l.created_at",
	"updatedAt":    "l.updated_at",
	"title":        "l.title",
	"game":         "l.game",
}

// querier is the subset shared by *sql.DB and *sql.Tx that the read helpers need.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var (
		l          model.Listing
		owner      model.OwnerSummary
		images     string
		tags       string
		voiceIntro sql.NullString
	)

	if err := row.Scan(
		&l.ID, &l.UserID, &l.Game, &l.Title, &l.Description, &l.PricePerHour,
		&l.Availability, &images, &voiceIntro, &tags, &l.Version,
		&l.CreatedAt, &l.UpdatedAt,
		&owner.ID, &owner.Name, &owner.Image, &owner.IsOnline,
	); err != nil {
		return nil, err
	}

	var err error
	if l.Images, err = decodeStrings(images); err != nil {
		return nil, fmt.Errorf("decoding images: %w", err)
	}
	if l.Tags, err = decodeStrings(tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if voiceIntro.Valid {
		v := voiceIntro.String
		l.VoiceIntroURL = &v
	}
	l.Owner = &owner

	return &l, nil
}

func getListing(ctx context.Context, q querier, id string) (*model.Listing, error) {
	listing, err := scanListing(q.QueryRowContext(ctx,
		`SELECT `+listingColumns+listingFrom+` WHERE l.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("listing", id)
		}
		return nil, fmt.Errorf("sqlite: getting listing %s: %w", id, err)
	}
	return listing, nil
}

// Create inserts a new listing owned by listing.UserID.
//
// The owner lookup and the INSERT run in one transaction so the "owner must
// exist" rule can't race a concurrent account deletion. On success the
// caller's struct is replaced with the stored row, owner summary included.
func (db *DB) Create(ctx context.Context, listing *model.Listing) error {
	images, err := encodeStrings(listing.Images)
	if err != nil {
		return fmt.Errorf("sqlite: encoding images: %w", err)
	}
	tags, err := encodeStrings(listing.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	var owners int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ?`, listing.UserID,
	).Scan(&owners); err != nil {
		return fmt.Errorf("sqlite: checking owner %s: %w", listing.UserID, err)
	}
	if owners == 0 {
		return apperror.NotFound("user", listing.UserID)
	}

	now := time.Now().UTC()
	id := xid.New().String()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO listings (id, user_id, game, title, description, price_per_hour,
		                       availability, images, voice_intro_url, tags, version,
		                       created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id,
		listing.UserID,
		listing.Game,
		listing.Title,
		listing.Description,
		listing.PricePerHour,
		listing.Availability,
		images,
		listing.VoiceIntroURL,
		tags,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating listing: %w", err)
	}

	stored, err := getListing(ctx, tx, id)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing listing %s: %w", id, err)
	}

	*listing = *stored
	return nil
}

// GetByID returns the listing joined with its owner's public fields.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	return getListing(ctx, db.conn, id)
}

// List runs a filtered, sorted, paginated search.
//
// DYNAMIC WHERE:
// Each supplied filter appends one clause and its arguments; absent filters
// add nothing, so an empty filter matches every row. Clauses are ANDed.
// Values always travel as ? placeholders; only whitelisted column names are
// ever concatenated into the SQL text.
//
// The COUNT runs first and separately because the pool has one connection
// and the page query's rows must be fully drained before anything else runs.
func (db *DB) List(ctx context.Context, filter repository.ListingFilter) ([]model.Listing, int, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.Game != "" {
		clauses = append(clauses, "l.game = ?")
		args = append(args, filter.Game)
	}
	if filter.MinPrice != nil {
		clauses = append(clauses, "l.price_per_hour >= ?")
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		clauses = append(clauses, "l.price_per_hour <= ?")
		args = append(args, *filter.MaxPrice)
	}
	if len(filter.Tags) > 0 {
		// Tag-set intersection: at least one stored tag is in the requested set.
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Tags)), ", ")
		clauses = append(clauses,
			`EXISTS (SELECT 1 FROM json_each(l.tags) WHERE json_each.value IN (`+placeholders+`))`)
		for _, tag := range filter.Tags {
			args = append(args, tag)
		}
	}
	if filter.OwnerID != "" {
		clauses = append(clauses, "l.user_id = ?")
		args = append(args, filter.OwnerID)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings l`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting listings: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListingLimit
	}
	if limit > maxListingLimit {
		limit = maxListingLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + listingColumns + listingFrom + where +
		` ORDER BY ` + orderClause(filter.SortBy, filter.Order) +
		` LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing listings: %w", err)
	}
	defer rows.Close()

	listings := make([]model.Listing, 0, limit)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning listing row: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating listings: %w", err)
	}

	return listings, total, nil
}

// orderClause resolves sortBy/order against the whitelist. The id tiebreak
// keeps pages stable when many rows share the sort key.
func orderClause(sortBy, order string) string {
	column, ok := sortColumns[sortBy]
	if !ok {
		return "l.created_at DESC, l.id DESC"
	}
	dir := "ASC"
	if order == repository.OrderDesc {
		dir = "DESC"
	}
	return column + " " + dir + ", l.id " + dir
}

// Update applies a partial update guarded by the listing version.
//
// COMPARE-AND-SWAP:
// The WHERE clause includes version = expectedVersion. If another request
// updated the row after our caller read it, no row matches and we report a
// conflict instead of silently overwriting their change. A zero-row result
// is disambiguated with an existence check: missing row → NotFound.
//
// Only fields present in the patch are written; updated_at and version are
// always bumped.
func (db *DB) Update(ctx context.Context, id string, patch model.ListingPatch, expectedVersion int64) (*model.Listing, error) {
	sets := []string{"updated_at = ?", "version = version + 1"}
	args := []any{time.Now().UTC()}

	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Game != nil {
		set("game", *patch.Game)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.PricePerHour != nil {
		set("price_per_hour", *patch.PricePerHour)
	}
	if patch.Availability != nil {
		set("availability", *patch.Availability)
	}
	if patch.Images != nil {
		images, err := encodeStrings(*patch.Images)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding images: %w", err)
		}
		set("images", images)
	}
	if patch.VoiceIntroURL != nil {
		set("voice_intro_url", *patch.VoiceIntroURL)
	}
	if patch.Tags != nil {
		tags, err := encodeStrings(*patch.Tags)
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding tags: %w", err)
		}
		set("tags", tags)
	}

	args = append(args, id, expectedVersion)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE listings SET `+strings.Join(sets, ", ")+` WHERE id = ? AND version = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating listing %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM listings WHERE id = ?`, id,
		).Scan(&count); err != nil {
			return nil, fmt.Errorf("sqlite: checking listing %s: %w", id, err)
		}
		if count == 0 {
			return nil, apperror.NotFound("listing", id)
		}
		return nil, apperror.Conflict(fmt.Sprintf("listing %s was modified by another request", id))
	}

	updated, err := getListing(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing listing %s: %w", id, err)
	}

	return updated, nil
}

// Delete removes a listing by its ID.
// Check RowsAffected to detect "not found".
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM listings WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting listing %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("listing", id)
	}

	return nil
}
