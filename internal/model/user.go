package model

import "time"

// User represents a marketplace account.
//
// Users are keyed internally by an xid string. Email is the natural key: a
// Google sign-in upserts by email, and the /api/users/me endpoints look the
// principal up by email.
//
// PasswordHash is only set for accounts created through registration and is
// never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Image        string    `json:"image"`
	Bio          string    `json:"bio"`
	Languages    []string  `json:"languages"`
	Games        []string  `json:"games"`
	HourlyRate   *float64  `json:"hourlyRate"`
	IsOnline     bool      `json:"isOnline"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicProfile is what other signed-in users may see about an account.
type PublicProfile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Image      string    `json:"image"`
	Bio        string    `json:"bio"`
	Languages  []string  `json:"languages"`
	Games      []string  `json:"games"`
	HourlyRate *float64  `json:"hourlyRate"`
	IsOnline   bool      `json:"isOnline"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Public strips the private fields (email, password hash) from u.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:         u.ID,
		Name:       u.Name,
		Image:      u.Image,
		Bio:        u.Bio,
		Languages:  u.Languages,
		Games:      u.Games,
		HourlyRate: u.HourlyRate,
		IsOnline:   u.IsOnline,
		CreatedAt:  u.CreatedAt,
	}
}

// Summary is the owner view embedded in listing reads.
func (u *User) Summary() OwnerSummary {
	return OwnerSummary{ID: u.ID, Name: u.Name, Image: u.Image, IsOnline: u.IsOnline}
}

// UserPatch is a partial profile update; nil fields are left unchanged.
// PasswordHash is set by the service after hashing, never from a request.
type UserPatch struct {
	Name         *string
	Image        *string
	Bio          *string
	Languages    *[]string
	Games        *[]string
	HourlyRate   *float64
	IsOnline     *bool
	PasswordHash *string
}
