// Package model defines the data structures used throughout the application.
package model

import "time"

// Listing is a posted offer of a paid gaming-companion session.
//
// UserID is a plain reference to the owning User; the store guarantees it
// pointed at an existing user when the listing was created. Version starts
// at 1 and increases on every successful update, so writers can detect that
// someone else changed the row after they read it.
//
// Tags and Images are never nil on a listing returned by this package's
// consumers: NormalizeCollections replaces nil with empty slices so the JSON
// output is always [] instead of null.
type Listing struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	Game          string        `json:"game"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	PricePerHour  float64       `json:"pricePerHour"`
	Availability  string        `json:"availability"`
	Images        []string      `json:"images"`
	VoiceIntroURL *string       `json:"voiceIntroUrl"`
	Tags          []string      `json:"tags"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Owner         *OwnerSummary `json:"user,omitempty"`
}

// OwnerSummary is the public slice of a User embedded in listing reads.
type OwnerSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	IsOnline bool   `json:"isOnline"`
}

// NormalizeCollections replaces nil Tags/Images with empty slices.
func (l *Listing) NormalizeCollections() {
	if l.Tags == nil {
		l.Tags = []string{}
	}
	if l.Images == nil {
		l.Images = []string{}
	}
}

// ListingPatch is a partial update. A nil field means "leave unchanged".
//
// Identity and bookkeeping fields (ID, UserID, CreatedAt, Version) have no
// counterpart here on purpose, so they can never be smuggled into an update.
type ListingPatch struct {
	Game          *string
	Title         *string
	Description   *string
	PricePerHour  *float64
	Availability  *string
	Images        *[]string
	VoiceIntroURL *string
	Tags          *[]string
}

// IsEmpty reports whether the patch changes no field.
func (p ListingPatch) IsEmpty() bool {
	return p.Game == nil && p.Title == nil && p.Description == nil &&
		p.PricePerHour == nil && p.Availability == nil && p.Images == nil &&
		p.VoiceIntroURL == nil && p.Tags == nil
}
