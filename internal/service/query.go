package service

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/repository"
)

// Paging defaults for listing searches.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// sortable lists the values accepted for ?sortBy=. Anything else falls back
// to newest first.
var sortable = map[string]bool{
	"pricePerHour": true,
	"createdAt":    true,
	"updatedAt":    true,
	"title":        true,
	"game":         true,
}

// ListingQuery is a parsed, normalized listing search.
type ListingQuery struct {
	Game     string
	MinPrice *float64
	MaxPrice *float64
	Tags     []string
	SortBy   string
	Order    string
	Take     int
	Skip     int
}

// PageInfo describes the window a ListingPage was cut from.
type PageInfo struct {
	Take    int  `json:"take"`
	Skip    int  `json:"skip"`
	HasMore bool `json:"hasMore"`
}

// ListingPage is the response body of a listing search.
type ListingPage struct {
	Listings   []model.Listing `json:"listings"`
	TotalCount int             `json:"totalCount"`
	PageInfo   PageInfo        `json:"pageInfo"`
}

// ParseListingQuery turns URL query parameters into a ListingQuery.
//
// Parsing never fails. A malformed value behaves as if the parameter were
// absent:
//
//	?minPrice=abc      → no lower bound
//	?take=0, ?take=-3  → DefaultPageSize
//	?take=500          → MaxPageSize
//	?skip=-1           → 0
//	?sortBy=owner      → default order (createdAt desc)
func ParseListingQuery(values url.Values) ListingQuery {
	q := ListingQuery{
		Game:     strings.TrimSpace(values.Get("game")),
		MinPrice: parsePrice(values.Get("minPrice")),
		MaxPrice: parsePrice(values.Get("maxPrice")),
		Take:     DefaultPageSize,
	}

	for _, tag := range values["tag"] {
		if tag = strings.TrimSpace(tag); tag != "" {
			q.Tags = append(q.Tags, tag)
		}
	}

	if sortBy := values.Get("sortBy"); sortable[sortBy] {
		q.SortBy = sortBy
		q.Order = repository.OrderAsc
		if strings.EqualFold(values.Get("order"), repository.OrderDesc) {
			q.Order = repository.OrderDesc
		}
	}

	if take, err := strconv.Atoi(values.Get("take")); err == nil && take > 0 {
		q.Take = min(take, MaxPageSize)
	}
	if skip, err := strconv.Atoi(values.Get("skip")); err == nil && skip > 0 {
		q.Skip = skip
	}

	return q
}

func parsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Filter converts the query into a store filter.
func (q ListingQuery) Filter() repository.ListingFilter {
	return repository.ListingFilter{
		Game:     q.Game,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Tags:     q.Tags,
		SortBy:   q.SortBy,
		Order:    q.Order,
		Limit:    q.Take,
		Offset:   q.Skip,
	}
}

// PageInfo reports the window for a result set of total rows.
func (q ListingQuery) PageInfo(total int) PageInfo {
	return PageInfo{
		Take:    q.Take,
		Skip:    q.Skip,
		HasMore: q.Skip+q.Take < total,
	}
}
