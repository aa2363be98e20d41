package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bullaburg/game-saviour/internal/apperror"
	"github.com/bullaburg/game-saviour/internal/model"
	"github.com/bullaburg/game-saviour/internal/service"
)

// ListingHandler serves /api/listings and /api/my-listings.
type ListingHandler struct {
	listings *service.ListingService
	logger   *slog.Logger
}

func NewListingHandler(listings *service.ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, logger: logger}
}

// price accepts pricePerHour as a JSON number or a numeric string, since
// HTML form front ends tend to post "12.5".
//
// A value that is neither does not fail decoding. It is kept in err and
// handed to the service, which reports it after the ownership checks.
type price struct {
	value float64
	err   error
}

func (p *price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			p.err = errNotANumber()
			return nil
		}
		data = []byte(strings.TrimSpace(s))
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		p.err = errNotANumber()
		return nil
	}
	p.value = v
	return nil
}

func errNotANumber() error {
	return apperror.ValidationFailed("pricePerHour", "pricePerHour must be a number")
}

func (p *price) float() *float64 {
	if p == nil || p.err != nil {
		return nil
	}
	v := p.value
	return &v
}

func (p *price) invalid() error {
	if p == nil {
		return nil
	}
	return p.err
}

type createListingRequest struct {
	Game          string   `json:"game"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	PricePerHour  *price   `json:"pricePerHour"`
	Availability  string   `json:"availability"`
	Images        []string `json:"images"`
	VoiceIntroURL *string  `json:"voiceIntroUrl"`
	Tags          []string `json:"tags"`
}

// updateListingRequest has one pointer per patchable field. id, userId and
// createdAt are not listed, so a client sending them has no effect.
type updateListingRequest struct {
	Game          *string   `json:"game"`
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	PricePerHour  *price    `json:"pricePerHour"`
	Availability  *string   `json:"availability"`
	Images        *[]string `json:"images"`
	VoiceIntroURL *string   `json:"voiceIntroUrl"`
	Tags          *[]string `json:"tags"`
	Version       *int64    `json:"version"`
}

// HandleCreate publishes a listing for the caller.
//
// HTTP: POST /api/listings → 201 with the stored listing
func (h *ListingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req createListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	listing, err := h.listings.Create(r.Context(), p, service.CreateListingInput{
		Game:          req.Game,
		Title:         req.Title,
		Description:   req.Description,
		PricePerHour:  req.PricePerHour.float(),
		Availability:  req.Availability,
		Images:        req.Images,
		VoiceIntroURL: req.VoiceIntroURL,
		Tags:          req.Tags,
		Invalid:       req.PricePerHour.invalid(),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// HandleGetByID returns one listing with its owner summary. Public.
//
// HTTP: GET /api/listings/{id}
func (h *ListingHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// HandleList searches listings. Public.
//
// HTTP: GET /api/listings?game=&minPrice=&maxPrice=&tag=&sortBy=&order=&take=&skip=
func (h *ListingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.listings.List(r.Context(), service.ParseListingQuery(r.URL.Query()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// HandleListMine returns the caller's own listings, paged like HandleList.
//
// HTTP: GET /api/my-listings
func (h *ListingHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	page, err := h.listings.ListMine(r.Context(), p, service.ParseListingQuery(r.URL.Query()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// HandleUpdate merges the supplied fields into a listing the caller owns.
//
// HTTP: PUT /api/listings/{id}
func (h *ListingHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	listing, err := h.listings.Update(r.Context(), p, chi.URLParam(r, "id"), service.UpdateListingInput{
		Patch: model.ListingPatch{
			Game:          req.Game,
			Title:         req.Title,
			Description:   req.Description,
			PricePerHour:  req.PricePerHour.float(),
			Availability:  req.Availability,
			Images:        req.Images,
			VoiceIntroURL: req.VoiceIntroURL,
			Tags:          req.Tags,
		},
		Version: req.Version,
		Invalid: req.PricePerHour.invalid(),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// HandleDelete removes a listing the caller owns.
//
// HTTP: DELETE /api/listings/{id} → 200 {"message": "...", "id": "..."}
func (h *ListingHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.listings.Delete(r.Context(), p, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "listing deleted",
		"id":      id,
	})
}
