package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborsos/internal/ratelimit"
	"neighborsos/internal/service"
	"neighborsos/internal/util"
)

// MarketplaceHandler exposes the donor-facing marketplace: urgent
// needs, family sponsorships, charities, and success stories.
type MarketplaceHandler struct {
	marketplace  *service.MarketplaceService
	charities    *service.CharityService
	claimLimiter ratelimit.Checker
	recorder     AbuseRecorder
}

func NewMarketplaceHandler(
	marketplace *service.MarketplaceService,
	charities *service.CharityService,
	claimLimiter ratelimit.Checker,
	recorder AbuseRecorder,
) *MarketplaceHandler {
	return &MarketplaceHandler{
		marketplace:  marketplace,
		charities:    charities,
		claimLimiter: claimLimiter,
		recorder:     recorder,
	}
}

func (h *MarketplaceHandler) RegisterRoutes(router chi.Router) {
	router.Route("/urgent-needs", func(r chi.Router) {
		r.Get("/", h.ListNeeds)
		r.Post("/", h.CreateNeed)
		r.Post("/{needID}/claim", h.ClaimNeed)
		r.Delete("/{needID}", h.DeleteNeed)
	})

	router.Route("/families", func(r chi.Router) {
		r.Get("/", h.ListFamilies)
		r.Post("/", h.CreateFamily)
		r.Post("/{familyID}/sponsor", h.SponsorFamily)
		r.Delete("/{familyID}", h.DeleteFamily)
	})

	router.Route("/charities", func(r chi.Router) {
		r.Get("/", h.ListCharities)
		r.Post("/", h.Apply)
		r.Get("/{charityID}/urgent-needs", h.ListCharityNeeds)
		r.Get("/{charityID}/families", h.ListCharityFamilies)
	})

	router.Get("/stories", h.ListStories)
}

// ListNeeds serves the marketplace listing: open needs most-urgent
// first, optionally filtered by category and free-text query, and
// re-ordered nearest-first when the donor supplies a zip.
func (h *MarketplaceHandler) ListNeeds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	needs, err := h.marketplace.ListNeeds(r.Context(), q.Get("category"), q.Get("q"), q.Get("zip"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			respondWithError(w, http.StatusBadRequest, err, "Invalid zip code")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list needs")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(needs, ""))
}

func (h *MarketplaceHandler) CreateNeed(w http.ResponseWriter, r *http.Request) {
	var req service.NeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	need, err := h.marketplace.CreateNeed(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCharityNotFound):
			respondWithError(w, http.StatusNotFound, err, "Charity not found")
		case errors.Is(err, service.ErrCharityUnvetted):
			respondWithError(w, http.StatusForbidden, err, "Charity is not verified")
		case errors.Is(err, service.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err, "Invalid need")
		default:
			respondWithError(w, http.StatusInternalServerError, err, "Failed to create need")
		}
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(need, "Need posted"))
}

type claimBody struct {
	DonorEmail string `json:"donor_email"`
	Quantity   int    `json:"quantity"`
}

// ClaimNeed runs the claim flow behind the per-IP claim window.
func (h *MarketplaceHandler) ClaimNeed(w http.ResponseWriter, r *http.Request) {
	needID, err := uuid.Parse(chi.URLParam(r, "needID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid need ID")
		return
	}

	var body claimBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if !h.allowClaim(w, r) {
		return
	}

	need, err := h.marketplace.ClaimNeed(r.Context(), service.ClaimRequest{
		NeedID:     needID,
		DonorEmail: body.DonorEmail,
		Quantity:   body.Quantity,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNeedNotFound):
			respondWithError(w, http.StatusNotFound, err, "Need not found")
		case errors.Is(err, service.ErrNeedUnavailable):
			respondWithError(w, http.StatusConflict, err, "Need already claimed")
		case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err, "Invalid claim")
		default:
			respondWithError(w, http.StatusInternalServerError, err, "Failed to claim need")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(need, "Need claimed"))
}

func (h *MarketplaceHandler) DeleteNeed(w http.ResponseWriter, r *http.Request) {
	needID, err := uuid.Parse(chi.URLParam(r, "needID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid need ID")
		return
	}

	if err := h.marketplace.DeleteNeed(r.Context(), needID); err != nil {
		if errors.Is(err, service.ErrNeedNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Need not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to delete need")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Need deleted"))
}

func (h *MarketplaceHandler) ListFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := h.marketplace.ListFamilies(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list families")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(families, ""))
}

func (h *MarketplaceHandler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	var req service.FamilyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	family, err := h.marketplace.CreateFamily(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCharityNotFound):
			respondWithError(w, http.StatusNotFound, err, "Charity not found")
		case errors.Is(err, service.ErrCharityUnvetted):
			respondWithError(w, http.StatusForbidden, err, "Charity is not verified")
		case errors.Is(err, service.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err, "Invalid family")
		default:
			respondWithError(w, http.StatusInternalServerError, err, "Failed to create family")
		}
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(family, "Family posted"))
}

type sponsorBody struct {
	DonorName  string  `json:"donor_name"`
	DonorEmail string  `json:"donor_email"`
	Amount     float64 `json:"amount"`
}

func (h *MarketplaceHandler) SponsorFamily(w http.ResponseWriter, r *http.Request) {
	familyID, err := uuid.Parse(chi.URLParam(r, "familyID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid family ID")
		return
	}

	var body sponsorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if !h.allowClaim(w, r) {
		return
	}

	family, err := h.marketplace.SponsorFamily(r.Context(), service.SponsorRequest{
		FamilyID:   familyID,
		DonorName:  body.DonorName,
		DonorEmail: body.DonorEmail,
		Amount:     body.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFamilyNotFound):
			respondWithError(w, http.StatusNotFound, err, "Family not found")
		case errors.Is(err, service.ErrFamilyAdopted):
			respondWithError(w, http.StatusConflict, err, "Family already fully adopted")
		case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err, "Invalid sponsorship")
		default:
			respondWithError(w, http.StatusInternalServerError, err, "Failed to sponsor family")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(family, "Sponsorship recorded"))
}

func (h *MarketplaceHandler) DeleteFamily(w http.ResponseWriter, r *http.Request) {
	familyID, err := uuid.Parse(chi.URLParam(r, "familyID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid family ID")
		return
	}

	if err := h.marketplace.DeleteFamily(r.Context(), familyID); err != nil {
		if errors.Is(err, service.ErrFamilyNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Family not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to delete family")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Family deleted"))
}

// ListCharityNeeds serves a charity's own postings, claimed included.
func (h *MarketplaceHandler) ListCharityNeeds(w http.ResponseWriter, r *http.Request) {
	charityID, err := uuid.Parse(chi.URLParam(r, "charityID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid charity ID")
		return
	}

	needs, err := h.marketplace.ListNeedsByCharity(r.Context(), charityID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list needs")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(needs, ""))
}

func (h *MarketplaceHandler) ListCharityFamilies(w http.ResponseWriter, r *http.Request) {
	charityID, err := uuid.Parse(chi.URLParam(r, "charityID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid charity ID")
		return
	}

	families, err := h.marketplace.ListFamiliesByCharity(r.Context(), charityID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list families")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(families, ""))
}

func (h *MarketplaceHandler) ListCharities(w http.ResponseWriter, r *http.Request) {
	charities, err := h.charities.ListVerified(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list charities")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(charities, ""))
}

func (h *MarketplaceHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req service.CharityApplication
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	charity, err := h.charities.Apply(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			respondWithError(w, http.StatusBadRequest, err, "Invalid application")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to submit application")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(charity, "Application received"))
}

func (h *MarketplaceHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	stories, err := h.charities.ListStories(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list stories")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(stories, ""))
}

// allowClaim applies the per-IP claim window.
func (h *MarketplaceHandler) allowClaim(w http.ResponseWriter, r *http.Request) bool {
	res, err := h.claimLimiter.Check(r.Context(), ratelimit.ClientKey(r))
	if err != nil {
		util.Error("Rate limiter unavailable", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err, "Rate limiter unavailable")
		return false
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", res.Reset.UTC().Format(time.RFC3339))

	if !res.Allowed {
		if h.recorder != nil {
			h.recorder.RateLimited(r, "claim")
		}
		respondWithJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":     "rate limit exceeded",
			"limit":     res.Limit,
			"remaining": res.Remaining,
			"reset":     res.Reset.UTC().Format(time.RFC3339),
		})
		return false
	}
	return true
}
