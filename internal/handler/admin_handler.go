package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"neighborsos/internal/gate"
	"neighborsos/internal/identity"
	"neighborsos/internal/service"
	"neighborsos/internal/util"
)

// AdminHandler is the management surface: early-access grants, charity
// review, and success stories. Every route sits behind adminOnly.
type AdminHandler struct {
	access    *service.AccessService
	charities *service.CharityService
	resolver  identity.Resolver
}

func NewAdminHandler(
	access *service.AccessService,
	charities *service.CharityService,
	resolver identity.Resolver,
) *AdminHandler {
	return &AdminHandler{
		access:    access,
		charities: charities,
		resolver:  resolver,
	}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(h.adminOnly)

		r.Route("/early-access", func(r chi.Router) {
			r.Get("/", h.ListGrants)
			r.Post("/", h.CreateGrant)
			r.Delete("/{grantID}", h.DeleteGrant)
		})

		r.Route("/charities", func(r chi.Router) {
			r.Get("/pending", h.ListPendingCharities)
			r.Post("/{charityID}/approve", h.ApproveCharity)
			r.Post("/{charityID}/reject", h.RejectCharity)
		})

		r.Post("/stories", h.CreateStory)
	})
}

// adminOnly resolves the session and requires an operator record. The
// admin surface answers JSON, so failures are 401/403, not redirects.
func (h *AdminHandler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(gate.SessionCookie)
		if err != nil || cookie.Value == "" {
			respondWithError(w, http.StatusUnauthorized, service.ErrPermissionDenied, "Sign in required")
			return
		}

		email, err := h.resolver.ResolveEmail(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				respondWithError(w, http.StatusUnauthorized, service.ErrPermissionDenied, "Sign in required")
				return
			}
			respondWithError(w, http.StatusServiceUnavailable, err, "Identity provider unavailable")
			return
		}

		isAdmin, err := h.access.IsAdmin(r.Context(), email)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err, "Failed to check permissions")
			return
		}
		if !isAdmin {
			util.Warn("Non-admin attempted management action",
				zap.String("email", email),
				zap.String("path", r.URL.Path))
			respondWithError(w, http.StatusForbidden, service.ErrPermissionDenied, "Admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.access.List(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list grants")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(grants, ""))
}

type grantBody struct {
	Email string `json:"email"`
	Notes string `json:"notes"`
}

func (h *AdminHandler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var body grantBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	grant, err := h.access.Grant(r.Context(), body.Email, body.Notes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyGranted):
			respondWithError(w, http.StatusConflict, err, "Email already has access")
		case errors.Is(err, service.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err, "Invalid email")
		default:
			respondWithError(w, http.StatusInternalServerError, err, "Failed to create grant")
		}
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(grant, "Access granted"))
}

func (h *AdminHandler) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	grantID, err := uuid.Parse(chi.URLParam(r, "grantID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid grant ID")
		return
	}

	if err := h.access.Revoke(r.Context(), grantID); err != nil {
		if errors.Is(err, service.ErrGrantNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Grant not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to revoke grant")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Access revoked"))
}

func (h *AdminHandler) ListPendingCharities(w http.ResponseWriter, r *http.Request) {
	pending, err := h.charities.ListPending(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to list applications")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(pending, ""))
}

func (h *AdminHandler) ApproveCharity(w http.ResponseWriter, r *http.Request) {
	charityID, err := uuid.Parse(chi.URLParam(r, "charityID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid charity ID")
		return
	}

	if err := h.charities.Approve(r.Context(), charityID); err != nil {
		if errors.Is(err, service.ErrCharityNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Charity not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to approve charity")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Charity approved"))
}

func (h *AdminHandler) RejectCharity(w http.ResponseWriter, r *http.Request) {
	charityID, err := uuid.Parse(chi.URLParam(r, "charityID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid charity ID")
		return
	}

	if err := h.charities.Reject(r.Context(), charityID); err != nil {
		if errors.Is(err, service.ErrCharityNotFound) {
			respondWithError(w, http.StatusNotFound, err, "Charity not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to reject charity")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Charity rejected"))
}

type storyBody struct {
	Title       string `json:"title"`
	Story       string `json:"story"`
	CharityName string `json:"charity_name"`
}

func (h *AdminHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	var body storyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	story, err := h.charities.PublishStory(r.Context(), body.Title, body.Story, body.CharityName)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			respondWithError(w, http.StatusBadRequest, err, "Title and story are required")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Failed to publish story")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(story, "Story published"))
}
