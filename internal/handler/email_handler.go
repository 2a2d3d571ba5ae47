package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"

	"neighborsos/internal/csrf"
	"neighborsos/internal/mailer"
	"neighborsos/internal/ratelimit"
	"neighborsos/internal/service"
	"neighborsos/internal/util"
)

// maxHTMLBytes caps the relayed message body.
const maxHTMLBytes = 50_000

// AbuseRecorder observes rate-limit rejections; nil-safe via NopSink.
type AbuseRecorder interface {
	RateLimited(r *http.Request, limiterName string)
}

// EmailHandler exposes the outbound-mail surface: the notification
// relay, the contact form, and the CSRF token both need before
// posting.
type EmailHandler struct {
	sender         mailer.Sender
	access         *service.AccessService
	issuer         *csrf.Issuer
	emailLimiter   ratelimit.Checker
	contactLimiter ratelimit.Checker
	recorder       AbuseRecorder
	contactInbox   string
	apiSecret      string
}

func NewEmailHandler(
	sender mailer.Sender,
	access *service.AccessService,
	issuer *csrf.Issuer,
	emailLimiter ratelimit.Checker,
	contactLimiter ratelimit.Checker,
	recorder AbuseRecorder,
	contactInbox string,
	apiSecret string,
) *EmailHandler {
	return &EmailHandler{
		sender:         sender,
		access:         access,
		issuer:         issuer,
		emailLimiter:   emailLimiter,
		contactLimiter: contactLimiter,
		recorder:       recorder,
		contactInbox:   contactInbox,
		apiSecret:      apiSecret,
	}
}

func (h *EmailHandler) RegisterRoutes(router chi.Router) {
	router.Get("/csrf-token", h.IssueCSRFToken)
	router.Post("/send-email", h.SendEmail)
	router.Post("/contact", h.Contact)
	router.Post("/signup", h.Signup)
}

// IssueCSRFToken hands the browser a token for subsequent POSTs.
func (h *EmailHandler) IssueCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.issuer.Issue(w)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to issue token")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"token": token}, ""))
}

type sendEmailRequest struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	CSRFToken string `json:"csrf_token"`
}

// SendEmail relays one notification message. The window is keyed by
// the caller's network address, like every other limited endpoint.
func (h *EmailHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req sendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := h.verifyCSRF(r, req.CSRFToken); err != nil {
		respondWithError(w, http.StatusForbidden, err, "CSRF check failed")
		return
	}

	to, err := util.SanitizeEmail(req.To)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid recipient")
		return
	}
	subject := util.SanitizeText(req.Subject)
	if subject == "" || req.HTML == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Subject and body are required")
		return
	}
	if len(req.HTML) > maxHTMLBytes {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Email body too large")
		return
	}

	if !h.allow(w, r, h.emailLimiter, "email", ratelimit.ClientKey(r)) {
		return
	}

	if err := h.sender.Send([]string{to}, subject, util.SanitizeHTML(req.HTML)); err != nil {
		respondWithError(w, http.StatusBadGateway, err, "Failed to send email")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Email sent"))
}

type contactRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	CSRFToken string `json:"csrf_token"`
}

// Contact forwards a contact-form message to the team inbox. The
// window is keyed by client IP.
func (h *EmailHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := h.verifyCSRF(r, req.CSRFToken); err != nil {
		respondWithError(w, http.StatusForbidden, err, "CSRF check failed")
		return
	}

	from, err := util.SanitizeEmail(req.Email)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid email")
		return
	}
	name := util.SanitizeText(req.Name)
	message := util.SanitizeText(req.Message)
	if name == "" || message == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Name and message are required")
		return
	}
	if util.ContainsSuspicious(req.Message) || util.ContainsSuspicious(req.Name) {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Message rejected")
		return
	}

	if !h.allow(w, r, h.contactLimiter, "contact", ratelimit.ClientKey(r)) {
		return
	}

	body := fmt.Sprintf("<p>From: %s (%s)</p><p>%s</p>", name, from, message)
	if err := h.sender.Send([]string{h.contactInbox}, "Contact form message", body); err != nil {
		respondWithError(w, http.StatusBadGateway, err, "Failed to send message")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Message sent"))
}

type signupRequest struct {
	Email string `json:"email"`
}

// Signup records a launch-notification request from the holding page.
func (h *EmailHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	err := h.access.Signup(r.Context(), req.Email)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusCreated, successResponse(nil, "You're on the list"))
	case errors.Is(err, service.ErrAlreadySignedUp):
		respondWithError(w, http.StatusConflict, err, "Already signed up")
	case errors.Is(err, service.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err, "Invalid email")
	default:
		respondWithError(w, http.StatusInternalServerError, err, "Failed to sign up")
	}
}

// allow runs one limiter check, writes the X-RateLimit headers, and on
// a denial answers 429 with the reset time. A limiter store error is a
// 500: the caller did nothing wrong and must not be told to back off.
func (h *EmailHandler) allow(w http.ResponseWriter, r *http.Request, limiter ratelimit.Checker, name, key string) bool {
	res, err := limiter.Check(r.Context(), key)
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
			h.recorder.RateLimited(r, name)
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

func (h *EmailHandler) verifyCSRF(r *http.Request, bodyToken string) error {
	token := bodyToken
	if token == "" {
		token = r.Header.Get(csrf.HeaderToken)
	}
	return h.issuer.Verify(r, token)
}

// authorize enforces the shared secret on the relay endpoint when one
// is configured. Server-to-server callers use this instead of a
// browser session.
func (h *EmailHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.apiSecret == "" {
		return true
	}
	if r.Header.Get("X-Api-Secret") != h.apiSecret {
		respondWithError(w, http.StatusUnauthorized, service.ErrPermissionDenied, "Invalid API secret")
		return false
	}
	return true
}
