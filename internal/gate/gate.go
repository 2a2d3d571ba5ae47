package gate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"neighborsos/internal/identity"
	"neighborsos/internal/util"
)

// SessionCookie carries the auth provider's access token.
const SessionCookie = "sb-access-token"

// HoldingPage is where every unadmitted visitor lands.
const HoldingPage = "/coming-soon"

// DefaultExemptPrefixes are the paths the gate never inspects: the
// holding page itself, auth entry points, the API surface (which does
// its own checks), static assets, and health probes. Everything else
// on the site is gated.
var DefaultExemptPrefixes = []string{
	"/admin",
	"/login",
	"/signup",
	"/coming-soon",
	"/api",
	"/static",
	"/favicon.ico",
	"/health",
}

// AllowChecker answers whether an email is on the early-access
// allow-list.
type AllowChecker interface {
	Exists(ctx context.Context, email string) (bool, error)
}

// DenialRecorder observes gate denials for abuse analytics. Recording
// is best effort and never blocks or fails the request.
type DenialRecorder interface {
	GateDenied(r *http.Request, reason string)
}

// Gate is the pre-launch access boundary. One middleware makes the
// whole decision: exempt-path check, token resolution, allow-list
// lookup. Any failure along the way denies: the gate fails closed, and
// the visitor only ever sees the holding page, never an error.
type Gate struct {
	resolver identity.Resolver
	allow    AllowChecker
	recorder DenialRecorder
	exempt   []string
}

func New(resolver identity.Resolver, allow AllowChecker, recorder DenialRecorder) *Gate {
	return &Gate{
		resolver: resolver,
		allow:    allow,
		recorder: recorder,
		exempt:   DefaultExemptPrefixes,
	}
}

// Middleware wraps a handler with the gate decision.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.isExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		email, reason := g.admit(r)
		if reason != "" {
			g.deny(w, r, reason)
			return
		}

		util.Debug("Gate admitted visitor",
			zap.String("path", r.URL.Path),
			zap.String("email", email))
		next.ServeHTTP(w, r)
	})
}

// admit returns the visitor's email when they pass, or a denial
// reason.
func (g *Gate) admit(r *http.Request) (string, string) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return "", "no_session"
	}

	email, err := g.resolver.ResolveEmail(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) {
			return "", "invalid_token"
		}
		// Provider outage: fail closed rather than open the site.
		util.Warn("Gate identity resolution failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return "", "resolver_error"
	}

	granted, err := g.allow.Exists(r.Context(), strings.ToLower(email))
	if err != nil {
		util.Warn("Gate allow-list lookup failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return "", "lookup_error"
	}
	if !granted {
		return "", "not_granted"
	}

	return email, ""
}

func (g *Gate) deny(w http.ResponseWriter, r *http.Request, reason string) {
	if g.recorder != nil {
		g.recorder.GateDenied(r, reason)
	}
	http.Redirect(w, r, HoldingPage, http.StatusTemporaryRedirect)
}

func (g *Gate) isExempt(path string) bool {
	for _, prefix := range g.exempt {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
