package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"neighborsos/internal/identity"
)

type fakeResolver struct {
	emails map[string]string
	err    error
}

func (f *fakeResolver) ResolveEmail(_ context.Context, token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if email, ok := f.emails[token]; ok {
		return email, nil
	}
	return "", identity.ErrUnauthenticated
}

type fakeAllowList struct {
	granted map[string]bool
	err     error
}

func (f *fakeAllowList) Exists(_ context.Context, email string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.granted[email], nil
}

type denialLog struct {
	reasons []string
}

func (d *denialLog) GateDenied(_ *http.Request, reason string) {
	d.reasons = append(d.reasons, reason)
}

func serve(g *Gate, path string, token string) *httptest.ResponseRecorder {
	passed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("inside"))
	})

	r := httptest.NewRequest("GET", path, nil)
	if token != "" {
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	}
	w := httptest.NewRecorder()
	g.Middleware(passed).ServeHTTP(w, r)
	return w
}

func TestGateExemptPaths(t *testing.T) {
	// Resolver and allow-list that would deny everything: exempt paths
	// must pass without consulting either.
	g := New(
		&fakeResolver{err: errors.New("must not be called")},
		&fakeAllowList{err: errors.New("must not be called")},
		nil,
	)

	for _, path := range []string{
		"/coming-soon",
		"/login",
		"/signup",
		"/admin",
		"/admin/charities",
		"/api/v1/urgent-needs",
		"/static/app.css",
		"/favicon.ico",
		"/health",
	} {
		w := serve(g, path, "")
		assert.Equal(t, http.StatusOK, w.Code, "path %s should be exempt", path)
	}
}

func TestGatePrefixMatchIsSegmentAware(t *testing.T) {
	g := New(&fakeResolver{}, &fakeAllowList{}, nil)

	// "/loginx" shares a prefix string with "/login" but is a
	// different path and must be gated.
	w := serve(g, "/loginx", "")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, HoldingPage, w.Header().Get("Location"))
}

func TestGateDeniesWithoutSession(t *testing.T) {
	denials := &denialLog{}
	g := New(&fakeResolver{}, &fakeAllowList{}, denials)

	w := serve(g, "/marketplace", "")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, HoldingPage, w.Header().Get("Location"))
	assert.Equal(t, []string{"no_session"}, denials.reasons)
}

func TestGateDeniesInvalidToken(t *testing.T) {
	denials := &denialLog{}
	g := New(&fakeResolver{emails: map[string]string{}}, &fakeAllowList{}, denials)

	w := serve(g, "/marketplace", "stale-token")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, []string{"invalid_token"}, denials.reasons)
}

func TestGateAdmitsGrantedEmail(t *testing.T) {
	g := New(
		&fakeResolver{emails: map[string]string{"tok": "donor@example.com"}},
		&fakeAllowList{granted: map[string]bool{"donor@example.com": true}},
		nil,
	)

	w := serve(g, "/marketplace", "tok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inside", w.Body.String())
}

func TestGateCaseInsensitiveEmailMatch(t *testing.T) {
	// Provider returns mixed case; the stored grant is lower-cased.
	g := New(
		&fakeResolver{emails: map[string]string{"tok": "Donor@Example.COM"}},
		&fakeAllowList{granted: map[string]bool{"donor@example.com": true}},
		nil,
	)

	w := serve(g, "/marketplace", "tok")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateDeniesSignedInButNotGranted(t *testing.T) {
	denials := &denialLog{}
	g := New(
		&fakeResolver{emails: map[string]string{"tok": "other@example.com"}},
		&fakeAllowList{granted: map[string]bool{"donor@example.com": true}},
		denials,
	)

	w := serve(g, "/marketplace", "tok")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, []string{"not_granted"}, denials.reasons)
}

func TestGateFailsClosed(t *testing.T) {
	t.Run("resolver outage", func(t *testing.T) {
		denials := &denialLog{}
		g := New(
			&fakeResolver{err: errors.New("provider down")},
			&fakeAllowList{granted: map[string]bool{"donor@example.com": true}},
			denials,
		)

		w := serve(g, "/marketplace", "tok")
		assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
		assert.Equal(t, []string{"resolver_error"}, denials.reasons)
	})

	t.Run("allow-list outage", func(t *testing.T) {
		denials := &denialLog{}
		g := New(
			&fakeResolver{emails: map[string]string{"tok": "donor@example.com"}},
			&fakeAllowList{err: errors.New("db down")},
			denials,
		)

		w := serve(g, "/marketplace", "tok")
		assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
		assert.Equal(t, []string{"lookup_error"}, denials.reasons)
	})
}

func TestGateRevocationIsImmediate(t *testing.T) {
	allow := &fakeAllowList{granted: map[string]bool{"donor@example.com": true}}
	g := New(
		&fakeResolver{emails: map[string]string{"tok": "donor@example.com"}},
		allow,
		nil,
	)

	w := serve(g, "/marketplace", "tok")
	assert.Equal(t, http.StatusOK, w.Code)

	// Admin removes the grant; the very next request is denied.
	allow.granted["donor@example.com"] = false

	w = serve(g, "/marketplace", "tok")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
}
