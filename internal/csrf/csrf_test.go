package csrf

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("test-secret", false)

	w := httptest.NewRecorder()
	token, err := issuer.Issue(w)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, Cookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	r := httptest.NewRequest("POST", "/api/v1/send-email", nil)
	r.AddCookie(cookies[0])
	assert.NoError(t, issuer.Verify(r, token))
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := NewIssuer("test-secret", false)

	w := httptest.NewRecorder()
	token, err := issuer.Issue(w)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/api/v1/send-email", nil)
	r.AddCookie(w.Result().Cookies()[0])

	assert.ErrorIs(t, issuer.Verify(r, token+"x"), ErrInvalidToken)
	assert.ErrorIs(t, issuer.Verify(r, "not-even-a-token"), ErrInvalidToken)
	assert.ErrorIs(t, issuer.Verify(r, ""), ErrInvalidToken)
}

func TestVerifyRejectsMissingCookie(t *testing.T) {
	issuer := NewIssuer("test-secret", false)

	w := httptest.NewRecorder()
	token, err := issuer.Issue(w)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/api/v1/send-email", nil)
	assert.ErrorIs(t, issuer.Verify(r, token), ErrInvalidToken)
}

func TestVerifyRejectsMismatchedSalt(t *testing.T) {
	issuer := NewIssuer("test-secret", false)

	// Token from one visitor, cookie from another.
	w1 := httptest.NewRecorder()
	token, err := issuer.Issue(w1)
	require.NoError(t, err)

	w2 := httptest.NewRecorder()
	_, err = issuer.Issue(w2)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/api/v1/send-email", nil)
	r.AddCookie(w2.Result().Cookies()[0])
	assert.ErrorIs(t, issuer.Verify(r, token), ErrInvalidToken)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	theirs := NewIssuer("their-secret", false)
	ours := NewIssuer("our-secret", false)

	w := httptest.NewRecorder()
	token, err := theirs.Issue(w)
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/api/v1/send-email", nil)
	r.AddCookie(w.Result().Cookies()[0])
	assert.ErrorIs(t, ours.Verify(r, token), ErrInvalidToken)
}
