package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", SanitizeText("  <b>hi</b>  "))
	assert.Equal(t, "plain", SanitizeText("plain"))
}

func TestSanitizeHTMLStripsScripts(t *testing.T) {
	in := `<p>hello</p><script>alert(1)</script><iframe src="x"></iframe><a href="javascript:void(0)" onclick=steal()>x</a>`
	out := SanitizeHTML(in)
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "<iframe")
	assert.NotContains(t, out, "javascript:")
	assert.NotContains(t, out, "onclick=")
	assert.Contains(t, out, "<p>hello</p>")
}

func TestSanitizeEmail(t *testing.T) {
	got, err := SanitizeEmail("  Friend@Example.ORG ")
	require.NoError(t, err)
	assert.Equal(t, "friend@example.org", got)

	_, err = SanitizeEmail("not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestSanitizeZipCode(t *testing.T) {
	got, err := SanitizeZipCode("98052-1234")
	require.NoError(t, err)
	assert.Equal(t, "98052", got)

	_, err = SanitizeZipCode("1234")
	assert.ErrorIs(t, err, ErrInvalidZip)
}

func TestSanitizePhone(t *testing.T) {
	got, err := SanitizePhone("555.123.4567")
	require.NoError(t, err)
	assert.Equal(t, "(555) 123-4567", got)

	// optional field: empty stays empty
	got, err = SanitizePhone("")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = SanitizePhone("12345")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestContainsSuspicious(t *testing.T) {
	assert.True(t, ContainsSuspicious(`<SCRIPT>alert(1)</SCRIPT>`))
	assert.True(t, ContainsSuspicious(`x onerror=1`))
	assert.False(t, ContainsSuspicious("a perfectly normal donation note"))
}
