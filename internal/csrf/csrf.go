package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Cookie holds the per-visitor salt; the matching token travels in the
// request body or header. A forged cross-site request can send the
// cookie (the browser does that for free) but cannot read it to build
// the matching token.
const (
	Cookie      = "nsos-csrf"
	HeaderToken = "X-CSRF-Token"
	cookieTTL   = 4 * time.Hour
)

var ErrInvalidToken = errors.New("invalid csrf token")

// Issuer mints and verifies double-submit tokens keyed by a server
// secret.
type Issuer struct {
	secret []byte
	secure bool
}

func NewIssuer(secret string, secure bool) *Issuer {
	return &Issuer{secret: []byte(secret), secure: secure}
}

// Issue writes the salt cookie and returns the token the client must
// echo back.
func (i *Issuer) Issue(w http.ResponseWriter) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate csrf salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	http.SetCookie(w, &http.Cookie{
		Name:     Cookie,
		Value:    saltHex,
		Path:     "/",
		MaxAge:   int(cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteStrictMode,
	})

	return saltHex + "." + i.sign(saltHex), nil
}

// Verify checks the token from the request against the salt cookie.
func (i *Issuer) Verify(r *http.Request, token string) error {
	cookie, err := r.Cookie(Cookie)
	if err != nil || cookie.Value == "" {
		return ErrInvalidToken
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return ErrInvalidToken
	}
	salt, mac := parts[0], parts[1]

	if subtleCompare(salt, cookie.Value) && subtleCompare(mac, i.sign(salt)) {
		return nil
	}
	return ErrInvalidToken
}

func (i *Issuer) sign(salt string) string {
	h := hmac.New(sha256.New, i.secret)
	h.Write([]byte(salt))
	return hex.EncodeToString(h.Sum(nil))
}

func subtleCompare(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
