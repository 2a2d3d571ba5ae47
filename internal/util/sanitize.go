package util

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	ErrInvalidEmail = errors.New("invalid email format")
	ErrInvalidZip   = errors.New("invalid zip code")
	ErrInvalidPhone = errors.New("invalid phone number")

	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	scriptPattern  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	iframePattern  = regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`)
	jsProtoPattern = regexp.MustCompile(`(?i)javascript:`)
	onAttrPattern  = regexp.MustCompile(`(?i)on\w+\s*=`)
	nonDigit       = regexp.MustCompile(`\D`)
)

// SanitizeText escapes HTML so user-supplied text can never render as markup.
func SanitizeText(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// SanitizeHTML strips script/iframe blocks, javascript: URLs, and inline
// event handlers from HTML destined for outbound email bodies.
func SanitizeHTML(s string) string {
	s = scriptPattern.ReplaceAllString(s, "")
	s = iframePattern.ReplaceAllString(s, "")
	s = jsProtoPattern.ReplaceAllString(s, "")
	s = onAttrPattern.ReplaceAllString(s, "")
	return s
}

// SanitizeEmail trims, validates, and lower-cases an email address.
// Lower-casing on write keeps whitelist comparisons collation-independent.
func SanitizeEmail(email string) (string, error) {
	cleaned := strings.TrimSpace(email)
	if !IsValidEmail(cleaned) {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(cleaned), nil
}

// IsValidEmail reports whether the address has a plausible shape.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// SanitizeZipCode reduces input to the 5-digit US zip it contains.
func SanitizeZipCode(zip string) (string, error) {
	digits := nonDigit.ReplaceAllString(zip, "")
	if len(digits) != 5 {
		return "", ErrInvalidZip
	}
	return digits, nil
}

// SanitizePhone reduces input to 10 digits and formats it (555) 123-4567.
func SanitizePhone(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", nil
	}
	digits := nonDigit.ReplaceAllString(phone, "")
	if len(digits) != 10 {
		return "", ErrInvalidPhone
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:]), nil
}

// ContainsSuspicious flags obvious script-injection attempts in free text.
func ContainsSuspicious(s string) bool {
	lowered := strings.ToLower(s)
	for _, c := range []string{"<script", "onerror", "onload", "javascript:"} {
		if strings.Contains(lowered, c) {
			return true
		}
	}
	return false
}
