package postgres

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a point read matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique
	// constraint (e.g. an already-granted early-access email).
	ErrDuplicate = errors.New("duplicate record")
)

func toLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
