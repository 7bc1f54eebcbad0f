package repository

import (
	"errors"
	"strings"
)

// Common repository errors
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// isDuplicateKeyError checks if the error is a unique constraint violation.
// Covers PostgreSQL (production) and SQLite (tests).
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "23505") // PostgreSQL unique_violation
}
