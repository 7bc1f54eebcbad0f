// Package validator provides input validation and sanitization functions
// for the relaypost API layer.
package validator

import (
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Validation errors
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrInvalidURL       = errors.New("invalid webhook URL")
	ErrInvalidEventType = errors.New("unknown event type")
	ErrInputTooLong     = errors.New("input exceeds maximum length")
	ErrEmptyInput       = errors.New("input cannot be empty")
)

// ValidateEmail validates email address format according to RFC 5322.
// Returns nil if valid, or an appropriate error.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)

	if email == "" {
		return ErrEmptyInput
	}

	// RFC 5321 specifies max email length of 254 characters
	if utf8.RuneCountInString(email) > 254 {
		return ErrInputTooLong
	}

	// Use Go's mail package for RFC 5322 validation
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	return nil
}

// ValidateWebhookURL checks that a webhook target is an absolute http or
// https URL with a host.
func ValidateWebhookURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)

	if rawURL == "" {
		return ErrEmptyInput
	}

	if len(rawURL) > 2048 {
		return ErrInputTooLong
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}

	return nil
}

// ValidateEventTypes checks that every entry names a known event type.
func ValidateEventTypes(eventTypes []string, known []string) error {
	if len(eventTypes) == 0 {
		return ErrEmptyInput
	}

	for _, et := range eventTypes {
		found := false
		for _, k := range known {
			if et == k {
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidEventType
		}
	}

	return nil
}

// Pagination constants
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ValidatePagination validates and sanitizes pagination parameters.
// Returns sanitized limit and offset values.
func ValidatePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
