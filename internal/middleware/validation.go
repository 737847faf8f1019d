package middleware

import (
	"errors"
	"strconv"
	"unicode/utf8"
)

// ParseID validates and parses a numeric path ID.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid ID format")
	}
	return id, nil
}

// ValidateName validates a world or character name.
func ValidateName(name string) error {
	if len(name) == 0 {
		return errors.New("name cannot be empty")
	}
	if len(name) > 100 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}

// ValidateTheme validates a discussion theme.
func ValidateTheme(theme string) error {
	if len(theme) == 0 {
		return errors.New("theme cannot be empty")
	}
	if len(theme) > 200 {
		return errors.New("theme exceeds maximum length")
	}
	if !utf8.ValidString(theme) {
		return errors.New("theme must be valid UTF-8")
	}
	return nil
}
