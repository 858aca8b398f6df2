package util

import "github.com/google/uuid"

// NewID returns a time-ordered UUID (v7) string, falling back to v4 if the
// clock source fails.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// IsCanonicalUUID reports whether s is a UUID in the 36-character hyphenated
// form. Braced, URN and bare-hex spellings are rejected so that one record
// has exactly one valid id string.
func IsCanonicalUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
