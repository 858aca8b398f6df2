package app

import "errors"

var (
	// ErrUnauthenticated means no valid session accompanies the request.
	ErrUnauthenticated = errors.New("user not authenticated")
	// ErrInvalidIdentity means the identity provider did not vouch for the caller.
	ErrInvalidIdentity = errors.New("invalid identity")

	ErrFileRequired    = errors.New("file required")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrNameRequired    = errors.New("file name required")
	ErrNameTooLong     = errors.New("file name too long")

	// ErrNotFound covers both a missing record and a record owned by someone else.
	ErrNotFound = errors.New("file not found or not authorized")
	// ErrUserNotFound is returned when a session outlives its user row.
	ErrUserNotFound = errors.New("user not found")
)
