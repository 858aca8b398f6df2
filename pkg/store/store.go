package store

import (
	"context"
	"time"

	"drivex/pkg/domain"
)

// Store defines persistence operations for users and file metadata.
// Every file operation that reads or mutates a single record takes the
// owner ID and applies it in the same query as the record ID.
type Store interface {
	// users
	UpsertUserByEmail(ctx context.Context, u domain.User) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)

	// files
	CreateFile(ctx context.Context, f domain.File) error
	ListFilesByOwner(ctx context.Context, ownerID string) ([]domain.File, error)
	ListTrashedByOwner(ctx context.Context, ownerID string) ([]domain.File, error)
	GetFile(ctx context.Context, id, ownerID string) (domain.File, bool, error)
	RenameFile(ctx context.Context, id, ownerID, name string) (domain.File, bool, error)
	SetStarred(ctx context.Context, id, ownerID string, starred bool) (domain.File, bool, error)
	SetTrashed(ctx context.Context, id, ownerID string, trashed bool) (domain.File, bool, error)
	DeleteFile(ctx context.Context, id, ownerID string) (domain.File, bool, error)

	// reconciliation
	FilePathExists(ctx context.Context, filePath string) (bool, error)
	ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.File, error)
	// PurgeTrashed deletes the row only if it is still trashed with
	// trashed_at before cutoff; a concurrent restore wins.
	PurgeTrashed(ctx context.Context, id, ownerID string, cutoff time.Time) (domain.File, bool, error)
}

// SessionStore issues and resolves session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
