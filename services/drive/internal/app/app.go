package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"drivex/internal/util"
	"drivex/pkg/auth"
	"drivex/pkg/domain"
	"drivex/pkg/storage"
	"drivex/pkg/store"
	"drivex/services/drive/internal/identity"
)

// Config holds the dependencies of the drive application.
type Config struct {
	Store    store.Store
	Blobs    storage.BlobStore
	Sessions store.SessionStore
	Identity identity.Verifier
	// Sealer protects provider access tokens at rest. Nil stores them as-is.
	Sealer *auth.Sealer

	MaxUploadBytes int64
	TrashRetention time.Duration
	SweepGrace     time.Duration
}

// App coordinates file metadata in the store with file bytes in the blob store.
type App struct {
	store    store.Store
	blobs    storage.BlobStore
	sessions store.SessionStore
	identity identity.Verifier
	sealer   *auth.Sealer

	maxUploadBytes int64
	trashRetention time.Duration
	sweepGrace     time.Duration
	now            func() time.Time
	newKey         func(string) string
}

// New validates the dependencies and builds the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity verifier required")
	}
	sealer := cfg.Sealer
	if sealer == nil {
		sealer = &auth.Sealer{}
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	retention := cfg.TrashRetention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	grace := cfg.SweepGrace
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	return &App{
		store:          cfg.Store,
		blobs:          cfg.Blobs,
		sessions:       cfg.Sessions,
		identity:       cfg.Identity,
		sealer:         sealer,
		maxUploadBytes: maxBytes,
		trashRetention: retention,
		sweepGrace:     grace,
		now:            time.Now,
		newKey:         NewStorageKey,
	}, nil
}

// MaxUploadBytes reports the configured upload ceiling.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// UploadInput is one file received from a client.
type UploadInput struct {
	Name        string
	ContentType string
	// Size is the size declared by the client; the stored size is what was read.
	Size int64
	Body io.Reader
}

// UploadFile writes the blob first and then the metadata row. A failed insert
// deletes the blob again; anything that survives a crash in between is
// collected by the reconciliation sweep.
func (a *App) UploadFile(ctx context.Context, userID string, in UploadInput) (domain.File, error) {
	name := displayName(in.Name)
	if in.Body == nil || name == "" {
		return domain.File{}, ErrFileRequired
	}
	if err := ValidateUpload(in.ContentType, in.Size, a.maxUploadBytes); err != nil {
		return domain.File{}, err
	}
	if len([]rune(name)) > maxFileNameRunes {
		return domain.File{}, ErrNameTooLong
	}
	contentType := NormalizeContentType(in.ContentType)
	logger := util.LoggerFromContext(ctx)

	key, written, err := a.putBlob(ctx, name, in.Body, contentType)
	if err != nil {
		return domain.File{}, err
	}

	now := a.now().UTC()
	file := domain.File{
		ID:        util.NewID(),
		UserID:    userID,
		FileName:  name,
		FileType:  contentType,
		FileSize:  written,
		FilePath:  domain.UploadsPrefix + key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateFile(ctx, file); err != nil {
		// The request context may already be canceled; compensation must still run.
		if derr := a.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			logger.Error("upload compensation failed", "key", key, "err", derr)
		}
		return domain.File{}, fmt.Errorf("insert file row: %w", err)
	}
	logger.Info("file uploaded", "file_id", file.ID, "user_id", userID, "size", written, "type", contentType)
	return file, nil
}

func (a *App) putBlob(ctx context.Context, name string, body io.Reader, contentType string) (string, int64, error) {
	key := a.newKey(name)
	written, err := a.blobs.Put(ctx, key, body, a.maxUploadBytes, contentType)
	switch {
	case err == nil:
		return key, written, nil
	case errors.Is(err, storage.ErrTooLarge):
		return "", 0, ErrFileTooLarge
	case errors.Is(err, storage.ErrBlobExists):
		// Nothing was read from body yet, so a fresh key can retry.
		key = a.newKey(name)
		written, err = a.blobs.Put(ctx, key, body, a.maxUploadBytes, contentType)
		if errors.Is(err, storage.ErrTooLarge) {
			return "", 0, ErrFileTooLarge
		}
		if err != nil {
			return "", 0, fmt.Errorf("write blob: %w", err)
		}
		return key, written, nil
	default:
		return "", 0, fmt.Errorf("write blob: %w", err)
	}
}

// ListFiles returns the caller's files outside the trash, newest first.
func (a *App) ListFiles(ctx context.Context, userID string) ([]domain.File, error) {
	files, err := a.store.ListFilesByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// ListTrash returns the caller's trashed files.
func (a *App) ListTrash(ctx context.Context, userID string) ([]domain.File, error) {
	files, err := a.store.ListTrashedByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	return files, nil
}

// GetFile returns one of the caller's files.
func (a *App) GetFile(ctx context.Context, userID, fileID string) (domain.File, error) {
	if !validID(fileID) {
		return domain.File{}, ErrNotFound
	}
	file, ok, err := a.store.GetFile(ctx, fileID, userID)
	if err != nil {
		return domain.File{}, fmt.Errorf("get file: %w", err)
	}
	if !ok {
		return domain.File{}, ErrNotFound
	}
	return file, nil
}

// OpenContent returns an owned file together with its open blob.
// The caller must close the object.
func (a *App) OpenContent(ctx context.Context, userID, fileID string) (domain.File, *storage.Object, error) {
	file, err := a.GetFile(ctx, userID, fileID)
	if err != nil {
		return domain.File{}, nil, err
	}
	obj, err := a.blobs.Open(ctx, blobKey(file.FilePath))
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			util.LoggerFromContext(ctx).Error("file row without blob", "file_id", file.ID, "file_path", file.FilePath)
			return domain.File{}, nil, ErrNotFound
		}
		return domain.File{}, nil, fmt.Errorf("open blob: %w", err)
	}
	return file, obj, nil
}

// OpenUpload opens a blob by storage key for the read-only uploads mount.
// Only keys referenced by a metadata row are served.
func (a *App) OpenUpload(ctx context.Context, key string) (*storage.Object, error) {
	if storage.ValidateKey(key) != nil {
		return nil, ErrNotFound
	}
	exists, err := a.store.FilePathExists(ctx, domain.UploadsPrefix+key)
	if err != nil {
		return nil, fmt.Errorf("lookup upload: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	obj, err := a.blobs.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return obj, nil
}

// RenameFile changes the display name of an owned file. The storage key and
// path never change.
func (a *App) RenameFile(ctx context.Context, userID, fileID, newName string) (domain.File, error) {
	name, err := validateName(newName)
	if err != nil {
		return domain.File{}, err
	}
	if !validID(fileID) {
		return domain.File{}, ErrNotFound
	}
	file, ok, err := a.store.RenameFile(ctx, fileID, userID, name)
	if err != nil {
		return domain.File{}, fmt.Errorf("rename file: %w", err)
	}
	if !ok {
		return domain.File{}, ErrNotFound
	}
	return file, nil
}

// SetStarred stars or unstars an owned file.
func (a *App) SetStarred(ctx context.Context, userID, fileID string, starred bool) (domain.File, error) {
	if !validID(fileID) {
		return domain.File{}, ErrNotFound
	}
	file, ok, err := a.store.SetStarred(ctx, fileID, userID, starred)
	if err != nil {
		return domain.File{}, fmt.Errorf("star file: %w", err)
	}
	if !ok {
		return domain.File{}, ErrNotFound
	}
	return file, nil
}

// TrashFile hides an owned file from listings until restored or purged.
func (a *App) TrashFile(ctx context.Context, userID, fileID string) (domain.File, error) {
	return a.setTrashed(ctx, userID, fileID, true)
}

// RestoreFile brings a trashed file back.
func (a *App) RestoreFile(ctx context.Context, userID, fileID string) (domain.File, error) {
	return a.setTrashed(ctx, userID, fileID, false)
}

func (a *App) setTrashed(ctx context.Context, userID, fileID string, trashed bool) (domain.File, error) {
	if !validID(fileID) {
		return domain.File{}, ErrNotFound
	}
	file, ok, err := a.store.SetTrashed(ctx, fileID, userID, trashed)
	if err != nil {
		return domain.File{}, fmt.Errorf("update trash state: %w", err)
	}
	if !ok {
		return domain.File{}, ErrNotFound
	}
	return file, nil
}

// DeleteFile removes the row first and then the blob. Once the row is gone
// the delete has succeeded; a blob that cannot be removed is logged and left
// to the reconciliation sweep.
func (a *App) DeleteFile(ctx context.Context, userID, fileID string) (domain.File, error) {
	if !validID(fileID) {
		return domain.File{}, ErrNotFound
	}
	file, ok, err := a.store.DeleteFile(ctx, fileID, userID)
	if err != nil {
		return domain.File{}, fmt.Errorf("delete file row: %w", err)
	}
	if !ok {
		return domain.File{}, ErrNotFound
	}
	a.removeBlob(ctx, file)
	return file, nil
}

func (a *App) removeBlob(ctx context.Context, file domain.File) {
	err := a.blobs.Delete(context.WithoutCancel(ctx), blobKey(file.FilePath))
	if err != nil {
		util.LoggerFromContext(ctx).Warn("blob delete failed", "file_id", file.ID, "file_path", file.FilePath, "err", err)
	}
}

// GoogleSignIn carries the token material returned by the Google OAuth flow.
type GoogleSignIn struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

// SignInResult is the outcome of a successful sign-in.
type SignInResult struct {
	User    domain.User
	Token   string
	Created bool
}

// SignInWithGoogle verifies the access token with Google, upserts the user
// keyed by the verified email and issues a session token.
func (a *App) SignInWithGoogle(ctx context.Context, in GoogleSignIn) (SignInResult, error) {
	profile, err := a.identity.Verify(ctx, in.AccessToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrEmailNotVerified) {
			return SignInResult{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
		}
		return SignInResult{}, fmt.Errorf("verify identity: %w", err)
	}
	sealed, err := a.sealer.Seal(strings.TrimSpace(in.AccessToken))
	if err != nil {
		return SignInResult{}, fmt.Errorf("seal access token: %w", err)
	}
	user, created, err := a.store.UpsertUserByEmail(ctx, domain.User{
		Name:        profile.Name,
		Email:       profile.Email,
		Picture:     profile.Picture,
		GoogleID:    profile.Subject,
		AccessToken: sealed,
		TokenType:   strings.TrimSpace(in.TokenType),
		ExpiresIn:   in.ExpiresIn,
	})
	if err != nil {
		return SignInResult{}, fmt.Errorf("upsert user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return SignInResult{}, fmt.Errorf("issue session: %w", err)
	}
	return SignInResult{User: user, Token: token, Created: created}, nil
}

// Authenticate resolves a session token to the user ID it was issued for.
func (a *App) Authenticate(token string) (string, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok || userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// CurrentUser returns the signed-in user.
func (a *App) CurrentUser(ctx context.Context, userID string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// Ping reports whether the metadata store is reachable. Stores without a
// connection to check always succeed.
func (a *App) Ping(ctx context.Context) error {
	p, ok := a.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// validID accepts only the canonical 36-character uuid form.
func validID(id string) bool {
	return util.IsCanonicalUUID(id)
}

func blobKey(filePath string) string {
	return strings.TrimPrefix(filePath, domain.UploadsPrefix)
}
