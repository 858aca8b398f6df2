package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"drivex/pkg/domain"
)

// ErrDuplicateFilePath mirrors the unique constraint on files.file_path.
var ErrDuplicateFilePath = errors.New("file path already exists")

// MemoryStore keeps users and file metadata in-process. It backs tests and
// single-instance demo runs.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]domain.User // key: user ID
	email  map[string]string      // email -> user ID
	files  map[string]memoryFile  // key: file ID
	paths  map[string]string      // file path -> file ID
	serial int64
}

type memoryFile struct {
	file domain.File
	seq  int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
		files: make(map[string]memoryFile),
		paths: make(map[string]string),
	}
}

// UpsertUserByEmail inserts or refreshes the user keyed by email.
func (m *MemoryStore) UpsertUserByEmail(ctx context.Context, u domain.User) (domain.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if id, ok := m.email[u.Email]; ok {
		existing := m.users[id]
		existing.Name = u.Name
		existing.Picture = u.Picture
		existing.GoogleID = u.GoogleID
		existing.AccessToken = u.AccessToken
		existing.TokenType = u.TokenType
		existing.ExpiresIn = u.ExpiresIn
		existing.UpdatedAt = now
		m.users[id] = existing
		return existing, false, nil
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return u, true, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// CreateFile stores a new file row.
func (m *MemoryStore) CreateFile(ctx context.Context, f domain.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.paths[f.FilePath]; ok {
		return ErrDuplicateFilePath
	}
	m.serial++
	m.files[f.ID] = memoryFile{file: f, seq: m.serial}
	m.paths[f.FilePath] = f.ID
	return nil
}

// ListFilesByOwner returns the owner's non-trashed files, newest first.
func (m *MemoryStore) ListFilesByOwner(ctx context.Context, ownerID string) ([]domain.File, error) {
	return m.list(ctx, func(f domain.File) bool {
		return f.UserID == ownerID && !f.IsTrashed
	})
}

// ListTrashedByOwner returns the owner's trashed files.
func (m *MemoryStore) ListTrashedByOwner(ctx context.Context, ownerID string) ([]domain.File, error) {
	return m.list(ctx, func(f domain.File) bool {
		return f.UserID == ownerID && f.IsTrashed
	})
}

func (m *MemoryStore) list(ctx context.Context, keep func(domain.File) bool) ([]domain.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matched := make([]memoryFile, 0, len(m.files))
	for _, mf := range m.files {
		if keep(mf.file) {
			matched = append(matched, mf)
		}
	}
	m.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.file.CreatedAt.Equal(b.file.CreatedAt) {
			return a.file.CreatedAt.After(b.file.CreatedAt)
		}
		return a.seq > b.seq
	})
	res := make([]domain.File, 0, len(matched))
	for _, mf := range matched {
		res = append(res, mf.file)
	}
	return res, nil
}

// GetFile returns a file only if it belongs to ownerID.
func (m *MemoryStore) GetFile(ctx context.Context, id, ownerID string) (domain.File, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.File{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	mf, ok := m.files[id]
	if !ok || mf.file.UserID != ownerID {
		return domain.File{}, false, nil
	}
	return mf.file, true, nil
}

// RenameFile updates the display name of an owned file.
func (m *MemoryStore) RenameFile(ctx context.Context, id, ownerID, name string) (domain.File, bool, error) {
	return m.mutate(ctx, id, ownerID, func(f *domain.File) {
		f.FileName = name
	})
}

// SetStarred toggles the starred flag of an owned file.
func (m *MemoryStore) SetStarred(ctx context.Context, id, ownerID string, starred bool) (domain.File, bool, error) {
	return m.mutate(ctx, id, ownerID, func(f *domain.File) {
		f.IsStarred = starred
	})
}

// SetTrashed moves an owned file into or out of the trash.
func (m *MemoryStore) SetTrashed(ctx context.Context, id, ownerID string, trashed bool) (domain.File, bool, error) {
	return m.mutate(ctx, id, ownerID, func(f *domain.File) {
		f.IsTrashed = trashed
		f.TrashedAt = nil
		if trashed {
			now := time.Now().UTC()
			f.TrashedAt = &now
		}
	})
}

func (m *MemoryStore) mutate(ctx context.Context, id, ownerID string, apply func(*domain.File)) (domain.File, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.File{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mf, ok := m.files[id]
	if !ok || mf.file.UserID != ownerID {
		return domain.File{}, false, nil
	}
	apply(&mf.file)
	mf.file.UpdatedAt = time.Now().UTC()
	m.files[id] = mf
	return mf.file, true, nil
}

// DeleteFile removes an owned row and returns what was deleted.
func (m *MemoryStore) DeleteFile(ctx context.Context, id, ownerID string) (domain.File, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.File{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mf, ok := m.files[id]
	if !ok || mf.file.UserID != ownerID {
		return domain.File{}, false, nil
	}
	delete(m.files, id)
	delete(m.paths, mf.file.FilePath)
	return mf.file, true, nil
}

// PurgeTrashed removes an owned row that is still in the trash past cutoff.
func (m *MemoryStore) PurgeTrashed(ctx context.Context, id, ownerID string, cutoff time.Time) (domain.File, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.File{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mf, ok := m.files[id]
	if !ok || mf.file.UserID != ownerID {
		return domain.File{}, false, nil
	}
	if !mf.file.IsTrashed || mf.file.TrashedAt == nil || !mf.file.TrashedAt.Before(cutoff) {
		return domain.File{}, false, nil
	}
	delete(m.files, id)
	delete(m.paths, mf.file.FilePath)
	return mf.file, true, nil
}

// FilePathExists reports whether any row references filePath.
func (m *MemoryStore) FilePathExists(ctx context.Context, filePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.paths[filePath]
	return ok, nil
}

// ListTrashedBefore returns trashed files whose trash time is older than cutoff.
func (m *MemoryStore) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}
	m.mu.RLock()
	var res []domain.File
	for _, mf := range m.files {
		f := mf.file
		if f.IsTrashed && f.TrashedAt != nil && f.TrashedAt.Before(cutoff) {
			res = append(res, f)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		return res[i].TrashedAt.Before(*res[j].TrashedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// SetTrashedAt backdates the trash time of a file. Used to exercise purging.
func (m *MemoryStore) SetTrashedAt(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mf, ok := m.files[id]
	if !ok {
		return
	}
	mf.file.TrashedAt = &at
	m.files[id] = mf
}
