package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"drivex/pkg/domain"
	"drivex/pkg/store/migrations"
)

const migrateLockID int64 = 50113001

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and applies the embedded goose migrations.
func NewGormStore(ctx context.Context, dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := withMigrationLock(ctx, sqlDB, func() error {
		goose.SetBaseFS(migrations.FS)
		if err := goose.SetDialect("postgres"); err != nil {
			return fmt.Errorf("goose dialect: %w", err)
		}
		if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		return nil
	}); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func withMigrationLock(ctx context.Context, sqlDB *sql.DB, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn()
}

// UpsertUserByEmail inserts the user or refreshes the profile of the account
// holding the same email. The bool reports whether a new row was created.
func (s *GormStore) UpsertUserByEmail(ctx context.Context, u domain.User) (domain.User, bool, error) {
	var (
		out     UserModel
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var existing UserModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ?", u.Email).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model := userToModel(u)
			if model.ID == "" {
				model.ID = uuid.NewString()
			}
			model.CreatedAt = now
			model.UpdatedAt = now
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
			out, created = model, true
			return nil
		}
		if err != nil {
			return err
		}
		existing.Name = u.Name
		existing.Picture = u.Picture
		existing.GoogleID = u.GoogleID
		existing.AccessToken = u.AccessToken
		existing.TokenType = u.TokenType
		existing.ExpiresIn = u.ExpiresIn
		existing.UpdatedAt = now
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		out = existing
		return nil
	})
	if err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(out), created, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateFile inserts a new file row.
func (s *GormStore) CreateFile(ctx context.Context, f domain.File) error {
	model := fileToModel(f)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListFilesByOwner returns the owner's non-trashed files, newest first.
func (s *GormStore) ListFilesByOwner(ctx context.Context, ownerID string) ([]domain.File, error) {
	return s.listFiles(ctx, "created_at DESC, id DESC", "user_id = ? AND is_trashed = ?", ownerID, false)
}

// ListTrashedByOwner returns the owner's trashed files, most recently trashed first.
func (s *GormStore) ListTrashedByOwner(ctx context.Context, ownerID string) ([]domain.File, error) {
	return s.listFiles(ctx, "trashed_at DESC NULLS LAST, created_at DESC", "user_id = ? AND is_trashed = ?", ownerID, true)
}

func (s *GormStore) listFiles(ctx context.Context, order string, query string, args ...any) ([]domain.File, error) {
	var models []FileModel
	if err := s.db.WithContext(ctx).Where(query, args...).Order(order).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.File, 0, len(models))
	for _, m := range models {
		res = append(res, fileFromModel(m))
	}
	return res, nil
}

// GetFile returns a file only if it belongs to ownerID.
func (s *GormStore) GetFile(ctx context.Context, id, ownerID string) (domain.File, bool, error) {
	var model FileModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.File{}, false, nil
		}
		return domain.File{}, false, err
	}
	return fileFromModel(model), true, nil
}

// RenameFile updates the display name of an owned file.
func (s *GormStore) RenameFile(ctx context.Context, id, ownerID, name string) (domain.File, bool, error) {
	return s.updateOwned(ctx, id, ownerID, map[string]any{
		"file_name":  name,
		"updated_at": time.Now().UTC(),
	})
}

// SetStarred toggles the starred flag of an owned file.
func (s *GormStore) SetStarred(ctx context.Context, id, ownerID string, starred bool) (domain.File, bool, error) {
	return s.updateOwned(ctx, id, ownerID, map[string]any{
		"is_starred": starred,
		"updated_at": time.Now().UTC(),
	})
}

// SetTrashed moves an owned file into or out of the trash.
func (s *GormStore) SetTrashed(ctx context.Context, id, ownerID string, trashed bool) (domain.File, bool, error) {
	now := time.Now().UTC()
	values := map[string]any{
		"is_trashed": trashed,
		"trashed_at": nil,
		"updated_at": now,
	}
	if trashed {
		values["trashed_at"] = now
	}
	return s.updateOwned(ctx, id, ownerID, values)
}

func (s *GormStore) updateOwned(ctx context.Context, id, ownerID string, values map[string]any) (domain.File, bool, error) {
	var model FileModel
	res := s.db.WithContext(ctx).
		Model(&model).
		Clauses(clause.Returning{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(values)
	if res.Error != nil {
		return domain.File{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.File{}, false, nil
	}
	return fileFromModel(model), true, nil
}

// DeleteFile removes an owned row and returns what was deleted.
func (s *GormStore) DeleteFile(ctx context.Context, id, ownerID string) (domain.File, bool, error) {
	var model FileModel
	res := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&model)
	if res.Error != nil {
		return domain.File{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.File{}, false, nil
	}
	return fileFromModel(model), true, nil
}

// PurgeTrashed removes an owned row that is still in the trash past cutoff.
func (s *GormStore) PurgeTrashed(ctx context.Context, id, ownerID string, cutoff time.Time) (domain.File, bool, error) {
	var model FileModel
	res := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("id = ? AND user_id = ? AND is_trashed = ? AND trashed_at < ?", id, ownerID, true, cutoff).
		Delete(&model)
	if res.Error != nil {
		return domain.File{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.File{}, false, nil
	}
	return fileFromModel(model), true, nil
}

// FilePathExists reports whether any row references filePath.
func (s *GormStore) FilePathExists(ctx context.Context, filePath string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&FileModel{}).Where("file_path = ?", filePath).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListTrashedBefore returns trashed files whose trashed_at is older than cutoff.
func (s *GormStore) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.File, error) {
	if limit <= 0 {
		limit = 500
	}
	var models []FileModel
	err := s.db.WithContext(ctx).
		Where("is_trashed = ? AND trashed_at < ?", true, cutoff).
		Order("trashed_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.File, 0, len(models))
	for _, m := range models {
		res = append(res, fileFromModel(m))
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Picture:     u.Picture,
		GoogleID:    u.GoogleID,
		AccessToken: u.AccessToken,
		TokenType:   u.TokenType,
		ExpiresIn:   u.ExpiresIn,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:          m.ID,
		Name:        m.Name,
		Email:       m.Email,
		Picture:     m.Picture,
		GoogleID:    m.GoogleID,
		AccessToken: m.AccessToken,
		TokenType:   m.TokenType,
		ExpiresIn:   m.ExpiresIn,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fileToModel(f domain.File) FileModel {
	return FileModel{
		ID:             f.ID,
		UserID:         f.UserID,
		FileName:       f.FileName,
		FileType:       f.FileType,
		FileSize:       f.FileSize,
		FilePath:       f.FilePath,
		ParentFolderID: f.ParentFolderID,
		IsFolder:       f.IsFolder,
		IsStarred:      f.IsStarred,
		IsTrashed:      f.IsTrashed,
		TrashedAt:      f.TrashedAt,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func fileFromModel(m FileModel) domain.File {
	return domain.File{
		ID:             m.ID,
		UserID:         m.UserID,
		FileName:       m.FileName,
		FileType:       m.FileType,
		FileSize:       m.FileSize,
		FilePath:       m.FilePath,
		ParentFolderID: m.ParentFolderID,
		IsFolder:       m.IsFolder,
		IsStarred:      m.IsStarred,
		IsTrashed:      m.IsTrashed,
		TrashedAt:      m.TrashedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
