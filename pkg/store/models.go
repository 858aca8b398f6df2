package store

import (
	"database/sql"
	"time"
)

// GORM models used for persistence. Columns follow the goose migrations
// in migrations/; gorm never alters the schema.
type UserModel struct {
	ID          string         `gorm:"column:id;primaryKey;type:uuid"`
	Name        string         `gorm:"column:name"`
	Email       string         `gorm:"column:email;uniqueIndex;not null"`
	Password    sql.NullString `gorm:"column:password"`
	Picture     string         `gorm:"column:picture"`
	GoogleID    string         `gorm:"column:google_id"`
	AccessToken string         `gorm:"column:access_token"`
	TokenType   string         `gorm:"column:token_type"`
	ExpiresIn   int64          `gorm:"column:expires_in"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (UserModel) TableName() string { return "users" }

type FileModel struct {
	ID             string     `gorm:"column:id;primaryKey;type:uuid"`
	UserID         string     `gorm:"column:user_id;type:uuid;not null;index"`
	FileName       string     `gorm:"column:file_name;not null"`
	FileType       string     `gorm:"column:file_type;not null"`
	FileSize       int64      `gorm:"column:file_size;not null"`
	FilePath       string     `gorm:"column:file_path;not null;uniqueIndex"`
	ParentFolderID *string    `gorm:"column:parent_folder_id;type:uuid"`
	IsFolder       bool       `gorm:"column:is_folder;not null"`
	IsStarred      bool       `gorm:"column:is_starred;not null"`
	IsTrashed      bool       `gorm:"column:is_trashed;not null;default:false"`
	TrashedAt      *time.Time `gorm:"column:trashed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
}

func (FileModel) TableName() string { return "files" }
