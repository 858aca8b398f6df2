package domain

import "time"

// User is an account created by the Google sign-in exchange.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Picture     string    `json:"picture,omitempty"`
	GoogleID    string    `json:"googleId,omitempty"`
	AccessToken string    `json:"-"`
	TokenType   string    `json:"-"`
	ExpiresIn   int64     `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// File is the metadata row paired with one blob in the uploads namespace.
type File struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	FileName       string     `json:"fileName"`
	FileType       string     `json:"fileType"`
	FileSize       int64      `json:"fileSize"`
	FilePath       string     `json:"filePath"`
	ParentFolderID *string    `json:"parentFolderId"`
	IsFolder       bool       `json:"isFolder"`
	IsStarred      bool       `json:"isStarred"`
	IsTrashed      bool       `json:"isTrashed"`
	TrashedAt      *time.Time `json:"trashedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// UploadsPrefix is the namespace recorded in File.FilePath and served read-only.
const UploadsPrefix = "uploads/"
