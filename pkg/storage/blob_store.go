package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrBlobNotFound is returned when no blob exists under the key.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrTooLarge is returned when the stream exceeds the size ceiling passed to Put.
	ErrTooLarge = errors.New("blob exceeds size limit")
	// ErrInvalidKey rejects keys that could escape the flat uploads namespace.
	ErrInvalidKey = errors.New("invalid blob key")
	// ErrBlobExists is returned when Put would overwrite an existing blob.
	ErrBlobExists = errors.New("blob already exists")
)

// BlobStore holds file bytes in a flat namespace keyed by generated storage keys.
type BlobStore interface {
	// Put stores r under key and returns the number of bytes written. The blob
	// becomes visible only once fully written. maxBytes <= 0 disables the limit.
	Put(ctx context.Context, key string, r io.Reader, maxBytes int64, contentType string) (int64, error)
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	// List walks every blob, including unfinished temp files, calling fn once each.
	List(ctx context.Context, fn func(BlobInfo) error) error
}

// Object is an open blob.
type Object struct {
	io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// BlobInfo describes a stored blob during a listing.
type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
	Temp    bool
}

// ValidateKey rejects empty keys, path separators and dot segments.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return ErrInvalidKey
	case strings.ContainsAny(key, `/\`), strings.ContainsRune(key, 0):
		return ErrInvalidKey
	case strings.HasPrefix(key, tempPrefix):
		return ErrInvalidKey
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
