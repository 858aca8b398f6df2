package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tempPrefix = ".upload-"

// LocalStore keeps blobs as files in one flat directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if missing.
func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	return &LocalStore{dir: abs}, nil
}

// Dir returns the absolute directory holding the blobs.
func (l *LocalStore) Dir() string {
	return l.dir
}

// Put writes r to a temp file in the same directory, syncs it, then renames
// it onto key so readers never observe a partial blob.
func (l *LocalStore) Put(ctx context.Context, key string, r io.Reader, maxBytes int64, _ string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	target := filepath.Join(l.dir, key)
	if _, err := os.Lstat(target); err == nil {
		return 0, ErrBlobExists
	}

	tmp, err := os.CreateTemp(l.dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	src := io.Reader(contextReader{ctx: ctx, r: r})
	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return 0, ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return 0, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		committed = true
		return 0, fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return n, nil
}

// Open opens the blob for reading.
func (l *LocalStore) Open(_ context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, ErrBlobNotFound
	}
	return &Object{ReadSeekCloser: f, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes the blob or an abandoned temp file. A missing blob reports
// ErrBlobNotFound.
func (l *LocalStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(strings.TrimPrefix(key, tempPrefix)); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.dir, key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// List reports every regular file in the directory.
func (l *LocalStore) List(ctx context.Context, fn func(BlobInfo) error) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read storage dir: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		if err := fn(BlobInfo{
			Key:     entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Temp:    strings.HasPrefix(entry.Name(), tempPrefix),
		}); err != nil {
			return err
		}
	}
	return nil
}

