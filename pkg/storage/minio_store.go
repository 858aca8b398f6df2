package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"drivex/internal/util"
)

// MinioConfig configures an S3-compatible blob backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every key inside the bucket.
	Prefix string
}

// MinioStore implements BlobStore on MinIO/S3. Objects only become visible
// once PutObject completes, which gives the same all-or-nothing semantics as
// the local temp-then-rename write.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// Put uploads an object, enforcing maxBytes on the actual stream. An existing
// key is never overwritten.
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, maxBytes int64, contentType string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	name := m.prefix + key
	if _, err := m.client.StatObject(ctx, m.bucket, name, minio.StatObjectOptions{}); err == nil {
		return 0, ErrBlobExists
	} else if !isNoSuchKey(err) {
		return 0, fmt.Errorf("stat object: %w", err)
	}
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	info, err := m.client.PutObject(ctx, m.bucket, name, src, -1, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, fmt.Errorf("put object: %w", err)
	}
	if maxBytes > 0 && info.Size > maxBytes {
		if err := m.client.RemoveObject(context.WithoutCancel(ctx), m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			util.LoggerFromContext(ctx).Error("remove oversized object failed", "key", key, "err", err)
		}
		return 0, ErrTooLarge
	}
	return info.Size, nil
}

// Open fetches an object for streaming.
func (m *MinioStore) Open(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, m.prefix+key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return &Object{ReadSeekCloser: obj, Size: stat.Size, ModTime: stat.LastModified}, nil
}

// Delete removes an object. S3 treats deleting a missing key as success.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, m.prefix+key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// List walks every object under the prefix.
func (m *MinioStore) List(ctx context.Context, fn func(BlobInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: m.prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("list objects: %w", obj.Err)
		}
		key := strings.TrimPrefix(obj.Key, m.prefix)
		if key == "" || strings.Contains(key, "/") {
			continue
		}
		if err := fn(BlobInfo{Key: key, Size: obj.Size, ModTime: obj.LastModified}); err != nil {
			return err
		}
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
