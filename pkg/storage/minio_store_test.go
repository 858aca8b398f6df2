package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeS3 answers just enough of the S3 API for NewMinioStore and the
// existence check in Put. Object HEADs reply with headStatus.
func fakeS3(t *testing.T, headStatus int, puts *atomic.Int32) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Has("location"):
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`))
		case r.Method == http.MethodHead && strings.Trim(r.URL.Path, "/") == "drivex":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead:
			if headStatus == http.StatusOK {
				w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
				w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
				w.Header().Set("Content-Length", "10")
			}
			w.WriteHeader(headStatus)
		default:
			puts.Add(1)
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestMinioStorePutChecksExistingKey(t *testing.T) {
	tests := []struct {
		name       string
		headStatus int
		wantExists bool
	}{
		{"existing key", http.StatusOK, true},
		{"stat denied", http.StatusForbidden, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var puts atomic.Int32
			ctx := context.Background()
			s, err := NewMinioStore(ctx, MinioConfig{
				Endpoint:  fakeS3(t, tc.headStatus, &puts),
				AccessKey: "minioadmin",
				SecretKey: "minioadmin",
				Bucket:    "drivex",
			})
			if err != nil {
				t.Fatalf("new minio store: %v", err)
			}
			_, err = s.Put(ctx, "1700000000000-42.png", strings.NewReader("0123456789"), 1024, "image/png")
			if tc.wantExists && !errors.Is(err, ErrBlobExists) {
				t.Fatalf("expected ErrBlobExists, got %v", err)
			}
			if !tc.wantExists && (err == nil || errors.Is(err, ErrBlobExists)) {
				t.Fatalf("expected stat failure, got %v", err)
			}
			if n := puts.Load(); n != 0 {
				t.Fatalf("object written %d times despite failed check", n)
			}
		})
	}
}
