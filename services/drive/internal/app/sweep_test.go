package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drivex/pkg/domain"
	"drivex/pkg/store"
)

func age(t *testing.T, dir, name string, at time.Time) {
	t.Helper()
	if err := os.Chtimes(filepath.Join(dir, name), at, at); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
}

func TestSweepRemovesOrphansTempFilesAndExpiredTrash(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.SweepGrace = 15 * time.Minute
		c.TrashRetention = 24 * time.Hour
	})
	ctx := context.Background()
	dir := env.blobs.Dir()
	old := time.Now().Add(-time.Hour)

	kept := upload(t, env.app, env.userA, "kept.png", "image/png", []byte("kept"))
	age(t, dir, strings.TrimPrefix(kept.FilePath, domain.UploadsPrefix), old)

	expired := upload(t, env.app, env.userA, "expired.png", "image/png", []byte("expired"))
	if _, err := env.app.TrashFile(ctx, env.userA, expired.ID); err != nil {
		t.Fatalf("trash: %v", err)
	}
	env.store.SetTrashedAt(expired.ID, time.Now().Add(-48*time.Hour))

	recentTrash := upload(t, env.app, env.userA, "recent.png", "image/png", []byte("recent"))
	if _, err := env.app.TrashFile(ctx, env.userA, recentTrash.ID); err != nil {
		t.Fatalf("trash recent: %v", err)
	}

	for name, content := range map[string]string{
		"1690000000000-7.png": "orphan",
		".upload-123456":      "partial",
		"1790000000000-8.png": "fresh",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	age(t, dir, "1690000000000-7.png", old)
	age(t, dir, ".upload-123456", old)

	report, err := env.app.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.OrphansRemoved != 1 || report.TempRemoved != 1 || report.TrashPurged != 1 || report.Failures != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	wantFreed := int64(len("orphan") + len("partial") + len("expired"))
	if report.BytesFreed != wantFreed {
		t.Fatalf("bytes freed = %d, want %d", report.BytesFreed, wantFreed)
	}

	for _, gone := range []string{"1690000000000-7.png", ".upload-123456", strings.TrimPrefix(expired.FilePath, domain.UploadsPrefix)} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed: %v", gone, err)
		}
	}
	for _, stays := range []string{
		"1790000000000-8.png",
		strings.TrimPrefix(kept.FilePath, domain.UploadsPrefix),
		strings.TrimPrefix(recentTrash.FilePath, domain.UploadsPrefix),
	} {
		if _, err := os.Stat(filepath.Join(dir, stays)); err != nil {
			t.Fatalf("%s should remain: %v", stays, err)
		}
	}
	if _, err := env.app.GetFile(ctx, env.userA, expired.ID); err == nil {
		t.Fatalf("expired trash row should be purged")
	}
	if trash, _ := env.app.ListTrash(ctx, env.userA); len(trash) != 1 || trash[0].ID != recentTrash.ID {
		t.Fatalf("recent trash should survive: %+v", trash)
	}

	again, err := env.app.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != (SweepReport{}) {
		t.Fatalf("second sweep should be a no-op, got %+v", again)
	}
}

// restoreOnListStore restores every expired file right after the sweep has
// listed it, as a user hitting restore mid-sweep would.
type restoreOnListStore struct {
	*store.MemoryStore
}

func (s restoreOnListStore) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.File, error) {
	files, err := s.MemoryStore.ListTrashedBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, _, err := s.SetTrashed(ctx, f.ID, f.UserID, false); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func TestSweepKeepsFileRestoredDuringPurge(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.TrashRetention = 24 * time.Hour
		c.Store = restoreOnListStore{MemoryStore: c.Store.(*store.MemoryStore)}
	})
	ctx := context.Background()

	f := upload(t, env.app, env.userA, "restored.png", "image/png", []byte("keep me"))
	if _, err := env.app.TrashFile(ctx, env.userA, f.ID); err != nil {
		t.Fatalf("trash: %v", err)
	}
	env.store.SetTrashedAt(f.ID, time.Now().Add(-48*time.Hour))

	report, err := env.app.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.TrashPurged != 0 {
		t.Fatalf("restored file counted as purged: %+v", report)
	}
	got, err := env.app.GetFile(ctx, env.userA, f.ID)
	if err != nil {
		t.Fatalf("restored file lost: %v", err)
	}
	if got.IsTrashed {
		t.Fatalf("file should stay restored: %+v", got)
	}
	if _, err := os.Stat(filepath.Join(env.blobs.Dir(), strings.TrimPrefix(f.FilePath, domain.UploadsPrefix))); err != nil {
		t.Fatalf("restored blob removed: %v", err)
	}
}
