package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"drivex/pkg/domain"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestGormStoreContract(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("DRIVEX_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DRIVEX_TEST_DATABASE_URL not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewGormStore(context.Background(), dsn)
		if err != nil {
			t.Fatalf("new gorm store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	newUser := func(t *testing.T, s Store) domain.User {
		t.Helper()
		u, created, err := s.UpsertUserByEmail(ctx, domain.User{
			Name:  "Test User",
			Email: uuid.NewString() + "@example.com",
		})
		if err != nil {
			t.Fatalf("upsert user: %v", err)
		}
		if !created {
			t.Fatalf("expected new user to be created")
		}
		return u
	}
	newFile := func(t *testing.T, s Store, owner string, name string, createdAt time.Time) domain.File {
		t.Helper()
		f := domain.File{
			ID:        uuid.Must(uuid.NewV7()).String(),
			UserID:    owner,
			FileName:  name,
			FileType:  "image/png",
			FileSize:  10,
			FilePath:  domain.UploadsPrefix + uuid.NewString() + ".png",
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		if err := s.CreateFile(ctx, f); err != nil {
			t.Fatalf("create file: %v", err)
		}
		return f
	}

	t.Run("upsert by email updates instead of duplicating", func(t *testing.T) {
		s := newStore(t)
		email := uuid.NewString() + "@example.com"
		first, created, err := s.UpsertUserByEmail(ctx, domain.User{Name: "Old", Email: email})
		if err != nil || !created {
			t.Fatalf("first upsert: created=%v err=%v", created, err)
		}
		second, created, err := s.UpsertUserByEmail(ctx, domain.User{Name: "New", Email: email, Picture: "p.png"})
		if err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		if created {
			t.Fatalf("second upsert should update the existing user")
		}
		if second.ID != first.ID {
			t.Fatalf("user id changed: %q -> %q", first.ID, second.ID)
		}
		if second.Name != "New" || second.Picture != "p.png" {
			t.Fatalf("profile not refreshed: %+v", second)
		}
		got, ok, err := s.GetUserByID(ctx, first.ID)
		if err != nil || !ok {
			t.Fatalf("get user: ok=%v err=%v", ok, err)
		}
		if got.Name != "New" {
			t.Fatalf("stored name = %q, want New", got.Name)
		}
	})

	t.Run("list is newest first and excludes trashed", func(t *testing.T) {
		s := newStore(t)
		owner := newUser(t, s)
		base := time.Now().UTC().Add(-time.Hour)
		f1 := newFile(t, s, owner.ID, "f1.png", base)
		f2 := newFile(t, s, owner.ID, "f2.png", base.Add(time.Second))
		f3 := newFile(t, s, owner.ID, "f3.png", base.Add(2*time.Second))

		got, err := s.ListFilesByOwner(ctx, owner.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := []string{f3.ID, f2.ID, f1.ID}
		if len(got) != len(want) {
			t.Fatalf("list len = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("list[%d] = %s, want %s", i, got[i].FileName, want[i])
			}
		}

		if _, ok, err := s.SetTrashed(ctx, f2.ID, owner.ID, true); err != nil || !ok {
			t.Fatalf("trash: ok=%v err=%v", ok, err)
		}
		got, err = s.ListFilesByOwner(ctx, owner.ID)
		if err != nil {
			t.Fatalf("list after trash: %v", err)
		}
		if len(got) != 2 || got[0].ID != f3.ID || got[1].ID != f1.ID {
			t.Fatalf("unexpected list after trash: %+v", got)
		}
		trashed, err := s.ListTrashedByOwner(ctx, owner.ID)
		if err != nil {
			t.Fatalf("list trashed: %v", err)
		}
		if len(trashed) != 1 || trashed[0].ID != f2.ID || trashed[0].TrashedAt == nil {
			t.Fatalf("unexpected trash listing: %+v", trashed)
		}
	})

	t.Run("owner scoping hides other users' files", func(t *testing.T) {
		s := newStore(t)
		alice := newUser(t, s)
		bob := newUser(t, s)
		f := newFile(t, s, alice.ID, "secret.png", time.Now().UTC())

		if _, ok, err := s.GetFile(ctx, f.ID, bob.ID); err != nil || ok {
			t.Fatalf("bob get: ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.RenameFile(ctx, f.ID, bob.ID, "mine.png"); err != nil || ok {
			t.Fatalf("bob rename: ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.SetStarred(ctx, f.ID, bob.ID, true); err != nil || ok {
			t.Fatalf("bob star: ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.DeleteFile(ctx, f.ID, bob.ID); err != nil || ok {
			t.Fatalf("bob delete: ok=%v err=%v", ok, err)
		}
		list, err := s.ListFilesByOwner(ctx, bob.ID)
		if err != nil || len(list) != 0 {
			t.Fatalf("bob list: %v %+v", err, list)
		}
		got, ok, err := s.GetFile(ctx, f.ID, alice.ID)
		if err != nil || !ok {
			t.Fatalf("alice get: ok=%v err=%v", ok, err)
		}
		if got.FileName != "secret.png" || got.IsStarred {
			t.Fatalf("alice's file was modified by bob: %+v", got)
		}
	})

	t.Run("rename and delete", func(t *testing.T) {
		s := newStore(t)
		owner := newUser(t, s)
		f := newFile(t, s, owner.ID, "a.png", time.Now().UTC())

		renamed, ok, err := s.RenameFile(ctx, f.ID, owner.ID, "b.png")
		if err != nil || !ok {
			t.Fatalf("rename: ok=%v err=%v", ok, err)
		}
		if renamed.FileName != "b.png" || renamed.FilePath != f.FilePath {
			t.Fatalf("unexpected renamed record: %+v", renamed)
		}

		exists, err := s.FilePathExists(ctx, f.FilePath)
		if err != nil || !exists {
			t.Fatalf("path exists before delete: %v %v", exists, err)
		}
		deleted, ok, err := s.DeleteFile(ctx, f.ID, owner.ID)
		if err != nil || !ok {
			t.Fatalf("delete: ok=%v err=%v", ok, err)
		}
		if deleted.FilePath != f.FilePath {
			t.Fatalf("deleted path = %q, want %q", deleted.FilePath, f.FilePath)
		}
		if _, ok, err := s.DeleteFile(ctx, f.ID, owner.ID); err != nil || ok {
			t.Fatalf("second delete: ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.RenameFile(ctx, f.ID, owner.ID, "c.png"); err != nil || ok {
			t.Fatalf("rename after delete: ok=%v err=%v", ok, err)
		}
		exists, err = s.FilePathExists(ctx, f.FilePath)
		if err != nil || exists {
			t.Fatalf("path exists after delete: %v %v", exists, err)
		}
	})

	t.Run("equal timestamps list in insertion order", func(t *testing.T) {
		s := newStore(t)
		owner := newUser(t, s)
		at := time.Now().UTC().Truncate(time.Second)
		var want []string
		for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
			want = append([]string{newFile(t, s, owner.ID, name, at).ID}, want...)
		}
		got, err := s.ListFilesByOwner(ctx, owner.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("list[%d] = %s, want newest insert first", i, got[i].FileName)
			}
		}
	})

	t.Run("purge only removes expired trash", func(t *testing.T) {
		s := newStore(t)
		owner := newUser(t, s)
		cutoff := time.Now().UTC().Add(time.Hour)

		live := newFile(t, s, owner.ID, "live.png", time.Now().UTC())
		if _, ok, err := s.PurgeTrashed(ctx, live.ID, owner.ID, cutoff); err != nil || ok {
			t.Fatalf("purged a file outside the trash: ok=%v err=%v", ok, err)
		}

		trashed := newFile(t, s, owner.ID, "trashed.png", time.Now().UTC())
		if _, _, err := s.SetTrashed(ctx, trashed.ID, owner.ID, true); err != nil {
			t.Fatalf("trash: %v", err)
		}
		if _, ok, err := s.PurgeTrashed(ctx, trashed.ID, owner.ID, time.Now().UTC().Add(-time.Hour)); err != nil || ok {
			t.Fatalf("purged trash younger than cutoff: ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.PurgeTrashed(ctx, trashed.ID, uuid.NewString(), cutoff); err != nil || ok {
			t.Fatalf("purged another owner's file: ok=%v err=%v", ok, err)
		}
		gone, ok, err := s.PurgeTrashed(ctx, trashed.ID, owner.ID, cutoff)
		if err != nil || !ok {
			t.Fatalf("purge expired trash: ok=%v err=%v", ok, err)
		}
		if gone.FilePath != trashed.FilePath {
			t.Fatalf("purge returned %q, want %q", gone.FilePath, trashed.FilePath)
		}
		if _, ok, _ := s.GetFile(ctx, live.ID, owner.ID); !ok {
			t.Fatalf("live file lost")
		}
	})

	t.Run("restore clears trash state", func(t *testing.T) {
		s := newStore(t)
		owner := newUser(t, s)
		f := newFile(t, s, owner.ID, "a.png", time.Now().UTC())
		if _, _, err := s.SetTrashed(ctx, f.ID, owner.ID, true); err != nil {
			t.Fatalf("trash: %v", err)
		}
		restored, ok, err := s.SetTrashed(ctx, f.ID, owner.ID, false)
		if err != nil || !ok {
			t.Fatalf("restore: ok=%v err=%v", ok, err)
		}
		if restored.IsTrashed || restored.TrashedAt != nil {
			t.Fatalf("restore left trash state: %+v", restored)
		}
		old, err := s.ListTrashedBefore(ctx, time.Now().UTC().Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("list trashed before: %v", err)
		}
		for _, o := range old {
			if o.ID == f.ID {
				t.Fatalf("restored file listed for purge")
			}
		}
	})
}
