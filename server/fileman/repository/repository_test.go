package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"files_manager/server/common/infra/db"
	"files_manager/server/fileman/domain"
)

// FILES_MANAGER_TEST_POSTGRES_DSN points at a disposable database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("FILES_MANAGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FILES_MANAGER_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return pool
}

func newUser(t *testing.T, users *UserRepository) domain.User {
	t.Helper()
	id := uuid.NewString()
	u, err := users.Create(context.Background(), domain.User{ID: id, Email: id + "@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestUserRepository(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)

	u := newUser(t, users)
	if _, err := users.Create(ctx, domain.User{ID: uuid.NewString(), Email: u.Email, PasswordHash: "h"}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("duplicate email: got %v", err)
	}
	got, err := users.GetByEmail(ctx, u.Email)
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetByEmail: %+v %v", got, err)
	}
	if err := users.UpdatePasswordHash(ctx, u.ID, "h2"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	if got, _ := users.GetByID(ctx, u.ID); got.PasswordHash != "h2" {
		t.Fatalf("hash not updated: %q", got.PasswordHash)
	}
	if _, err := users.GetByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("missing user: got %v", err)
	}
}

func TestFileRepositoryOwnership(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	files := NewFileRepository(pool)
	owner := newUser(t, users)
	other := newUser(t, users)

	item, err := files.Create(ctx, domain.FileRecord{
		ID:        uuid.NewString(),
		UserID:    owner.ID,
		Name:      "photo.png",
		Type:      domain.FileTypeImage,
		ParentID:  domain.RootParentID,
		LocalPath: "/tmp/x",
	})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	if _, err := files.FindOwned(ctx, item.ID, other.ID); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("foreign lookup: got %v", err)
	}
	got, err := files.FindOwned(ctx, item.ID, owner.ID)
	if err != nil || got.LocalPath != "/tmp/x" || got.Type != domain.FileTypeImage {
		t.Fatalf("owned lookup: %+v %v", got, err)
	}
	if _, err := files.SetPublic(ctx, item.ID, other.ID, true); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("foreign publish: got %v", err)
	}
	if got, err := files.SetPublic(ctx, item.ID, owner.ID, true); err != nil || !got.IsPublic {
		t.Fatalf("publish: %+v %v", got, err)
	}

	list, err := files.ListByParent(ctx, owner.ID, domain.RootParentID, 0, 20)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %d %v", len(list), err)
	}
	if list, _ := files.ListByParent(ctx, owner.ID, domain.RootParentID, 1, 20); len(list) != 0 {
		t.Fatalf("second page should be empty, got %d", len(list))
	}
}
