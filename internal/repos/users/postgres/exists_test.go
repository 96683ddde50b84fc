package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satspin/satspin/internal/infra/pgtestutil"
	"github.com/satspin/satspin/internal/repos/users"
)

func TestUsers_Exists(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	userID := seedUser(t, db, "present", 0)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	err := repo.Exists(ctx, userID)
	if err != nil {
		t.Fatalf("existing user: %v", err)
	}

	err = repo.Exists(ctx, 999_999)
	if !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("missing user: got %v, want ErrUserNotFound", err)
	}
}

func TestUsers_GetByID(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	userID := seedUser(t, db, "whois", 777)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if user.Username != "whois" || user.Balance != 777 {
		t.Fatalf("user = %+v", user)
	}

	_, err = repo.GetByID(ctx, 999_999)
	if !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("missing user: got %v, want ErrUserNotFound", err)
	}
}
