package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/satspin/satspin/internal/infra/pgtestutil"
	"github.com/satspin/satspin/internal/repos/users"
)

func seedUser(t *testing.T, db *sql.DB, username string, balance int64) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO users (username, balance) VALUES ($1, $2) RETURNING id
	`, username, balance).Scan(&id)
	if err != nil {
		t.Fatalf("seed user %q: %v", username, err)
	}
	return id
}

func TestUsers_LockAndGetBalance_ReturnsBalance(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	userID := seedUser(t, db, "locked", 640)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	got, err := repo.LockAndGetBalance(tx, userID)
	if err != nil {
		t.Fatalf("lock and get: %v", err)
	}
	if got != 640 {
		t.Fatalf("balance = %d, want 640", got)
	}
}

func TestUsers_LockAndGetBalance_UserNotFound(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = repo.LockAndGetBalance(tx, 999_999)
	if !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
}

func TestUsers_LockAndGetBalance_SerializesWriters(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	userID := seedUser(t, db, "contended", 0)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	// First tx takes the row lock.
	tx1, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx1: %v", err)
	}
	defer func() { _ = tx1.Rollback() }()

	_, err = repo.LockAndGetBalance(tx1, userID)
	if err != nil {
		t.Fatalf("tx1 lock: %v", err)
	}

	// Second tx must wait on the same row until tx1 finishes.
	acquired := make(chan int64, 1)
	errCh := make(chan error, 1)

	go func() {
		tx2, e := db.BeginTx(ctx, nil)
		if e != nil {
			errCh <- e
			return
		}
		defer func() { _ = tx2.Rollback() }()

		balance, e := repo.LockAndGetBalance(tx2, userID)
		if e != nil {
			errCh <- e
			return
		}
		acquired <- balance
	}()

	select {
	case <-acquired:
		t.Fatalf("second tx acquired the lock while held")
	case e := <-errCh:
		t.Fatalf("second tx error: %v", e)
	case <-time.After(300 * time.Millisecond):
		// still blocked, as expected
	}

	err = repo.IncreaseBalance(tx1, userID, 500)
	if err != nil {
		t.Fatalf("tx1 increase: %v", err)
	}
	err = tx1.Commit()
	if err != nil {
		t.Fatalf("tx1 commit: %v", err)
	}

	// After commit the waiter proceeds and sees tx1's write.
	select {
	case balance := <-acquired:
		if balance != 500 {
			t.Fatalf("waiter saw balance %d, want 500", balance)
		}
	case e := <-errCh:
		t.Fatalf("waiter error: %v", e)
	case <-ctx.Done():
		t.Fatalf("waiter never acquired the lock")
	}
}
