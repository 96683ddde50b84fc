package users

import (
	"context"
	"database/sql"
	"errors"
)

var ErrUserNotFound = errors.New("user not found")
var ErrInsufficientBalance = errors.New("insufficient balance")

// User is a player account. Balance is denominated in sats and is
// only mutated through ledger transactions.
type User struct {
	ID       int64
	Username string
	Balance  int64
}

type Users interface {
	// GetOrCreate returns the user for username, creating it with a
	// zero balance on first login.
	GetOrCreate(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, userID int64) (User, error)
	// Exists is the cheap existence probe for flows that do not need
	// the row, such as invoice minting.
	Exists(ctx context.Context, userID int64) error
	// LockAndGetBalance takes the user's row lock for the duration of
	// tx; all balance mutations for a user serialize on this lock.
	LockAndGetBalance(tx *sql.Tx, userID int64) (int64, error)
	IncreaseBalance(tx *sql.Tx, userID int64, amountSats int64) error
	DecreaseBalance(tx *sql.Tx, userID int64, amountSats int64) error
}
