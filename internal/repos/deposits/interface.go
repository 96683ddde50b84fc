package deposits

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrDuplicateDeposit = errors.New("duplicate deposit")
var ErrDepositNotFound = errors.New("deposit not found")

// Deposit is one Lightning invoice issued for a user. AmountSats is
// the requested amount; CreditedSats is the amount actually credited
// once the invoice is observed paid. Paid is monotonic false→true.
type Deposit struct {
	ID             int64
	UserID         int64
	PaymentHash    string
	PaymentRequest string
	AmountSats     int64
	CreditedSats   int64
	Paid           bool
	CreatedAt      time.Time
	PaidAt         *time.Time
}

type Deposits interface {
	// Insert persists a pending deposit; a reused payment hash yields
	// ErrDuplicateDeposit via the unique index.
	Insert(ctx context.Context, d *Deposit) error
	GetByHash(ctx context.Context, userID int64, paymentHash string) (Deposit, error)
	// MarkPaid flips paid exactly once. It reports false when the row
	// was already paid, which is the idempotency guard for crediting.
	MarkPaid(tx *sql.Tx, paymentHash string, creditedSats int64) (bool, error)
	// ListPending returns unpaid deposits created at least minAge ago,
	// oldest first, for the background sweep.
	ListPending(ctx context.Context, minAge time.Duration, limit int) ([]Deposit, error)
}
