package spins

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Spin is one resolved spin. Rows are append-only: written once after
// the balance mutation is decided, never updated or deleted.
type Spin struct {
	ID        int64
	UserID    int64
	Nonce     int64
	Outcome   json.RawMessage
	BetSats   int64
	PrizeSats int64
	CreatedAt time.Time
}

type Spins interface {
	// Insert appends the record inside the same transaction as the
	// balance write.
	Insert(tx *sql.Tx, s *Spin) error
	ListRecent(ctx context.Context, userID int64, limit int) ([]Spin, error)
}
