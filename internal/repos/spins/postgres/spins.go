package spins

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/satspin/satspin/internal/repos/spins"
)

var _ spins.Spins = (*spinsRepo)(nil)

type spinsRepo struct{ db *sql.DB }

func New(db *sql.DB) *spinsRepo {
	return &spinsRepo{db: db}
}

func (r *spinsRepo) Insert(tx *sql.Tx, s *spins.Spin) error {
	err := tx.QueryRow(`
		INSERT INTO spins (user_id, nonce, outcome, bet_sats, prize_sats)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, s.UserID, s.Nonce, s.Outcome, s.BetSats, s.PrizeSats).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert spin: %w", err)
	}

	return nil
}

func (r *spinsRepo) ListRecent(ctx context.Context, userID int64, limit int) ([]spins.Spin, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, nonce, outcome, bet_sats, prize_sats, created_at
		FROM spins
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list spins: %w", err)
	}
	defer rows.Close()

	var out []spins.Spin
	for rows.Next() {
		var s spins.Spin
		err = rows.Scan(&s.ID, &s.UserID, &s.Nonce, &s.Outcome, &s.BetSats, &s.PrizeSats, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan spin: %w", err)
		}
		out = append(out, s)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate spins: %w", err)
	}

	return out, nil
}
