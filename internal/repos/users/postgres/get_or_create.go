package users

import (
	"context"
	"fmt"

	"github.com/satspin/satspin/internal/repos/users"
)

// GetOrCreate upserts by username. The no-op DO UPDATE makes the
// statement return the existing row instead of nothing on conflict.
func (r *usersRepo) GetOrCreate(ctx context.Context, username string) (users.User, error) {
	var u users.User

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username)
		VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id, username, balance
	`, username).Scan(&u.ID, &u.Username, &u.Balance)
	if err != nil {
		return users.User{}, fmt.Errorf("get or create user: %w", err)
	}

	return u, nil
}
