package users

import (
	"context"
	"fmt"

	"github.com/satspin/satspin/internal/repos/users"
)

func (r *usersRepo) Exists(ctx context.Context, userID int64) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}

	if !exists {
		return users.ErrUserNotFound
	}

	return nil
}
