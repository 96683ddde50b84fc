package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/satspin/satspin/internal/repos/users"
)

func (r *usersRepo) GetByID(ctx context.Context, userID int64) (users.User, error) {
	var u users.User

	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, balance
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Username, &u.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.User{}, users.ErrUserNotFound
		}

		return users.User{}, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}
