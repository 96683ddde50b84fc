package users

import (
	"database/sql"
	"fmt"

	"github.com/satspin/satspin/internal/repos/users"
)

// DecreaseBalance debits the user, guarded in SQL so the balance can
// never go negative even if a caller skips the pre-check.
func (r *usersRepo) DecreaseBalance(tx *sql.Tx, userID int64, amountSats int64) error {
	res, err := tx.Exec(`
		UPDATE users
		SET balance = balance - $2
		WHERE id = $1
		  AND balance >= $2
	`, userID, amountSats)
	if err != nil {
		return fmt.Errorf("decrease balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return users.ErrInsufficientBalance
	}

	return nil
}
