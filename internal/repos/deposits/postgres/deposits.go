package deposits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/satspin/satspin/internal/infra/pgutils"
	"github.com/satspin/satspin/internal/repos/deposits"
)

var _ deposits.Deposits = (*depositsRepo)(nil)

type depositsRepo struct{ db *sql.DB }

func New(db *sql.DB) *depositsRepo {
	return &depositsRepo{db: db}
}

func (r *depositsRepo) Insert(ctx context.Context, d *deposits.Deposit) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO deposits (user_id, payment_hash, payment_request, amount_sats)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, d.UserID, d.PaymentHash, d.PaymentRequest, d.AmountSats).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return deposits.ErrDuplicateDeposit
		}

		return fmt.Errorf("insert deposit: %w", err)
	}

	return nil
}

func (r *depositsRepo) GetByHash(ctx context.Context, userID int64, paymentHash string) (deposits.Deposit, error) {
	var d deposits.Deposit
	var paidAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, payment_hash, payment_request,
		       amount_sats, credited_sats, paid, created_at, paid_at
		FROM deposits
		WHERE user_id = $1 AND payment_hash = $2
	`, userID, paymentHash).Scan(
		&d.ID, &d.UserID, &d.PaymentHash, &d.PaymentRequest,
		&d.AmountSats, &d.CreditedSats, &d.Paid, &d.CreatedAt, &paidAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deposits.Deposit{}, deposits.ErrDepositNotFound
		}

		return deposits.Deposit{}, fmt.Errorf("get deposit: %w", err)
	}

	if paidAt.Valid {
		d.PaidAt = &paidAt.Time
	}

	return d, nil
}

// MarkPaid is the atomic update-if-not-already-paid guard: the WHERE
// clause makes a second settlement attempt a no-op, regardless of how
// many pollers race on the same hash.
func (r *depositsRepo) MarkPaid(tx *sql.Tx, paymentHash string, creditedSats int64) (bool, error) {
	res, err := tx.Exec(`
		UPDATE deposits
		SET paid = TRUE, credited_sats = $2, paid_at = now()
		WHERE payment_hash = $1
		  AND NOT paid
	`, paymentHash, creditedSats)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *depositsRepo) ListPending(ctx context.Context, minAge time.Duration, limit int) ([]deposits.Deposit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, payment_hash, payment_request,
		       amount_sats, credited_sats, paid, created_at
		FROM deposits
		WHERE NOT paid
		  AND created_at <= now() - $1::interval
		ORDER BY created_at
		LIMIT $2
	`, fmt.Sprintf("%d seconds", int(minAge.Seconds())), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []deposits.Deposit
	for rows.Next() {
		var d deposits.Deposit
		err = rows.Scan(
			&d.ID, &d.UserID, &d.PaymentHash, &d.PaymentRequest,
			&d.AmountSats, &d.CreditedSats, &d.Paid, &d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, d)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}

	return out, nil
}
