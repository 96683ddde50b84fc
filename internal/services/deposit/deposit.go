// Package deposit drives the life of a Lightning deposit: mint an
// invoice through the payment provider, then observe it until paid and
// credit the user's balance exactly once.
package deposit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/satspin/satspin/internal/lightning"
	"github.com/satspin/satspin/internal/repos/deposits"
	pgdeposits "github.com/satspin/satspin/internal/repos/deposits/postgres"
	"github.com/satspin/satspin/internal/repos/users"
	pgusers "github.com/satspin/satspin/internal/repos/users/postgres"
	"github.com/satspin/satspin/internal/services/ledger"
)

var ErrInvalidAmount = errors.New("invalid deposit amount")

// MaxDepositSats is the total bitcoin supply in sats. It bounds the
// requested amount so the millisat comparison in normalizePaidAmount
// (requested * 1000) stays inside int64.
const MaxDepositSats = 2_100_000_000_000_000

// SettledFunc is invoked after a deposit is credited, outside the
// database transaction. The websocket hub hangs off this hook.
type SettledFunc func(userID, creditedSats, newBalance int64, paymentHash string)

type Service struct {
	users    users.Users
	deposits deposits.Deposits
	ledger   *ledger.Service
	oracle   lightning.Oracle

	// OnSettled may be nil. It fires at most once per payment hash
	// because crediting itself is exactly-once.
	OnSettled SettledFunc
}

func New(dbx *sql.DB, led *ledger.Service, oracle lightning.Oracle) *Service {
	return &Service{
		users:    pgusers.New(dbx),
		deposits: pgdeposits.New(dbx),
		ledger:   led,
		oracle:   oracle,
	}
}

// RequestDeposit mints an invoice for amountSats and records it as a
// pending deposit. Input is validated before the provider is called,
// so a bad amount never costs a round trip.
func (s *Service) RequestDeposit(ctx context.Context, userID, amountSats int64) (deposits.Deposit, error) {
	if amountSats <= 0 || amountSats > MaxDepositSats {
		return deposits.Deposit{}, fmt.Errorf("amount %d: %w", amountSats, ErrInvalidAmount)
	}

	err := s.users.Exists(ctx, userID)
	if err != nil {
		return deposits.Deposit{}, fmt.Errorf("request deposit: %w", err)
	}

	memo := fmt.Sprintf("satspin deposit user %d", userID)

	inv, err := s.oracle.CreateInvoice(ctx, amountSats, memo)
	if err != nil {
		return deposits.Deposit{}, fmt.Errorf("create invoice: %w", err)
	}

	dep := deposits.Deposit{
		UserID:         userID,
		PaymentHash:    inv.PaymentHash,
		PaymentRequest: inv.PaymentRequest,
		AmountSats:     amountSats,
	}

	err = s.deposits.Insert(ctx, &dep)
	if err != nil {
		return deposits.Deposit{}, fmt.Errorf("persist deposit: %w", err)
	}

	return dep, nil
}

// Status is the reconciler's answer for one payment hash.
type Status struct {
	PaymentHash  string
	Paid         bool
	CreditedSats int64
	Balance      int64
}

// CheckAndSettle reports the deposit's state, consulting the provider
// only while the deposit is still pending. The first call that finds
// the invoice paid credits the balance; later calls return the stored
// result without touching the provider again.
func (s *Service) CheckAndSettle(ctx context.Context, userID int64, paymentHash string) (Status, error) {
	dep, err := s.deposits.GetByHash(ctx, userID, paymentHash)
	if err != nil {
		return Status{}, fmt.Errorf("check deposit: %w", err)
	}

	if dep.Paid {
		balance, berr := s.ledger.GetBalance(ctx, userID)
		if berr != nil {
			return Status{}, fmt.Errorf("check deposit: %w", berr)
		}

		return Status{
			PaymentHash:  paymentHash,
			Paid:         true,
			CreditedSats: dep.CreditedSats,
			Balance:      balance,
		}, nil
	}

	st, err := s.oracle.InvoiceStatus(ctx, paymentHash)
	if err != nil {
		return Status{}, fmt.Errorf("invoice status: %w", err)
	}

	if !st.Paid {
		balance, berr := s.ledger.GetBalance(ctx, userID)
		if berr != nil {
			return Status{}, fmt.Errorf("check deposit: %w", berr)
		}

		return Status{PaymentHash: paymentHash, Balance: balance}, nil
	}

	credit := normalizePaidAmount(st.PaidAmount, dep.AmountSats)

	newBalance, credited, err := s.ledger.CreditDeposit(ctx, userID, credit, paymentHash)
	if err != nil {
		return Status{}, fmt.Errorf("settle deposit: %w", err)
	}

	if credited && s.OnSettled != nil {
		s.OnSettled(userID, credit, newBalance, paymentHash)
	}

	return Status{
		PaymentHash:  paymentHash,
		Paid:         true,
		CreditedSats: credit,
		Balance:      newBalance,
	}, nil
}

// SweepPending settles deposits that are still pending after minAge
// from sweepOpts. Provider failures on one deposit do not stop the
// sweep; they are logged and the row is retried next round.
func (s *Service) SweepPending(ctx context.Context) {
	pending, err := s.deposits.ListPending(ctx, s.sweepMinAge(), sweepBatchSize)
	if err != nil {
		slog.Error("deposit sweep: list pending", "error", err)

		return
	}

	for _, dep := range pending {
		st, err := s.CheckAndSettle(ctx, dep.UserID, dep.PaymentHash)
		if err != nil {
			slog.Warn("deposit sweep: check failed",
				"payment_hash", dep.PaymentHash,
				"user_id", dep.UserID,
				"error", err)

			continue
		}

		if st.Paid {
			slog.Info("deposit sweep: settled",
				"payment_hash", dep.PaymentHash,
				"user_id", dep.UserID,
				"credited_sats", st.CreditedSats)
		}
	}
}
