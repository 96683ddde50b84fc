// Package ledger owns every balance mutation. A mutation runs inside
// a single database transaction holding the user's row lock, so
// concurrent spins and deposit settlements for one user serialize
// while different users proceed independently.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/satspin/satspin/internal/infra/pgutils"
	"github.com/satspin/satspin/internal/repos/deposits"
	pgdeposits "github.com/satspin/satspin/internal/repos/deposits/postgres"
	"github.com/satspin/satspin/internal/repos/spins"
	pgspins "github.com/satspin/satspin/internal/repos/spins/postgres"
	"github.com/satspin/satspin/internal/repos/users"
	pgusers "github.com/satspin/satspin/internal/repos/users/postgres"
	"github.com/satspin/satspin/internal/slots"
)

var ErrInvalidParameters = errors.New("invalid parameters")

// Caps on client-supplied spin parameters and on a single credit.
// They keep cost (bet * price) and prize (creditsWon * price) inside
// int64: without them the product can wrap to a small positive cost
// that passes the balance check while the prize is computed at the
// full price. maxCreditSats is the total bitcoin supply in sats.
const (
	MaxBetCredits    = 1_000_000
	MaxSatsPerCredit = 1_000_000

	maxCreditSats = 2_100_000_000_000_000
)

type Service struct {
	db       *sql.DB
	users    users.Users
	deposits deposits.Deposits
	spins    spins.Spins
	gen      *slots.Generator
}

// New builds a ledger over dbx. gen may be nil, in which case the
// default uniform generator is used; tests inject a deterministic one.
func New(dbx *sql.DB, gen *slots.Generator) *Service {
	if gen == nil {
		gen = slots.NewGenerator(nil)
	}

	return &Service{
		db:       dbx,
		users:    pgusers.New(dbx),
		deposits: pgdeposits.New(dbx),
		spins:    pgspins.New(dbx),
		gen:      gen,
	}
}

// SpinResult is the full settlement of one spin.
type SpinResult struct {
	Outcome       slots.Outcome
	BetCredits    int64
	SatsPerCredit int64
	CostSats      int64
	PrizeSats     int64
	NewBalance    int64
	Nonce         int64
}

// SettleSpin resolves one spin for the user:
//
// 1) Lock the user row (FOR UPDATE).
// 2) Debit cost = betCredits * satsPerCredit, rejecting
//    ErrInsufficientBalance with nothing written.
// 3) Generate and evaluate the outcome; prize = creditsWon * satsPerCredit.
// 4) Apply debit and credit, append the immutable spin record.
//
// Balance write and spin record commit or roll back together.
func (s *Service) SettleSpin(ctx context.Context, userID, betCredits, satsPerCredit int64) (SpinResult, error) {
	if betCredits <= 0 || satsPerCredit <= 0 ||
		betCredits > MaxBetCredits || satsPerCredit > MaxSatsPerCredit {
		return SpinResult{}, fmt.Errorf("bet %d, price %d: %w", betCredits, satsPerCredit, ErrInvalidParameters)
	}

	cost := betCredits * satsPerCredit

	var result SpinResult

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		balance, err := s.users.LockAndGetBalance(tx, userID)
		if err != nil {
			return fmt.Errorf("lock and get balance: %w", err)
		}

		if balance < cost {
			return fmt.Errorf("balance %d, cost %d: %w", balance, cost, users.ErrInsufficientBalance)
		}

		outcome := s.gen.Spin()
		prize := outcome.TotalCredits * satsPerCredit

		err = s.users.DecreaseBalance(tx, userID, cost)
		if err != nil {
			return fmt.Errorf("debit bet: %w", err)
		}

		if prize > 0 {
			err = s.users.IncreaseBalance(tx, userID, prize)
			if err != nil {
				return fmt.Errorf("credit prize: %w", err)
			}
		}

		raw, err := slots.MarshalOutcome(outcome)
		if err != nil {
			return fmt.Errorf("marshal outcome: %w", err)
		}

		record := spins.Spin{
			UserID:    userID,
			Nonce:     time.Now().UnixNano(),
			Outcome:   raw,
			BetSats:   cost,
			PrizeSats: prize,
		}
		err = s.spins.Insert(tx, &record)
		if err != nil {
			return fmt.Errorf("insert spin record: %w", err)
		}

		result = SpinResult{
			Outcome:       outcome,
			BetCredits:    betCredits,
			SatsPerCredit: satsPerCredit,
			CostSats:      cost,
			PrizeSats:     prize,
			NewBalance:    balance - cost + prize,
			Nonce:         record.Nonce,
		}

		return nil
	})
	if err != nil {
		return SpinResult{}, fmt.Errorf("settle spin: %w", err)
	}

	return result, nil
}

// CreditDeposit credits amountSats for the given payment hash exactly
// once. A repeat call for an already-settled hash returns the current
// balance unchanged with credited = false.
func (s *Service) CreditDeposit(ctx context.Context, userID, amountSats int64, paymentHash string) (newBalance int64, credited bool, err error) {
	if amountSats <= 0 || amountSats > maxCreditSats || paymentHash == "" {
		return 0, false, fmt.Errorf("amount %d: %w", amountSats, ErrInvalidParameters)
	}

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		balance, lerr := s.users.LockAndGetBalance(tx, userID)
		if lerr != nil {
			return fmt.Errorf("lock and get balance: %w", lerr)
		}

		applied, merr := s.deposits.MarkPaid(tx, paymentHash, amountSats)
		if merr != nil {
			return fmt.Errorf("mark deposit paid: %w", merr)
		}

		if !applied {
			newBalance = balance
			credited = false

			return nil
		}

		ierr := s.users.IncreaseBalance(tx, userID, amountSats)
		if ierr != nil {
			return fmt.Errorf("credit deposit: %w", ierr)
		}

		newBalance = balance + amountSats
		credited = true

		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("credit deposit: %w", err)
	}

	return newBalance, credited, nil
}

// GetBalance returns the user's balance without taking locks.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}

	return u.Balance, nil
}
