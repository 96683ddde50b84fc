package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/satspin/satspin/internal/infra/pgtestutil"
	"github.com/satspin/satspin/internal/repos/deposits"
	pgdeposits "github.com/satspin/satspin/internal/repos/deposits/postgres"
	"github.com/satspin/satspin/internal/repos/users"
	"github.com/satspin/satspin/internal/slots"
)

// constSource always draws the same symbol; index 0 is the star, so
// every line pays and the prize is fully predictable. Stateless, safe
// for concurrent spins.
type constSource struct{ v int }

func (s constSource) IntN(n int) int { return s.v % n }

// seqSource replays a losing draw sequence (single-goroutine only).
type seqSource struct {
	vals []int
	pos  int
}

func (s *seqSource) IntN(n int) int {
	v := s.vals[s.pos%len(s.vals)]
	s.pos++
	return v % n
}

func seedUser(t *testing.T, db *sql.DB, username string, balance int64) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO users (username, balance) VALUES ($1, $2) RETURNING id
	`, username, balance).Scan(&id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func countSpins(t *testing.T, db *sql.DB, userID int64) int {
	t.Helper()

	var n int
	err := db.QueryRow(`SELECT count(*) FROM spins WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		t.Fatalf("count spins: %v", err)
	}
	return n
}

func getBalance(t *testing.T, db *sql.DB, userID int64) int64 {
	t.Helper()

	var b int64
	err := db.QueryRow(`SELECT balance FROM users WHERE id = $1`, userID).Scan(&b)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return b
}

// allStarPrize is the credit total of an all-star grid: the middle
// row and both diagonals each pay 360.
const allStarPrize = 3 * 360

func TestSettleSpin_WinningSpinBalanceMath(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db, slots.NewGenerator(constSource{v: 0}))
	userID := seedUser(t, db, "alice", 10_000)

	res, err := svc.SettleSpin(context.Background(), userID, 100, 2)
	if err != nil {
		t.Fatalf("settle spin: %v", err)
	}

	wantCost := int64(100 * 2)
	wantPrize := int64(allStarPrize * 2)
	wantBalance := 10_000 - wantCost + wantPrize

	if res.CostSats != wantCost || res.PrizeSats != wantPrize {
		t.Fatalf("cost/prize = %d/%d, want %d/%d", res.CostSats, res.PrizeSats, wantCost, wantPrize)
	}
	if res.NewBalance != wantBalance {
		t.Fatalf("new balance = %d, want %d", res.NewBalance, wantBalance)
	}
	if got := getBalance(t, db, userID); got != wantBalance {
		t.Fatalf("persisted balance = %d, want %d", got, wantBalance)
	}
	if n := countSpins(t, db, userID); n != 1 {
		t.Fatalf("spin records = %d, want 1", n)
	}
	if len(res.Outcome.Wins) != 3 {
		t.Fatalf("winning lines = %d, want 3", len(res.Outcome.Wins))
	}
}

func TestSettleSpin_LosingSpinBalanceMath(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	// Cycling through the alphabet produces no matching line.
	svc := New(db, slots.NewGenerator(&seqSource{vals: []int{0, 1, 2, 3, 4, 5, 6}}))
	userID := seedUser(t, db, "bob", 500)

	res, err := svc.SettleSpin(context.Background(), userID, 3, 100)
	if err != nil {
		t.Fatalf("settle spin: %v", err)
	}

	if res.PrizeSats != 0 {
		t.Fatalf("prize = %d, want 0", res.PrizeSats)
	}
	if res.NewBalance != 200 {
		t.Fatalf("new balance = %d, want 200", res.NewBalance)
	}
	if got := getBalance(t, db, userID); got != 200 {
		t.Fatalf("persisted balance = %d, want 200", got)
	}
}

func TestSettleSpin_InsufficientBalanceLeavesStateUntouched(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db, slots.NewGenerator(constSource{v: 0}))
	userID := seedUser(t, db, "carol", 99)

	_, err := svc.SettleSpin(context.Background(), userID, 1, 100)
	if !errors.Is(err, users.ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}

	if got := getBalance(t, db, userID); got != 99 {
		t.Fatalf("balance changed on rejected spin: %d", got)
	}
	if n := countSpins(t, db, userID); n != 0 {
		t.Fatalf("spin record written on rejected spin")
	}
}

func TestSettleSpin_Validation(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db, nil)
	userID := seedUser(t, db, "dave", 1000)

	tests := []struct {
		name       string
		bet, price int64
	}{
		{"zero_bet", 0, 10},
		{"negative_bet", -5, 10},
		{"zero_price", 10, 0},
		{"negative_price", 10, -1},
		{"bet_above_cap", MaxBetCredits + 1, 10},
		{"price_above_cap", 10, MaxSatsPerCredit + 1},
		// bet * price wraps modulo 2^64 to a small positive cost that
		// would pass the balance check while the prize is computed at
		// the full price.
		{"product_wraps_int64", 9214364837600035841, 9007199254740993},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SettleSpin(context.Background(), userID, tt.bet, tt.price)
			if !errors.Is(err, ErrInvalidParameters) {
				t.Fatalf("want ErrInvalidParameters, got %v", err)
			}
		})
	}

	if got := getBalance(t, db, userID); got != 1000 {
		t.Fatalf("balance changed by rejected input: %d", got)
	}
	if n := countSpins(t, db, userID); n != 0 {
		t.Fatalf("spin record written for rejected input")
	}
}

func TestCreditDeposit_RejectsOversizedAmount(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db, nil)
	userID := seedUser(t, db, "whale", 0)

	_, _, err := svc.CreditDeposit(context.Background(), userID, maxCreditSats+1, "hash-big")
	if !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("want ErrInvalidParameters, got %v", err)
	}

	if got := getBalance(t, db, userID); got != 0 {
		t.Fatalf("balance changed by rejected credit: %d", got)
	}
}

func TestSettleSpin_UnknownUser(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db, nil)

	_, err := svc.SettleSpin(context.Background(), 424242, 1, 1)
	if !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
}

func TestSettleSpin_ConcurrentSpinsNoLostUpdates(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	// Every spin wins allStarPrize credits; with bet 1200 at price 1
	// each spin nets exactly -120 sats. N concurrent spins must land
	// on the same balance as N sequential ones.
	const (
		n     = 16
		bet   = 1200
		price = 1
		net   = bet*price - allStarPrize*price
	)

	svc := New(db, slots.NewGenerator(constSource{v: 0}))
	start := int64(n * bet * price)
	userID := seedUser(t, db, "erin", start)

	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SettleSpin(context.Background(), userID, bet, price)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent spin failed: %v", err)
		}
	}

	want := start - int64(n*net)
	if got := getBalance(t, db, userID); got != want {
		t.Fatalf("final balance = %d, want %d (lost update)", got, want)
	}
	if got := countSpins(t, db, userID); got != n {
		t.Fatalf("spin records = %d, want %d", got, n)
	}
}

func TestCreditDeposit_IdempotentPerPaymentHash(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db, nil)
	userID := seedUser(t, db, "frank", 0)

	dep := &deposits.Deposit{
		UserID:         userID,
		PaymentHash:    "hash-1",
		PaymentRequest: "lnbc1...",
		AmountSats:     2100,
	}
	if err := pgdeposits.New(db).Insert(context.Background(), dep); err != nil {
		t.Fatalf("insert deposit: %v", err)
	}

	balance, credited, err := svc.CreditDeposit(context.Background(), userID, 2100, "hash-1")
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	if !credited || balance != 2100 {
		t.Fatalf("first credit: credited=%v balance=%d", credited, balance)
	}

	// Duplicate poll must not double-credit.
	balance, credited, err = svc.CreditDeposit(context.Background(), userID, 2100, "hash-1")
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if credited || balance != 2100 {
		t.Fatalf("second credit applied twice: credited=%v balance=%d", credited, balance)
	}

	if got := getBalance(t, db, userID); got != 2100 {
		t.Fatalf("persisted balance = %d, want 2100", got)
	}
}

func TestCreditDeposit_ConcurrentPollsCreditOnce(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db, nil)
	userID := seedUser(t, db, "grace", 0)

	dep := &deposits.Deposit{
		UserID:         userID,
		PaymentHash:    "hash-race",
		PaymentRequest: "lnbc1...",
		AmountSats:     500,
	}
	if err := pgdeposits.New(db).Insert(context.Background(), dep); err != nil {
		t.Fatalf("insert deposit: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	creditedCount := make(chan bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, credited, err := svc.CreditDeposit(context.Background(), userID, 500, "hash-race")
			if err != nil {
				t.Errorf("concurrent credit: %v", err)
				return
			}
			creditedCount <- credited
		}()
	}
	wg.Wait()
	close(creditedCount)

	applied := 0
	for c := range creditedCount {
		if c {
			applied++
		}
	}

	if applied != 1 {
		t.Fatalf("credit applied %d times, want exactly 1", applied)
	}
	if got := getBalance(t, db, userID); got != 500 {
		t.Fatalf("final balance = %d, want 500", got)
	}
}
