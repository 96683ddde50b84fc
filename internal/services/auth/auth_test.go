package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/satspin/satspin/internal/infra/pgtestutil"
)

func newTestService(t *testing.T) (*Service, func()) {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)

	return New(db, "test-secret", time.Hour), cleanup
}

func TestLogin_CreatesAccountOnFirstLogin(t *testing.T) {
	svc, cleanup := newTestService(t)
	defer cleanup()

	user, token, err := svc.Login(context.Background(), "satoshi")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if user.Username != "satoshi" || user.Balance != 0 {
		t.Fatalf("new account: %+v", user)
	}
	if token == "" {
		t.Fatalf("no token issued")
	}
}

func TestLogin_SameUsernameSameAccount(t *testing.T) {
	svc, cleanup := newTestService(t)
	defer cleanup()

	first, _, err := svc.Login(context.Background(), "finney")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}

	second, _, err := svc.Login(context.Background(), "finney")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("repeat login created new account: %d != %d", first.ID, second.ID)
	}
}

func TestLogin_TrimsWhitespace(t *testing.T) {
	svc, cleanup := newTestService(t)
	defer cleanup()

	a, _, err := svc.Login(context.Background(), "  szabo  ")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	b, _, err := svc.Login(context.Background(), "szabo")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if a.ID != b.ID {
		t.Fatalf("whitespace variants mapped to different accounts")
	}
	if a.Username != "szabo" {
		t.Fatalf("stored username = %q", a.Username)
	}
}

func TestLogin_RejectsInvalidUsernames(t *testing.T) {
	svc, cleanup := newTestService(t)
	defer cleanup()

	for _, username := range []string{"", "   ", strings.Repeat("x", 65)} {
		_, _, err := svc.Login(context.Background(), username)
		if !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("username %q: want ErrInvalidUsername, got %v", username, err)
		}
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	svc, cleanup := newTestService(t)
	defer cleanup()

	user, token, err := svc.Login(context.Background(), "adam")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	userID, username, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != user.ID || username != "adam" {
		t.Fatalf("verify returned %d/%q, want %d/%q", userID, username, user.ID, "adam")
	}
}

func TestVerify_RejectsTamperedAndForeignTokens(t *testing.T) {
	svc, cleanup := newTestService(t)
	defer cleanup()

	_, token, err := svc.Login(context.Background(), "eve")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"tampered", token[:len(token)-2] + "xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db, "test-secret", -time.Minute)

	_, token, err := svc.Login(context.Background(), "mallory")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, _, err = svc.Verify(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerify_RejectsTokenSignedWithOtherSecret(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	issuer := New(db, "secret-a", time.Hour)
	verifier := New(db, "secret-b", time.Hour)

	_, token, err := issuer.Login(context.Background(), "trent")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, _, err = verifier.Verify(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken across secrets, got %v", err)
	}
}
