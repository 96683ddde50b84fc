// Package auth handles username-only login and the bearer tokens that
// identify a player on later requests. There is no password: the
// username is the account key, created on first login.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/satspin/satspin/internal/repos/users"
	pgusers "github.com/satspin/satspin/internal/repos/users/postgres"
)

var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidToken    = errors.New("invalid token")
)

// maxUsernameLen bounds usernames; the value is runes, not bytes.
const maxUsernameLen = 64

type tokenClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"name"`
	jwt.RegisteredClaims
}

type Service struct {
	users  users.Users
	secret []byte
	ttl    time.Duration
}

func New(dbx *sql.DB, secret string, ttl time.Duration) *Service {
	return &Service{
		users:  pgusers.New(dbx),
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Login normalizes the username, creates the account if it does not
// exist yet, and returns the user with a signed bearer token.
func (s *Service) Login(ctx context.Context, username string) (users.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLen {
		return users.User{}, "", ErrInvalidUsername
	}

	user, err := s.users.GetOrCreate(ctx, username)
	if err != nil {
		return users.User{}, "", fmt.Errorf("login: %w", err)
	}

	token, err := s.mintToken(user)
	if err != nil {
		return users.User{}, "", fmt.Errorf("login: %w", err)
	}

	return user, token, nil
}

func (s *Service) mintToken(user users.User) (string, error) {
	now := time.Now()

	claims := tokenClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return token, nil
}

// Verify checks the token's signature and expiry and returns the
// identity it carries.
func (s *Service) Verify(tokenString string) (userID int64, username string, err error) {
	var claims tokenClaims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, "", ErrInvalidToken
	}

	if claims.UserID <= 0 {
		return 0, "", ErrInvalidToken
	}

	return claims.UserID, claims.Username, nil
}
