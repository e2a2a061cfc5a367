// Package auth handles account sign-up, sign-in, session tokens and API keys.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pocketllm/pocketllm/pkg/models"
	"github.com/pocketllm/pocketllm/pkg/store"
)

// DefaultSessionTTL is how long a session token stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

var (
	// ErrUnauthenticated is returned for a missing, malformed, forged or
	// expired session token.
	ErrUnauthenticated = errors.New("unauthorized")
	// ErrInvalidCredentials is returned when email or password do not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrMissingCredentials is returned when email or password is empty.
	ErrMissingCredentials = errors.New("email and password are required")
)

// Users is the account and API key storage the service needs.
type Users interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
	CreateAPIKey(ctx context.Context, userID, name, secretHash, prefix string) (*models.APIKey, error)
	UseAPIKey(ctx context.Context, secretHash string) (*models.APIKey, error)
}

// SessionClaims are the JWT claims of a session token. Subject holds the user ID.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Service issues and verifies session tokens.
type Service struct {
	users  Users
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// New creates a Service. A non-positive ttl selects DefaultSessionTTL.
func New(users Users, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// TTL returns the session lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// SignUp creates an account and returns it with a fresh session token.
// A taken email yields store.ErrUserExists.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*models.User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", ErrMissingCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		return nil, "", err
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// SignIn verifies credentials and returns the account with a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*models.User, string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, "", ErrMissingCredentials
	}
	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// IssueToken signs an HS256 session token for u.
func (s *Service) IssueToken(u *models.User) (string, error) {
	now := s.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Email: u.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Authenticate returns the user ID carried by a valid session token.
func (s *Service) Authenticate(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}

// CurrentUser resolves a session token to its account. A token for a
// deleted account is treated as unauthenticated.
func (s *Service) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	id, err := s.Authenticate(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.UserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	return u, err
}
