package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pocketllm/pocketllm/pkg/models"
	"github.com/pocketllm/pocketllm/pkg/store"
)

const (
	// APIKeyPrefix starts every API key secret.
	APIKeyPrefix = "pk_"
	apiKeyBytes  = 32
	// displayPrefixLen is how much of the secret is kept for listings.
	displayPrefixLen = 10
)

// ErrMissingKeyName is returned when creating a key without a name.
var ErrMissingKeyName = errors.New("key name is required")

// CreateAPIKey issues a new key for userID. The returned key carries the
// plaintext secret; it cannot be recovered later.
func (s *Service) CreateAPIKey(ctx context.Context, userID, name string) (*models.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMissingKeyName
	}
	secret, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	k, err := s.users.CreateAPIKey(ctx, userID, name, hashAPIKey(secret), secret[:displayPrefixLen])
	if err != nil {
		return nil, err
	}
	k.Secret = secret
	return k, nil
}

// AuthenticateAPIKey resolves a bearer secret to its key and stamps its
// last use.
func (s *Service) AuthenticateAPIKey(ctx context.Context, secret string) (*models.APIKey, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, APIKeyPrefix) || len(secret) <= len(APIKeyPrefix) {
		return nil, ErrUnauthenticated
	}
	k, err := s.users.UseAPIKey(ctx, hashAPIKey(secret))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	return k, err
}

func generateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func hashAPIKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
