package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pocketllm/pocketllm/pkg/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	s := New(st, "test-secret", 0)
	s.cost = bcrypt.MinCost
	return s
}

func TestSignUpAndSignIn(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	u, token, err := s.SignUp(ctx, "bob@example.com", "hunter2", "Bob")
	if err != nil {
		t.Fatal(err)
	}
	if u.PasswordHash == "hunter2" {
		t.Error("password stored in clear text")
	}
	id, err := s.Authenticate(token)
	if err != nil {
		t.Fatal(err)
	}
	if id != u.ID {
		t.Errorf("token subject = %q, want %q", id, u.ID)
	}

	signedIn, _, err := s.SignIn(ctx, "BOB@example.com", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if signedIn.ID != u.ID {
		t.Errorf("signed in as %q, want %q", signedIn.ID, u.ID)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, _, err := s.SignUp(ctx, "dup@example.com", "pw", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.SignUp(ctx, "dup@example.com", "pw2", ""); !errors.Is(err, store.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestSignUpMissingFields(t *testing.T) {
	s := newTestService(t)
	if _, _, err := s.SignUp(context.Background(), " ", "pw", ""); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, _, err := s.SignUp(context.Background(), "a@b.c", "", ""); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, _, _ = s.SignUp(ctx, "carol@example.com", "right", "")

	if _, _, err := s.SignIn(ctx, "carol@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := s.SignIn(ctx, "nobody@example.com", "right"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	u, token, _ := s.SignUp(ctx, "dave@example.com", "pw", "")

	other := New(nil, "different-secret", 0)
	forged, err := other.IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}

	expiring := New(nil, "test-secret", time.Hour)
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiring.IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}

	for name, tok := range map[string]string{
		"empty":   "",
		"garbage": "not-a-token",
		"forged":  forged,
		"expired": expired,
	} {
		if _, err := s.Authenticate(tok); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}

	if _, err := s.Authenticate(token); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	u, token, _ := s.SignUp(ctx, "erin@example.com", "pw", "Erin")

	got, err := s.CurrentUser(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID || got.Name != "Erin" {
		t.Errorf("unexpected user: %+v", got)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	k, err := s.CreateAPIKey(ctx, "user-1", "  scripts ")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(k.Secret, APIKeyPrefix) {
		t.Fatalf("secret %q lacks prefix", k.Secret)
	}
	// 32 random bytes in unpadded base64url.
	if len(k.Secret) != len(APIKeyPrefix)+43 {
		t.Errorf("unexpected secret length %d", len(k.Secret))
	}
	if k.Name != "scripts" || !strings.HasPrefix(k.Secret, k.Prefix) {
		t.Errorf("unexpected key: %+v", k)
	}

	got, err := s.AuthenticateAPIKey(ctx, k.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != k.ID || got.UserID != "user-1" || got.Secret != "" || got.LastUsedAt == nil {
		t.Errorf("unexpected authenticated key: %+v", got)
	}

	other, _ := s.CreateAPIKey(ctx, "user-1", "other")
	if other.Secret == k.Secret {
		t.Error("secrets must be unique")
	}
}

func TestAPIKeyRejected(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.CreateAPIKey(ctx, "user-1", "   "); !errors.Is(err, ErrMissingKeyName) {
		t.Errorf("expected ErrMissingKeyName, got %v", err)
	}
	for _, secret := range []string{"", "pk_", "sk_abc", "pk_doesnotexist"} {
		if _, err := s.AuthenticateAPIKey(ctx, secret); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("secret %q: expected ErrUnauthenticated, got %v", secret, err)
		}
	}
}
