package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/schoolhub/schoolhub/internal/shared"
)

type stubRepo struct {
	user     *User
	findErr  error
	sessions []string
	removed  []string
}

func (r *stubRepo) FindByEmail(_ context.Context, _ string) (*User, error) {
	return r.user, r.findErr
}

func (r *stubRepo) CreateSession(_ context.Context, id string, _ int64, _ time.Time, _, _ string) error {
	r.sessions = append(r.sessions, id)
	return nil
}

func (r *stubRepo) DeleteSession(_ context.Context, id string) error {
	r.removed = append(r.removed, id)
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func TestAuthenticate(t *testing.T) {
	repo := &stubRepo{user: &User{
		ID:           7,
		Email:        "teacher@example.org",
		PasswordHash: hashPassword(t, "correct horse"),
		IsActive:     true,
	}}
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "teacher@example.org", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("expected user 7, got %d", user.ID)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	repo := &stubRepo{user: &User{
		PasswordHash: hashPassword(t, "correct horse"),
		IsActive:     true,
	}}
	svc := NewService(repo)

	if _, err := svc.Authenticate(context.Background(), "teacher@example.org", "battery staple"); !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateFailsIdentically(t *testing.T) {
	inactive := &stubRepo{user: &User{
		PasswordHash: hashPassword(t, "correct horse"),
		IsActive:     false,
	}}
	unknown := &stubRepo{findErr: shared.ErrNotFound}

	for name, repo := range map[string]*stubRepo{"inactive": inactive, "unknown": unknown} {
		svc := NewService(repo)
		if _, err := svc.Authenticate(context.Background(), "teacher@example.org", "correct horse"); !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Fatalf("%s account: expected ErrInvalidCredentials, got %v", name, err)
		}
	}
}
