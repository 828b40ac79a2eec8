package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/ids"
)

// Service owns credential checks and out-of-band principal management.
type Service struct {
	store PrincipalStore
	now   func() time.Time
}

// NewService wraps a principal store.
func NewService(store PrincipalStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Authenticate checks an email/password pair. Unknown emails, inactive
// principals and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Principal{}, ErrInvalidCredentials
	}
	p, err := s.store.GetPrincipalByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		_, _ = VerifyPassword(dummyHash, password)
		return Principal{}, ErrInvalidCredentials
	case err != nil:
		return Principal{}, fmt.Errorf("load principal: %w", err)
	}
	ok, err := VerifyPassword(p.PasswordHash, password)
	if err != nil {
		return Principal{}, fmt.Errorf("verify password for %s: %w", p.ID, err)
	}
	if !ok || !p.Active {
		return Principal{}, ErrInvalidCredentials
	}
	return p, nil
}

// CreatePrincipal registers a new active admin with the given role.
func (s *Service) CreatePrincipal(ctx context.Context, email, password string, role Role) (Principal, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return Principal{}, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Principal{}, err
	}
	now := s.now().UTC()
	return s.store.CreatePrincipal(ctx, Principal{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// SetPassword rotates the password hash of an existing principal.
func (s *Service) SetPassword(ctx context.Context, id, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, id, hash)
}

// Lookup returns the stored principal by id.
func (s *Service) Lookup(ctx context.Context, id string) (Principal, error) {
	return s.store.GetPrincipal(ctx, id)
}
