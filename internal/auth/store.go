package auth

import "context"

// PrincipalStore persists admin principals.
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p Principal) (Principal, error)
	GetPrincipal(ctx context.Context, id string) (Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (Principal, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
