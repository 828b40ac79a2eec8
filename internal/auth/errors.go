package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("resource conflict")
	ErrMisconfigured      = errors.New("server configuration error")

	// ErrInvalidToken covers every reason a bearer token is refused.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenTypeMismatch is a correctly signed token of the other type.
	ErrTokenTypeMismatch = fmt.Errorf("%w: token type mismatch", ErrInvalidToken)
)
