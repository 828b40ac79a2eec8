package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType separates admin sessions from customer sessions.
type TokenType string

const (
	TokenAdmin    TokenType = "admin"
	TokenCustomer TokenType = "customer"
)

const (
	DefaultTokenTTL = 8 * time.Hour
	MaxTokenTTL     = 12 * time.Hour
	DefaultIssuer   = "fidget-street"

	issuedAtLeeway = 5 * time.Second
	bearerPrefix   = "bearer "
)

// Claims is the signed body of a session token.
type Claims struct {
	Email string    `json:"email"`
	Role  Role      `json:"role,omitempty"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Principal returns the identity carried by the claims.
func (c *Claims) Principal() Principal {
	return Principal{ID: c.Subject, Email: c.Email, Role: c.Role, Active: true}
}

// Tokenizer issues and verifies HS256 session tokens.
type Tokenizer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customizes a Tokenizer.
type TokenOption func(*Tokenizer)

// WithTokenTTL sets the token lifetime, capped at MaxTokenTTL.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *Tokenizer) {
		if ttl > 0 {
			t.ttl = min(ttl, MaxTokenTTL)
		}
	}
}

// WithTokenIssuer sets the iss claim written and required.
func WithTokenIssuer(issuer string) TokenOption {
	return func(t *Tokenizer) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			t.issuer = issuer
		}
	}
}

// WithTokenClock replaces the wall clock.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *Tokenizer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenizer builds a tokenizer. An empty secret yields an unconfigured
// tokenizer whose operations fail with ErrMisconfigured.
func NewTokenizer(secret string, opts ...TokenOption) *Tokenizer {
	t := &Tokenizer{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: DefaultIssuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Configured reports whether a signing secret is present.
func (t *Tokenizer) Configured() bool {
	return t != nil && len(t.secret) > 0
}

// TTL returns the lifetime given to issued tokens.
func (t *Tokenizer) TTL() time.Duration { return t.ttl }

// Issue signs a token of the given type for the principal.
func (t *Tokenizer) Issue(p Principal, typ TokenType) (string, time.Time, error) {
	if !t.Configured() {
		return "", time.Time{}, ErrMisconfigured
	}
	if strings.TrimSpace(p.ID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	switch typ {
	case TokenAdmin:
		if !p.Role.Valid() {
			return "", time.Time{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, p.Role)
		}
	case TokenCustomer:
		p.Role = ""
	default:
		return "", time.Time{}, fmt.Errorf("%w: unknown token type %q", ErrInvalidInput, typ)
	}

	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks an Authorization header value and requires the given token type.
// Every failure wraps ErrInvalidToken; a valid token of the other type returns
// ErrTokenTypeMismatch together with its claims.
func (t *Tokenizer) Verify(header string, want TokenType) (*Claims, error) {
	if !t.Configured() {
		return nil, ErrMisconfigured
	}
	raw, err := extractBearer(header)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := t.validateClaims(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != want {
		return claims, ErrTokenTypeMismatch
	}
	return claims, nil
}

func (t *Tokenizer) validateClaims(c *Claims) error {
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("subject missing")
	}
	if c.ExpiresAt == nil || c.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if c.IssuedAt.After(t.now().Add(issuedAtLeeway)) {
		return errors.New("token issued in the future")
	}
	switch c.Type {
	case TokenAdmin:
		if !c.Role.Valid() {
			return fmt.Errorf("unknown role %q", c.Role)
		}
	case TokenCustomer:
	default:
		return fmt.Errorf("unknown token type %q", c.Type)
	}
	return nil
}

func extractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", fmt.Errorf("%w: invalid authorization scheme", ErrInvalidToken)
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}
	return token, nil
}
