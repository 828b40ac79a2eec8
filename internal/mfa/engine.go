package mfa

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
)

const (
	DefaultIssuer          = "Fidget Street Admin"
	DefaultBackupCodeCount = 10

	period    = 30
	skewSteps = 1
	qrSize    = 200
)

var (
	// ErrInvalidCode is the only failure a caller sees for a bad second factor.
	ErrInvalidCode = fmt.Errorf("%w: invalid verification code", auth.ErrInvalidCredentials)
	// ErrAlreadyEnrolled rejects a new enrollment while a verified one exists.
	ErrAlreadyEnrolled = fmt.Errorf("%w: two-factor authentication already enabled", auth.ErrConflict)
	// ErrNotEnrolled means there is no enrollment to verify, use or disable.
	ErrNotEnrolled = fmt.Errorf("%w: two-factor authentication not set up", auth.ErrInvalidInput)
)

// Store is the persistence the engine needs. auth.MemoryStore and pg.Store implement it.
type Store interface {
	GetPrincipal(ctx context.Context, id string) (auth.Principal, error)
	SetPendingMFASecret(ctx context.Context, id, secret string) error
	EnableMFA(ctx context.Context, id string, codeHashes []string) error
	ReplaceBackupCodes(ctx context.Context, id string, codeHashes []string) error
	ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error)
	CountBackupCodes(ctx context.Context, id string) (int, error)
	DisableMFA(ctx context.Context, id string) error
}

// Enrollment is the material shown to the user exactly once.
type Enrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_url"`
	QRCode string `json:"qr_code"`
}

// Status summarizes a principal's second factor.
type Status struct {
	Enabled              bool `json:"enabled"`
	Pending              bool `json:"pending"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}

// Method records which factor satisfied a challenge.
type Method string

const (
	MethodTOTP   Method = "totp"
	MethodBackup Method = "backup_code"
)

// Engine runs TOTP enrollment and challenges.
type Engine struct {
	store       Store
	issuer      string
	backupCount int
	now         func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithIssuer sets the issuer shown by authenticator apps.
func WithIssuer(issuer string) Option {
	return func(e *Engine) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			e.issuer = issuer
		}
	}
}

// WithBackupCodeCount sets how many backup codes each set holds.
func WithBackupCodeCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.backupCount = n
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		issuer:      DefaultIssuer,
		backupCount: DefaultBackupCodeCount,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      skewSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Enroll creates a pending secret. Calling it again before verification
// replaces the pending secret.
func (e *Engine) Enroll(ctx context.Context, principalID string) (Enrollment, error) {
	p, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return Enrollment{}, err
	}
	if p.MFAEnabled {
		return Enrollment{}, ErrAlreadyEnrolled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: p.Email,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}
	qr, err := qrDataURL(key)
	if err != nil {
		return Enrollment{}, err
	}
	if err := e.store.SetPendingMFASecret(ctx, p.ID, key.Secret()); err != nil {
		if errors.Is(err, auth.ErrConflict) {
			return Enrollment{}, ErrAlreadyEnrolled
		}
		return Enrollment{}, fmt.Errorf("store pending secret: %w", err)
	}
	return Enrollment{Secret: key.Secret(), URI: key.URL(), QRCode: qr}, nil
}

// VerifyEnrollment confirms a pending enrollment with a current code and
// returns the initial backup codes in plaintext.
func (e *Engine) VerifyEnrollment(ctx context.Context, principalID, code string) ([]string, error) {
	p, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.MFAEnabled {
		return nil, ErrAlreadyEnrolled
	}
	if p.MFASecret == "" {
		return nil, ErrNotEnrolled
	}
	if !e.validTOTP(p.MFASecret, code) {
		return nil, ErrInvalidCode
	}
	codes, hashes, err := generateBackupCodes(p.ID, e.backupCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	if err := e.store.EnableMFA(ctx, p.ID, hashes); err != nil {
		if errors.Is(err, auth.ErrConflict) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("enable mfa: %w", err)
	}
	return codes, nil
}

// Challenge checks a second factor for an enrolled principal. A TOTP code is
// accepted for the current step and one step either side; a backup code is
// accepted once.
func (e *Engine) Challenge(ctx context.Context, p auth.Principal, code string) (Method, error) {
	if !p.MFAEnabled || p.MFASecret == "" {
		return "", ErrInvalidCode
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrInvalidCode
	}
	if e.validTOTP(p.MFASecret, code) {
		return MethodTOTP, nil
	}
	canonical := canonicalBackupCode(code)
	if !looksLikeBackupCode(canonical) {
		return "", ErrInvalidCode
	}
	ok, err := e.store.ConsumeBackupCode(ctx, p.ID, HashBackupCode(p.ID, canonical))
	if err != nil {
		return "", fmt.Errorf("consume backup code: %w", err)
	}
	if !ok {
		return "", ErrInvalidCode
	}
	return MethodBackup, nil
}

// RegenerateBackupCodes replaces the whole backup set. Only a TOTP code
// authorizes it, so a leaked backup code cannot mint new ones.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, principalID, totpCode string) ([]string, error) {
	p, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !p.MFAEnabled {
		return nil, ErrNotEnrolled
	}
	if !e.validTOTP(p.MFASecret, totpCode) {
		return nil, ErrInvalidCode
	}
	codes, hashes, err := generateBackupCodes(p.ID, e.backupCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	if err := e.store.ReplaceBackupCodes(ctx, p.ID, hashes); err != nil {
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}
	return codes, nil
}

// Disable removes the second factor after checking a TOTP or backup code.
func (e *Engine) Disable(ctx context.Context, principalID, code string) (Method, error) {
	p, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return "", err
	}
	if !p.MFAEnabled {
		return "", ErrNotEnrolled
	}
	method, err := e.Challenge(ctx, p, code)
	if err != nil {
		return "", err
	}
	if err := e.store.DisableMFA(ctx, p.ID); err != nil {
		return "", fmt.Errorf("disable mfa: %w", err)
	}
	return method, nil
}

// Status reports enrollment state and remaining backup codes.
func (e *Engine) Status(ctx context.Context, principalID string) (Status, error) {
	p, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return Status{}, err
	}
	st := Status{Enabled: p.MFAEnabled, Pending: p.MFAPending()}
	if p.MFAEnabled {
		n, err := e.store.CountBackupCodes(ctx, p.ID)
		if err != nil {
			return Status{}, fmt.Errorf("count backup codes: %w", err)
		}
		st.BackupCodesRemaining = n
	}
	return st, nil
}

func (e *Engine) validTOTP(secret, code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.now().UTC(), validateOpts())
	return err == nil && ok
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
