package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
)

const principalColumns = `id, email, password_hash, role, mfa_enabled, mfa_secret, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (auth.Principal, error) {
	var (
		p      auth.Principal
		role   string
		secret sql.NullString
	)
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &role, &p.MFAEnabled, &secret, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Principal{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Principal{}, err
	}
	p.Role = auth.Role(role)
	p.MFASecret = secret.String
	return p, nil
}

func (s *Store) CreatePrincipal(ctx context.Context, p auth.Principal) (auth.Principal, error) {
	if s.db == nil {
		return auth.Principal{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into admin_users (id, email, password_hash, role, mfa_enabled, active, created_at, updated_at)
		values ($1, $2, $3, $4, false, $5, $6, $6)
		returning `+principalColumns,
		p.ID, auth.NormalizeEmail(p.Email), p.PasswordHash, string(p.Role), p.Active, p.CreatedAt,
	)
	created, err := scanPrincipal(row)
	if isUniqueViolation(err) {
		return auth.Principal{}, fmt.Errorf("%w: email already registered", auth.ErrConflict)
	}
	return created, err
}

func (s *Store) GetPrincipal(ctx context.Context, id string) (auth.Principal, error) {
	if s.db == nil {
		return auth.Principal{}, errNoDB
	}
	return scanPrincipal(s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from admin_users where id = $1`, id))
}

func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (auth.Principal, error) {
	if s.db == nil {
		return auth.Principal{}, errNoDB
	}
	return scanPrincipal(s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from admin_users where email = $1`, auth.NormalizeEmail(email)))
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.execOne(ctx, `update admin_users set password_hash = $2, updated_at = now() where id = $1`, id, passwordHash)
}

// SetPendingMFASecret only touches principals whose enrollment is unconfirmed.
func (s *Store) SetPendingMFASecret(ctx context.Context, id, secret string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update admin_users set mfa_secret = $2, updated_at = now()
		where id = $1 and mfa_enabled = false
	`, id, secret)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.GetPrincipal(ctx, id); err != nil {
		return err
	}
	return auth.ErrConflict
}

// EnableMFA flips the enrollment and installs the backup codes in one transaction.
func (s *Store) EnableMFA(ctx context.Context, id string, codeHashes []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update admin_users set mfa_enabled = true, updated_at = now()
		where id = $1 and mfa_enabled = false and mfa_secret is not null
	`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return auth.ErrConflict
	}
	if err := replaceCodes(ctx, tx, id, codeHashes); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, id string, codeHashes []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := replaceCodes(ctx, tx, id, codeHashes); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceCodes(ctx context.Context, tx *sql.Tx, id string, codeHashes []string) error {
	if _, err := tx.ExecContext(ctx, `delete from admin_backup_codes where user_id = $1`, id); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}
	for _, h := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			`insert into admin_backup_codes (user_id, code_hash, created_at) values ($1, $2, now())`, id, h); err != nil {
			return fmt.Errorf("insert backup code: %w", err)
		}
	}
	return nil
}

// ConsumeBackupCode is a conditional update, so two concurrent uses of the
// same code cannot both succeed.
func (s *Store) ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update admin_backup_codes set used_at = now()
		where user_id = $1 and code_hash = $2 and used_at is null
	`, id, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) CountBackupCodes(ctx context.Context, id string) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from admin_backup_codes where user_id = $1 and used_at is null`, id).Scan(&n)
	return n, err
}

func (s *Store) DisableMFA(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `
		update admin_users set mfa_enabled = false, mfa_secret = null, updated_at = now()
		where id = $1
	`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return auth.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from admin_backup_codes where user_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return auth.ErrNotFound
	}
	return nil
}
