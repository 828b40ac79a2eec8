package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/OOJ984/Fidget-Street-sub003/internal/anomaly"
	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/catalog"
	"github.com/OOJ984/Fidget-Street-sub003/internal/giftcard"
	"github.com/OOJ984/Fidget-Street-sub003/internal/mfa"
	"github.com/OOJ984/Fidget-Street-sub003/internal/orders"
)

const pgErrUniqueViolation = "23505"

var errNoDB = errors.New("database connection unavailable")

// Store is the Postgres implementation of every storage interface. The schema
// is described in schema.sql and applied by the deployment.
type Store struct {
	db *sql.DB
}

var (
	_ auth.PrincipalStore = (*Store)(nil)
	_ mfa.Store           = (*Store)(nil)
	_ audit.Store         = (*Store)(nil)
	_ anomaly.Counter     = (*Store)(nil)
	_ catalog.Store       = (*Store)(nil)
	_ orders.Store        = (*Store)(nil)
	_ giftcard.Store      = (*Store)(nil)
)

// Open connects through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
