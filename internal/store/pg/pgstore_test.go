package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/catalog"
	"github.com/OOJ984/Fidget-Street-sub003/internal/giftcard"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var principalCols = []string{"id", "email", "password_hash", "role", "mfa_enabled", "mfa_secret", "active", "created_at", "updated_at"}

func TestGetPrincipalByEmailNormalizes(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("from admin_users where email = $1")).
		WithArgs("admin@example.com").
		WillReturnRows(sqlmock.NewRows(principalCols).
			AddRow("u-1", "admin@example.com", "hash", "website_admin", true, "SECRET", true, now, now))

	p, err := s.GetPrincipalByEmail(context.Background(), "  Admin@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleWebsiteAdmin, p.Role)
	assert.True(t, p.MFAEnabled)
	assert.Equal(t, "SECRET", p.MFASecret)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPrincipalNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("from admin_users where id = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetPrincipal(context.Background(), "ghost")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestCreatePrincipalUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("insert into admin_users")).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := s.CreatePrincipal(context.Background(), auth.Principal{
		ID: "u-1", Email: "a@example.com", PasswordHash: "h", Role: auth.RoleOrderViewer, Active: true,
	})
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestConsumeBackupCodeOnce(t *testing.T) {
	s, mock := newMockStore(t)
	consume := q("update admin_backup_codes set used_at = now()")
	mock.ExpectExec(consume).WithArgs("u-1", "h1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(consume).WithArgs("u-1", "h1").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.ConsumeBackupCode(context.Background(), "u-1", "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ConsumeBackupCode(context.Background(), "u-1", "h1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnableMFAReplacesCodesInTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("update admin_users set mfa_enabled = true")).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("delete from admin_backup_codes where user_id = $1")).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(q("insert into admin_backup_codes")).WithArgs("u-1", "h1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("insert into admin_backup_codes")).WithArgs("u-1", "h2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.EnableMFA(context.Background(), "u-1", []string{"h1", "h2"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnableMFAAlreadyEnabledRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("update admin_users set mfa_enabled = true")).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.EnableMFA(context.Background(), "u-1", []string{"h1"})
	assert.ErrorIs(t, err, auth.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAuditAssignsID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("insert into audit_logs")).
		WithArgs(now, "u-1", "a@example.com", "login_success", nil, nil, []byte(`{"method":"password"}`), "203.0.113.9", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	e, err := s.AppendAudit(context.Background(), audit.Entry{
		CreatedAt: now,
		UserID:    "u-1",
		UserEmail: "a@example.com",
		Action:    audit.ActionLoginSuccess,
		Details:   map[string]any{"method": "password"},
		IPAddress: "203.0.113.9",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), e.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditWhere(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	where, args := auditWhere(audit.Filter{
		Action:    audit.ActionLoginFailed,
		UserEmail: "bob_",
		IPAddress: "198.51.100.7",
		From:      from,
	})
	assert.Equal(t, " where action = $1 and user_email ilike $2 and ip_address = $3 and created_at >= $4", where)
	assert.Equal(t, []any{"login_failed", `%bob\_%`, "198.51.100.7", from}, args)

	where, args = auditWhere(audit.Filter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestQueryAuditDecodesRows(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "created_at", "user_id", "user_email", "action", "resource_type", "resource_id", "details", "ip_address", "user_agent"}

	mock.ExpectQuery(q("from audit_logs where action = $1 order by created_at desc, id desc limit $2 offset $3")).
		WithArgs("PRODUCT_DELETED", 50, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(7), now, "u-1", "a@example.com", "PRODUCT_DELETED", "product", "p-1", []byte(`{"title":"Spinner"}`), nil, nil))

	got, err := s.QueryAudit(context.Background(), audit.Filter{Action: audit.ActionProductDeleted}, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-1", got[0].ResourceID)
	assert.Equal(t, "Spinner", got[0].Details["title"])
	assert.Empty(t, got[0].IPAddress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAudit(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("select count(*) from audit_logs where action = $1 and ip_address = $2")).
		WithArgs("login_failed", "203.0.113.9").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	n, err := s.CountAudit(context.Background(), audit.Filter{Action: audit.ActionLoginFailed, IPAddress: "203.0.113.9"})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestDeleteProductMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("delete from products where id = $1")).WithArgs("p-x").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteProduct(context.Background(), "p-x")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestGetSettingsDecodesJSON(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("select key, value from website_settings")).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("store_name", []byte(`"Fidget Street"`)).
			AddRow("maintenance_mode", []byte(`true`)))

	got, err := s.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fidget Street", got["store_name"])
	assert.Equal(t, true, got["maintenance_mode"])
}

func TestGetGiftCard(t *testing.T) {
	s, mock := newMockStore(t)
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("from gift_cards where code = $1")).
		WithArgs("GIFT-1234").
		WillReturnRows(sqlmock.NewRows([]string{"code", "balance_pence", "currency", "active", "expires_at"}).
			AddRow("GIFT-1234", int64(2500), "GBP", true, expires))
	mock.ExpectQuery(q("from gift_cards where code = $1")).
		WithArgs("NOPE").
		WillReturnError(sql.ErrNoRows)

	c, err := s.GetGiftCard(context.Background(), "GIFT-1234")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), c.BalancePence)
	require.NotNil(t, c.ExpiresAt)
	assert.True(t, c.ExpiresAt.Equal(expires))

	_, err = s.GetGiftCard(context.Background(), "NOPE")
	assert.ErrorIs(t, err, giftcard.ErrNotFound)
}

func TestListOrdersDecodesItems(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "customer_id", "customer_email", "items", "paid_pence", "expected_pence", "amount_mismatch", "notes", "created_at"}
	mock.ExpectQuery(q("from orders")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("o-1", nil, "c@example.com", []byte(`[{"product_id":"p-1","title":"Cube","quantity":2,"unit_price_pence":500}]`), int64(100), int64(1000), true, "AMOUNT MISMATCH", now))

	got, err := s.ListOrders(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].AmountMismatch)
	require.Len(t, got[0].Items, 1)
	assert.Equal(t, 2, got[0].Items[0].Quantity)
	assert.Empty(t, got[0].CustomerID)
}

func TestPingWithoutDB(t *testing.T) {
	s := &Store{}
	assert.True(t, errors.Is(s.Ping(context.Background()), errNoDB))
}
