package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
)

const auditColumns = `id, created_at, user_id, user_email, action, resource_type, resource_id, details, ip_address, user_agent`

// AppendAudit inserts one row. audit_logs has no update or delete path here.
func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if s.db == nil {
		return audit.Entry{}, errNoDB
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("marshal details: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		insert into audit_logs (created_at, user_id, user_email, action, resource_type, resource_id, details, ip_address, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning id
	`,
		e.CreatedAt,
		nullIfEmpty(e.UserID),
		nullIfEmpty(e.UserEmail),
		string(e.Action),
		nullIfEmpty(e.ResourceType),
		nullIfEmpty(e.ResourceID),
		raw,
		nullIfEmpty(e.IPAddress),
		nullIfEmpty(e.UserAgent),
	).Scan(&e.ID)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	e.Details = details
	return e, nil
}

func (s *Store) QueryAudit(ctx context.Context, f audit.Filter, limit, offset int) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	where, args := auditWhere(f)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`select %s from audit_logs%s order by created_at desc, id desc limit $%d offset $%d`,
		auditColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountAudit(ctx context.Context, f audit.Filter) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	where, args := auditWhere(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_logs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

func auditWhere(f audit.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.UserEmail != "" {
		add("user_email ilike $%d", "%"+escapeLike(f.UserEmail)+"%")
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.IPAddress != "" {
		add("ip_address = $%d", f.IPAddress)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To.UTC())
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " where " + strings.Join(clauses, " and "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanAudit(row rowScanner) (audit.Entry, error) {
	var (
		e                                         audit.Entry
		action                                    string
		userID, userEmail, resType, resID, ip, ua sql.NullString
		raw                                       []byte
	)
	if err := row.Scan(&e.ID, &e.CreatedAt, &userID, &userEmail, &action, &resType, &resID, &raw, &ip, &ua); err != nil {
		return audit.Entry{}, fmt.Errorf("scan audit entry: %w", err)
	}
	e.Action = audit.Action(action)
	e.UserID, e.UserEmail = userID.String, userEmail.String
	e.ResourceType, e.ResourceID = resType.String, resID.String
	e.IPAddress, e.UserAgent = ip.String, ua.String
	e.Details = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Details); err != nil {
			return audit.Entry{}, fmt.Errorf("decode audit details: %w", err)
		}
	}
	return e, nil
}
