package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/OOJ984/Fidget-Street-sub003/internal/orders"
)

func (s *Store) CreateOrder(ctx context.Context, o orders.Order) (orders.Order, error) {
	if s.db == nil {
		return orders.Order{}, errNoDB
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return orders.Order{}, fmt.Errorf("encode items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into orders (id, customer_id, customer_email, items, paid_pence, expected_pence, amount_mismatch, notes, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.ID, nullIfEmpty(o.CustomerID), o.CustomerEmail, items, o.PaidPence, o.ExpectedPence, o.AmountMismatch, o.Notes, o.CreatedAt)
	if err != nil {
		return orders.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]orders.Order, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, customer_id, customer_email, items, paid_pence, expected_pence, amount_mismatch, notes, created_at
		from orders
		order by created_at desc, id desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Order{}
	for rows.Next() {
		var (
			o          orders.Order
			customerID sql.NullString
			raw        []byte
		)
		if err := rows.Scan(&o.ID, &customerID, &o.CustomerEmail, &raw, &o.PaidPence, &o.ExpectedPence, &o.AmountMismatch, &o.Notes, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.CustomerID = customerID.String
		if err := json.Unmarshal(raw, &o.Items); err != nil {
			return nil, fmt.Errorf("decode items of %s: %w", o.ID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
