package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/catalog"
)

const productColumns = `id, title, description, price_pence, stock, active, created_at, updated_at`

func scanProduct(row rowScanner) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.PricePence, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if s.db == nil {
		return catalog.Product{}, errNoDB
	}
	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		insert into products (id, title, description, price_pence, stock, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+productColumns,
		p.ID, p.Title, p.Description, p.PricePence, p.Stock, p.Active, p.CreatedAt, p.UpdatedAt,
	))
	if isUniqueViolation(err) {
		return catalog.Product{}, fmt.Errorf("%w: product id exists", auth.ErrConflict)
	}
	return created, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	if s.db == nil {
		return catalog.Product{}, errNoDB
	}
	return scanProduct(s.db.QueryRowContext(ctx, `select `+productColumns+` from products where id = $1`, id))
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+productColumns+` from products order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []catalog.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	if s.db == nil {
		return catalog.Product{}, errNoDB
	}
	return scanProduct(s.db.QueryRowContext(ctx, `
		update products
		set title = $2, description = $3, price_pence = $4, stock = $5, active = $6, updated_at = $7
		where id = $1
		returning `+productColumns,
		p.ID, p.Title, p.Description, p.PricePence, p.Stock, p.Active, p.UpdatedAt,
	))
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from products where id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// GetSettings reads the key/value rows of website_settings.
func (s *Store) GetSettings(ctx context.Context) (catalog.Settings, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select key, value from website_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := catalog.Settings{}
	for rows.Next() {
		var (
			key string
			raw []byte
			v   any
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode setting %q: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// SaveSettings replaces the whole settings table.
func (s *Store) SaveSettings(ctx context.Context, settings catalog.Settings) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `delete from website_settings`); err != nil {
		return err
	}
	for k, v := range settings {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode setting %q: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx,
			`insert into website_settings (key, value, updated_at) values ($1, $2, now())`, k, raw); err != nil {
			return err
		}
	}
	return tx.Commit()
}
