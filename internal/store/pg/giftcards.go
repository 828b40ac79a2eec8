package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/OOJ984/Fidget-Street-sub003/internal/giftcard"
)

func (s *Store) GetGiftCard(ctx context.Context, code string) (giftcard.Card, error) {
	if s.db == nil {
		return giftcard.Card{}, errNoDB
	}
	var (
		c       giftcard.Card
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select code, balance_pence, currency, active, expires_at
		from gift_cards where code = $1
	`, code).Scan(&c.Code, &c.BalancePence, &c.Currency, &c.Active, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return giftcard.Card{}, giftcard.ErrNotFound
	}
	if err != nil {
		return giftcard.Card{}, err
	}
	if expires.Valid {
		t := expires.Time
		c.ExpiresAt = &t
	}
	return c, nil
}
