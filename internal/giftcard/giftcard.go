package giftcard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
)

// ErrNotFound covers unknown, inactive and expired cards alike.
var ErrNotFound = fmt.Errorf("%w: gift card", auth.ErrNotFound)

// Card is a redeemable gift card.
type Card struct {
	Code         string     `json:"code"`
	BalancePence int64      `json:"balance_pence"`
	Currency     string     `json:"currency"`
	Active       bool       `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Store looks up cards by normalized code.
type Store interface {
	GetGiftCard(ctx context.Context, code string) (Card, error)
}

// Service answers balance checks.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// NormalizeCode uppercases and strips separators.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

// Check returns a usable card or ErrNotFound.
func (s *Service) Check(ctx context.Context, code string) (Card, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Card{}, ErrNotFound
	}
	c, err := s.store.GetGiftCard(ctx, code)
	if err != nil {
		return Card{}, err
	}
	if !c.Active || (c.ExpiresAt != nil && !s.now().Before(*c.ExpiresAt)) {
		return Card{}, ErrNotFound
	}
	return c, nil
}

// MemoryStore keeps cards in process.
type MemoryStore struct {
	mu    sync.Mutex
	cards map[string]Card
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(cards ...Card) *MemoryStore {
	m := &MemoryStore{cards: make(map[string]Card)}
	for _, c := range cards {
		c.Code = NormalizeCode(c.Code)
		m.cards[c.Code] = c
	}
	return m
}

func (m *MemoryStore) GetGiftCard(_ context.Context, code string) (Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[code]
	if !ok {
		return Card{}, ErrNotFound
	}
	return c, nil
}
