package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/catalog"
	"github.com/OOJ984/Fidget-Street-sub003/internal/ids"
)

// MaxLineQuantity bounds the quantity of a single order line.
const MaxLineQuantity = 10000

// Page sizes for List.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// MismatchNote prefixes the note on orders whose payment differs from the catalog total.
const MismatchNote = "AMOUNT MISMATCH"

// Item is one order line.
type Item struct {
	ProductID      string `json:"product_id"`
	Title          string `json:"title"`
	Quantity       int    `json:"quantity"`
	UnitPricePence int64  `json:"unit_price_pence"`
}

// Order is a recorded purchase.
type Order struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customer_id,omitempty"`
	CustomerEmail  string    `json:"customer_email"`
	Items          []Item    `json:"items"`
	PaidPence      int64     `json:"paid_pence"`
	ExpectedPence  int64     `json:"expected_pence"`
	AmountMismatch bool      `json:"amount_mismatch"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LineInput is a requested order line.
type LineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PlaceInput is an order as submitted by the storefront after payment.
type PlaceInput struct {
	CustomerID    string      `json:"-"`
	CustomerEmail string      `json:"customer_email"`
	Items         []LineInput `json:"items"`
	PaidPence     int64       `json:"paid_pence"`
}

// Store persists orders.
type Store interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]Order, error)
}

// Pricer resolves catalog prices.
type Pricer interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

// Service records orders and checks the paid amount against the catalog.
type Service struct {
	store  Store
	prices Pricer
	now    func() time.Time
}

func NewService(store Store, prices Pricer) *Service {
	return &Service{store: store, prices: prices, now: time.Now}
}

// Place records an order. A paid amount that differs from the catalog total
// is recorded, flagged and noted; it is not rejected because payment has
// already been taken.
func (s *Service) Place(ctx context.Context, in PlaceInput) (Order, error) {
	email := auth.NormalizeEmail(in.CustomerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return Order{}, fmt.Errorf("%w: customer_email is required", auth.ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", auth.ErrInvalidInput)
	}
	if in.PaidPence < 0 {
		return Order{}, fmt.Errorf("%w: paid_pence must not be negative", auth.ErrInvalidInput)
	}

	o := Order{
		ID:            ids.New(),
		CustomerID:    in.CustomerID,
		CustomerEmail: email,
		PaidPence:     in.PaidPence,
		CreatedAt:     s.now().UTC(),
	}
	for _, line := range in.Items {
		if line.Quantity <= 0 || line.Quantity > MaxLineQuantity {
			return Order{}, fmt.Errorf("%w: quantity must be between 1 and %d", auth.ErrInvalidInput, MaxLineQuantity)
		}
		p, err := s.prices.GetProduct(ctx, line.ProductID)
		if errors.Is(err, auth.ErrNotFound) || (err == nil && !p.Active) {
			return Order{}, fmt.Errorf("%w: unknown product %q", auth.ErrInvalidInput, line.ProductID)
		}
		if err != nil {
			return Order{}, fmt.Errorf("price lookup: %w", err)
		}
		qty := int64(line.Quantity)
		if p.PricePence < 0 || p.PricePence > (math.MaxInt64-o.ExpectedPence)/qty {
			return Order{}, fmt.Errorf("%w: order total out of range", auth.ErrInvalidInput)
		}
		o.Items = append(o.Items, Item{
			ProductID:      p.ID,
			Title:          p.Title,
			Quantity:       line.Quantity,
			UnitPricePence: p.PricePence,
		})
		o.ExpectedPence += p.PricePence * qty
	}
	if o.ExpectedPence != o.PaidPence {
		o.AmountMismatch = true
		o.Notes = fmt.Sprintf("%s: expected %d, paid %d", MismatchNote, o.ExpectedPence, o.PaidPence)
	}
	return s.store.CreateOrder(ctx, o)
}

// List returns orders newest first. limit is clamped to MaxPageSize.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Order, error) {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListOrders(ctx, limit, offset)
}

// MemoryStore keeps orders in process.
type MemoryStore struct {
	mu     sync.Mutex
	orders []Order
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) CreateOrder(_ context.Context, o Order) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, o)
	return o, nil
}

func (m *MemoryStore) ListOrders(_ context.Context, limit, offset int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for i := len(m.orders) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.orders[i])
	}
	return out, nil
}
