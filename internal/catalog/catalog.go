package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/ids"
)

var (
	ErrProductNotFound = fmt.Errorf("%w: product", auth.ErrNotFound)
	ErrUnknownSetting  = fmt.Errorf("%w: unknown setting", auth.ErrInvalidInput)
)

// Product is a sellable item. Prices are whole pence.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PricePence  int64     `json:"price_pence"`
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductInput carries the writable product fields. Nil fields are left unchanged on update.
type ProductInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	PricePence  *int64  `json:"price_pence"`
	Stock       *int    `json:"stock"`
	Active      *bool   `json:"active"`
}

// Settings is the website configuration edited from the admin panel.
type Settings map[string]any

// DefaultSettings are the values a reset restores.
func DefaultSettings() Settings {
	return Settings{
		"store_name":                    "Fidget Street",
		"currency":                      "GBP",
		"free_shipping_threshold_pence": 2000,
		"maintenance_mode":              false,
		"announcement":                  "",
	}
}

// Store persists products and settings.
type Store interface {
	CreateProduct(ctx context.Context, p Product) (Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// Service validates catalog writes.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if in.Title == nil || in.PricePence == nil {
		return Product{}, fmt.Errorf("%w: title and price_pence are required", auth.ErrInvalidInput)
	}
	now := s.now().UTC()
	p := Product{ID: ids.New(), Active: true, CreatedAt: now, UpdatedAt: now}
	if err := apply(&p, in); err != nil {
		return Product{}, err
	}
	return s.store.CreateProduct(ctx, p)
}

// UpdateProduct applies in and returns the product before and after.
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (before, after Product, err error) {
	before, err = s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, Product{}, err
	}
	after = before
	if err := apply(&after, in); err != nil {
		return Product{}, Product{}, err
	}
	after.UpdatedAt = s.now().UTC()
	after, err = s.store.UpdateProduct(ctx, after)
	return before, after, err
}

// DeleteProduct removes a product and returns what was removed.
func (s *Service) DeleteProduct(ctx context.Context, id string) (Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	return p, s.store.DeleteProduct(ctx, id)
}

func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) Products(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}

// Settings returns the stored settings over the defaults.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	stored, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := DefaultSettings()
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// UpdateSettings merges known keys into the settings and returns the changed keys.
func (s *Service) UpdateSettings(ctx context.Context, patch Settings) (Settings, []string, error) {
	if len(patch) == 0 {
		return nil, nil, fmt.Errorf("%w: no settings supplied", auth.ErrInvalidInput)
	}
	defaults := DefaultSettings()
	current, err := s.Settings(ctx)
	if err != nil {
		return nil, nil, err
	}
	var changed []string
	for k, v := range patch {
		if _, ok := defaults[k]; !ok {
			return nil, nil, fmt.Errorf("%w %q", ErrUnknownSetting, k)
		}
		current[k] = v
		changed = append(changed, k)
	}
	if err := s.store.SaveSettings(ctx, current); err != nil {
		return nil, nil, err
	}
	return current, changed, nil
}

// ResetSettings restores the defaults.
func (s *Service) ResetSettings(ctx context.Context) (Settings, error) {
	defaults := DefaultSettings()
	if err := s.store.SaveSettings(ctx, defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}

func apply(p *Product, in ProductInput) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || len(title) > 200 {
			return fmt.Errorf("%w: title must be 1-200 characters", auth.ErrInvalidInput)
		}
		p.Title = title
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.PricePence != nil {
		if *in.PricePence < 0 {
			return fmt.Errorf("%w: price_pence must not be negative", auth.ErrInvalidInput)
		}
		p.PricePence = *in.PricePence
	}
	if in.Stock != nil {
		if *in.Stock < 0 {
			return fmt.Errorf("%w: stock must not be negative", auth.ErrInvalidInput)
		}
		p.Stock = *in.Stock
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	return nil
}
