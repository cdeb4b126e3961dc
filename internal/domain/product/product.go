package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Status controls whether a product is visible and purchasable.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Product represents a catalog item available for purchase.
//
// Stock is the aggregate sellable count. For products with variants it is
// kept as a cached sum of the variant counters and decremented alongside them.
type Product struct {
	ID         string
	Slug       string
	Name       string
	Price      decimal.Decimal
	Currency   string
	Stock      int
	Status     Status
	CategoryID string
	ImageURL   string
	Variants   []Variant
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsActive reports whether the product can be ordered.
func (p *Product) IsActive() bool {
	return p.Status == StatusActive
}

// Variant returns the variant with the given ID, or nil.
func (p *Product) Variant(id string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// Variant is a SKU-level variation of a product (size, colour) with its own
// stock counter and an optional price override.
type Variant struct {
	ID            string
	ProductID     string
	Name          string
	Stock         int
	PriceOverride decimal.NullDecimal
}

// UnitPrice returns the price a line referencing this variant is billed at.
func (v *Variant) UnitPrice(parent decimal.Decimal) decimal.Decimal {
	if v.PriceOverride.Valid {
		return v.PriceOverride.Decimal
	}
	return parent
}

// Category groups products on the storefront.
type Category struct {
	ID   string
	Slug string
	Name string
}

// ListFilter narrows product listings.
type ListFilter struct {
	CategorySlug string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	// GetByIDs returns products (with variants) matching any of the given IDs,
	// regardless of status. Missing IDs are simply absent from the result.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}
