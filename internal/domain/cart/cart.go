// Package cart holds the per-user shopping cart and wishlist. Both are
// keyed collections: writes upsert by (user, product[, variant]).
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// MaxQuantity bounds the quantity of a single cart line.
const MaxQuantity = 1000

var (
	// ErrProductNotFound is returned when an item references a product that
	// does not exist or is not for sale.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when an item references a variant that
	// does not belong to its product.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrInvalidQuantity is returned for quantities outside 0..MaxQuantity.
	ErrInvalidQuantity = errors.New("quantity must be between 0 and 1000")
)

// Item is one cart line. VariantID is empty for products without variants.
type Item struct {
	ProductID string
	VariantID string
	Quantity  int
	UpdatedAt time.Time
}

// Cart is a user's current cart.
type Cart struct {
	UserID string
	Items  []Item
}

// WishlistItem is a product a user saved for later.
type WishlistItem struct {
	ProductID string
	AddedAt   time.Time
}

// Repository persists carts.
type Repository interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	// Upsert sets the quantity of the (product, variant) line, inserting it
	// if absent. Quantity must be positive.
	Upsert(ctx context.Context, userID string, items ...Item) error
	Remove(ctx context.Context, userID, productID, variantID string) error
	Clear(ctx context.Context, userID string) error
}

// WishlistRepository persists wishlists. Add is idempotent.
type WishlistRepository interface {
	Wishlist(ctx context.Context, userID string) ([]WishlistItem, error)
	AddWishlist(ctx context.Context, userID, productID string) error
	RemoveWishlist(ctx context.Context, userID, productID string) error
}
