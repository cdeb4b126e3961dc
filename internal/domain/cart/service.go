package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/product"
)

// Service implements cart and wishlist operations on top of the catalog.
type Service struct {
	products product.Repository
	carts    Repository
	wishlist WishlistRepository
}

// NewService creates a cart Service.
func NewService(products product.Repository, carts Repository, wishlist WishlistRepository) *Service {
	return &Service{products: products, carts: carts, wishlist: wishlist}
}

// Get returns the user's cart.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	items, err := s.carts.Items(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart items")
	}
	return &Cart{UserID: userID, Items: items}, nil
}

// SetItem sets the quantity of one line. A zero quantity removes the line.
func (s *Service) SetItem(ctx context.Context, userID string, item Item) (*Cart, error) {
	if item.Quantity < 0 || item.Quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	if item.Quantity == 0 {
		return s.RemoveItem(ctx, userID, item.ProductID, item.VariantID)
	}

	catalog, err := s.lookup(ctx, []Item{item})
	if err != nil {
		return nil, err
	}
	if err := checkItem(catalog, item); err != nil {
		return nil, err
	}

	if err := s.carts.Upsert(ctx, userID, item); err != nil {
		return nil, errors.Wrap(err, "upsert cart item")
	}
	return s.Get(ctx, userID)
}

// RemoveItem drops one line. Removing an absent line is not an error.
func (s *Service) RemoveItem(ctx context.Context, userID, productID, variantID string) (*Cart, error) {
	if err := s.carts.Remove(ctx, userID, productID, variantID); err != nil {
		return nil, errors.Wrap(err, "remove cart item")
	}
	return s.Get(ctx, userID)
}

// Sync merges a client-side cart into the stored one. For lines present on
// both sides the client quantity wins; stored lines absent from the client
// are kept. Lines referencing unknown products or carrying an invalid
// quantity are skipped.
func (s *Service) Sync(ctx context.Context, userID string, items []Item) (*Cart, error) {
	catalog, err := s.lookup(ctx, items)
	if err != nil {
		return nil, err
	}

	type key struct{ productID, variantID string }
	merged := make(map[key]int, len(items))
	var order []key
	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			continue
		}
		if err := checkItem(catalog, item); err != nil {
			zctx.From(ctx).Debug("Skipping cart line on sync",
				zap.String("product_id", item.ProductID),
				zap.String("variant_id", item.VariantID),
				zap.Error(err),
			)
			continue
		}
		k := key{item.ProductID, item.VariantID}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = item.Quantity
	}

	upserts := make([]Item, 0, len(order))
	for _, k := range order {
		upserts = append(upserts, Item{ProductID: k.productID, VariantID: k.variantID, Quantity: merged[k]})
	}
	if len(upserts) > 0 {
		if err := s.carts.Upsert(ctx, userID, upserts...); err != nil {
			return nil, errors.Wrap(err, "sync cart")
		}
	}
	return s.Get(ctx, userID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.carts.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Wishlist returns the user's saved products.
func (s *Service) Wishlist(ctx context.Context, userID string) ([]WishlistItem, error) {
	items, err := s.wishlist.Wishlist(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get wishlist")
	}
	return items, nil
}

// AddToWishlist saves a product for the user.
func (s *Service) AddToWishlist(ctx context.Context, userID, productID string) error {
	catalog, err := s.lookup(ctx, []Item{{ProductID: productID}})
	if err != nil {
		return err
	}
	if p, ok := catalog[productID]; !ok || !p.IsActive() {
		return ErrProductNotFound
	}
	if err := s.wishlist.AddWishlist(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "add to wishlist")
	}
	return nil
}

// RemoveFromWishlist drops a saved product.
func (s *Service) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	if err := s.wishlist.RemoveWishlist(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "remove from wishlist")
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, items []Item) (map[string]*product.Product, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	if len(ids) == 0 {
		return map[string]*product.Product{}, nil
	}
	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	out := make(map[string]*product.Product, len(found))
	for i := range found {
		out[found[i].ID] = &found[i]
	}
	return out, nil
}

func checkItem(catalog map[string]*product.Product, item Item) error {
	p, ok := catalog[item.ProductID]
	if !ok || !p.IsActive() {
		return ErrProductNotFound
	}
	if item.VariantID != "" && p.Variant(item.VariantID) == nil {
		return ErrVariantNotFound
	}
	return nil
}
