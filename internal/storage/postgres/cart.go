package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/atelier/internal/domain/cart"
)

const (
	listCartItemsSQL = `SELECT product_id, variant_id, quantity, updated_at
		FROM cart_items WHERE user_id = $1 ORDER BY updated_at, product_id, variant_id`

	upsertCartItemSQL = `INSERT INTO cart_items (user_id, product_id, variant_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id, variant_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2 AND variant_id = $3`
	clearCartSQL      = `DELETE FROM cart_items WHERE user_id = $1`

	listWishlistSQL = `SELECT product_id, created_at FROM wishlist_items
		WHERE user_id = $1 ORDER BY created_at DESC`

	addWishlistSQL = `INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	removeWishlistSQL = `DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`
)

var (
	_ cart.Repository         = (*CartRepository)(nil)
	_ cart.WishlistRepository = (*CartRepository)(nil)
)

// CartRepository implements cart.Repository and cart.WishlistRepository.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Items(ctx context.Context, userID string) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.VariantID, &it.Quantity, &it.UpdatedAt)
		return it, err
	})
}

func (r *CartRepository) Upsert(ctx context.Context, userID string, items ...cart.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(upsertCartItemSQL, userID, it.ProductID, it.VariantID, it.Quantity)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting cart of %q: %w", userID, err)
	}
	return nil
}

func (r *CartRepository) Remove(ctx context.Context, userID, productID, variantID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartItemSQL, userID, productID, variantID); err != nil {
		return fmt.Errorf("removing %q from cart of %q: %w", productID, userID, err)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

func (r *CartRepository) Wishlist(ctx context.Context, userID string) ([]cart.WishlistItem, error) {
	rows, err := r.pool.Query(ctx, listWishlistSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wishlist of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.WishlistItem, error) {
		var it cart.WishlistItem
		err := row.Scan(&it.ProductID, &it.AddedAt)
		return it, err
	})
}

func (r *CartRepository) AddWishlist(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, addWishlistSQL, userID, productID); err != nil {
		return fmt.Errorf("adding %q to wishlist of %q: %w", productID, userID, err)
	}
	return nil
}

func (r *CartRepository) RemoveWishlist(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, removeWishlistSQL, userID, productID); err != nil {
		return fmt.Errorf("removing %q from wishlist of %q: %w", productID, userID, err)
	}
	return nil
}
