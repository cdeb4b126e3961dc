package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/atelier/internal/domain/product"
)

const (
	productColumns = `p.id, p.slug, p.name, p.price, p.currency, p.stock, p.status,
		COALESCE(p.category_id, ''), p.image_url, p.created_at, p.updated_at`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.status = 'active' AND ($1 = '' OR c.slug = $1)
		ORDER BY p.created_at DESC, p.id`

	getProductBySlugSQL = `SELECT ` + productColumns + `
		FROM products p WHERE p.slug = $1 AND p.status = 'active'`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products p WHERE p.id = ANY($1)`

	listVariantsSQL = `SELECT id, product_id, name, stock, price_override
		FROM product_variants WHERE product_id = ANY($1) ORDER BY product_id, name, id`

	listCategoriesSQL = `SELECT id, slug, name FROM categories ORDER BY name`

	upsertCategorySQL = `INSERT INTO categories (id, slug, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET slug = EXCLUDED.slug, name = EXCLUDED.name`

	upsertProductSQL = `INSERT INTO products (id, slug, name, price, currency, stock, status, category_id, image_url)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'TRY'), $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			stock = EXCLUDED.stock,
			status = EXCLUDED.status,
			category_id = EXCLUDED.category_id,
			image_url = EXCLUDED.image_url,
			updated_at = now()`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, name, stock, price_override)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			stock = EXCLUDED.stock,
			price_override = EXCLUDED.price_override`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns active products, optionally restricted to one category.
func (r *ProductRepository) List(ctx context.Context, filter product.ListFilter) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, filter.CategorySlug)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetBySlug returns a single active product by slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductBySlugSQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", slug, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", slug, err)
	}

	products := []product.Product{p}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// GetByIDs returns products matching any of the given IDs, with variants.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// ListCategories returns every category ordered by name.
func (r *ProductRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Category, error) {
		var c product.Category
		err := row.Scan(&c.ID, &c.Slug, &c.Name)
		return c, err
	})
}

func (r *ProductRepository) attachVariants(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, listVariantsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing variants: %w", err)
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return fmt.Errorf("listing variants: %w", err)
	}
	for _, v := range variants {
		i := index[v.ProductID]
		products[i].Variants = append(products[i].Variants, v)
	}
	return nil
}

// UpsertCategories inserts categories or renames existing ones.
func (r *ProductRepository) UpsertCategories(ctx context.Context, categories []product.Category) error {
	batch := &pgx.Batch{}
	for _, c := range categories {
		batch.Queue(upsertCategorySQL, c.ID, c.Slug, c.Name)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d categories: %w", len(categories), err)
	}
	return nil
}

// UpsertProducts writes products with their variants in one transaction.
// Stock counters are overwritten, so it is meant for seeding and restocking.
func (r *ProductRepository) UpsertProducts(ctx context.Context, products []product.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range products {
			status := p.Status
			if status == "" {
				status = product.StatusActive
			}
			batch.Queue(upsertProductSQL,
				p.ID, p.Slug, p.Name, p.Price, p.Currency, p.Stock, string(status), p.CategoryID, p.ImageURL,
			)
			for _, v := range p.Variants {
				batch.Queue(upsertVariantSQL, v.ID, p.ID, v.Name, v.Stock, v.PriceOverride)
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upserting %d products: %w", len(products), err)
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p      product.Product
		status string
	)
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Price, &p.Currency, &p.Stock, &status,
		&p.CategoryID, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Status = product.Status(status)
	return p, err
}

func scanVariant(row pgx.CollectableRow) (product.Variant, error) {
	var v product.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.Name, &v.Stock, &v.PriceOverride)
	return v, err
}
