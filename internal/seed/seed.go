// Package seed loads a catalog fixture (categories, products, coupons and
// site settings) into the stores.
package seed

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/coupon"
	"github.com/xenking/atelier/internal/domain/product"
)

type categoryJSON struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type variantJSON struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Stock         int              `json:"stock"`
	PriceOverride *decimal.Decimal `json:"priceOverride"`
}

type productJSON struct {
	ID       string          `json:"id"`
	Slug     string          `json:"slug"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Stock    int             `json:"stock"`
	Status   string          `json:"status"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
	Variants []variantJSON   `json:"variants"`
}

type couponJSON struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	Description    string          `json:"description"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	MaxDiscount    decimal.Decimal `json:"maxDiscount"`
	MaxUses        int             `json:"maxUses"`
	MaxUsesPerUser int             `json:"maxUsesPerUser"`
	ValidFrom      *time.Time      `json:"validFrom"`
	ValidUntil     *time.Time      `json:"validUntil"`
	Inactive       bool            `json:"inactive"`
}

type catalogJSON struct {
	Categories []categoryJSON    `json:"categories"`
	Products   []productJSON     `json:"products"`
	Coupons    []couponJSON      `json:"coupons"`
	Settings   map[string]string `json:"settings"`
}

// Catalog is a parsed fixture.
type Catalog struct {
	Categories []product.Category
	Products   []product.Product
	Coupons    []coupon.Coupon
	Settings   map[string]string
}

// Parse decodes and checks a fixture.
func Parse(r io.Reader) (*Catalog, error) {
	var raw catalogJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	c := &Catalog{Settings: raw.Settings}
	categories := make(map[string]struct{}, len(raw.Categories))
	for _, cat := range raw.Categories {
		if cat.ID == "" || cat.Slug == "" {
			return nil, errors.Errorf("category %q: id and slug are required", cat.Name)
		}
		categories[cat.ID] = struct{}{}
		c.Categories = append(c.Categories, product.Category{ID: cat.ID, Slug: cat.Slug, Name: cat.Name})
	}

	for _, p := range raw.Products {
		if p.ID == "" || p.Slug == "" {
			return nil, errors.Errorf("product %q: id and slug are required", p.Name)
		}
		if p.Price.IsNegative() {
			return nil, errors.Errorf("product %s: negative price", p.ID)
		}
		if p.Category != "" {
			if _, ok := categories[p.Category]; !ok {
				return nil, errors.Errorf("product %s: unknown category %q", p.ID, p.Category)
			}
		}
		status := product.Status(p.Status)
		switch status {
		case "", product.StatusActive, product.StatusInactive:
		default:
			return nil, errors.Errorf("product %s: unknown status %q", p.ID, p.Status)
		}

		prod := product.Product{
			ID:         p.ID,
			Slug:       p.Slug,
			Name:       p.Name,
			Price:      p.Price,
			Currency:   p.Currency,
			Stock:      p.Stock,
			Status:     status,
			CategoryID: p.Category,
			ImageURL:   p.Image,
		}
		if len(p.Variants) > 0 {
			// Aggregate stock of a variant product is the sum of its variants.
			prod.Stock = 0
		}
		for _, v := range p.Variants {
			if v.ID == "" {
				return nil, errors.Errorf("product %s: variant id is required", p.ID)
			}
			variant := product.Variant{ID: v.ID, ProductID: p.ID, Name: v.Name, Stock: v.Stock}
			if v.PriceOverride != nil {
				variant.PriceOverride = decimal.NewNullDecimal(*v.PriceOverride)
			}
			prod.Stock += v.Stock
			prod.Variants = append(prod.Variants, variant)
		}
		c.Products = append(c.Products, prod)
	}

	for _, cp := range raw.Coupons {
		typ := coupon.DiscountType(cp.Type)
		if typ != coupon.DiscountPercentage && typ != coupon.DiscountFixed {
			return nil, errors.Errorf("coupon %s: unknown type %q", cp.Code, cp.Type)
		}
		id := cp.ID
		if id == "" {
			id = "cpn_" + coupon.NormalizeCode(cp.Code)
		}
		c.Coupons = append(c.Coupons, coupon.Coupon{
			ID:             id,
			Code:           coupon.NormalizeCode(cp.Code),
			DiscountType:   typ,
			Value:          cp.Value,
			Description:    cp.Description,
			MinOrderAmount: cp.MinOrderAmount,
			MaxDiscount:    cp.MaxDiscount,
			MaxUses:        cp.MaxUses,
			MaxUsesPerUser: cp.MaxUsesPerUser,
			ValidFrom:      cp.ValidFrom,
			ValidUntil:     cp.ValidUntil,
			Active:         !cp.Inactive,
		})
	}
	return c, nil
}

// CatalogStore is implemented by *postgres.ProductRepository.
type CatalogStore interface {
	UpsertCategories(ctx context.Context, categories []product.Category) error
	UpsertProducts(ctx context.Context, products []product.Product) error
}

// CouponStore is implemented by *postgres.CouponRepository.
type CouponStore interface {
	Upsert(ctx context.Context, coupons []coupon.Coupon) error
}

// SettingsStore is implemented by *postgres.SettingsRepository.
type SettingsStore interface {
	Put(ctx context.Context, key, value string) error
}

// Stores groups the write targets of Apply.
type Stores struct {
	Catalog  CatalogStore
	Coupons  CouponStore
	Settings SettingsStore
}

// Apply writes the catalog. Categories go first so products can reference
// them.
func (c *Catalog) Apply(ctx context.Context, lg *zap.Logger, s Stores) error {
	if len(c.Categories) > 0 {
		if err := s.Catalog.UpsertCategories(ctx, c.Categories); err != nil {
			return errors.Wrap(err, "seed categories")
		}
		lg.Info("Upserted categories", zap.Int("count", len(c.Categories)))
	}
	if len(c.Products) > 0 {
		if err := s.Catalog.UpsertProducts(ctx, c.Products); err != nil {
			return errors.Wrap(err, "seed products")
		}
		lg.Info("Upserted products", zap.Int("count", len(c.Products)))
	}
	if len(c.Coupons) > 0 {
		if err := s.Coupons.Upsert(ctx, c.Coupons); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
		lg.Info("Upserted coupons", zap.Int("count", len(c.Coupons)))
	}
	for key, value := range c.Settings {
		if err := s.Settings.Put(ctx, key, value); err != nil {
			return errors.Wrapf(err, "seed setting %s", key)
		}
		lg.Info("Upserted setting", zap.String("key", key), zap.String("value", value))
	}
	return nil
}
