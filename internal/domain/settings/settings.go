// Package settings exposes storefront configuration that administrators edit
// at runtime (as opposed to process configuration loaded at startup).
package settings

import (
	"context"

	"github.com/shopspring/decimal"
)

// Keys of the site_settings table consulted by the order engine.
const (
	KeyFreeShippingThreshold = "shipping.free_threshold"
	KeyShippingBaseRate      = "shipping.base_rate"
)

// Fallbacks used when the settings store has no value for a key.
var (
	DefaultFreeShippingThreshold = decimal.NewFromInt(500)
	DefaultShippingBaseRate      = decimal.NewFromInt(50)
)

// Shipping holds the shipping cost policy.
type Shipping struct {
	FreeThreshold decimal.Decimal
	BaseRate      decimal.Decimal
}

// DefaultShipping returns the fallback shipping policy.
func DefaultShipping() Shipping {
	return Shipping{
		FreeThreshold: DefaultFreeShippingThreshold,
		BaseRate:      DefaultShippingBaseRate,
	}
}

// Cost returns the shipping cost for an order subtotal. Subtotals at or
// above the free threshold ship for free.
func (s Shipping) Cost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(s.FreeThreshold) {
		return decimal.Zero
	}
	return s.BaseRate
}

// Provider returns the current shipping policy.
type Provider interface {
	Shipping(ctx context.Context) (Shipping, error)
}

// Store reads raw setting values. Missing keys are absent from the map.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string]string, error)
}

// StoreProvider implements Provider on top of a Store, falling back to its
// configured defaults for absent or unparsable values.
type StoreProvider struct {
	store    Store
	defaults Shipping
}

// NewStoreProvider creates a provider reading from store. defaults are used
// as given, so a zero threshold or rate is a valid policy; pass
// DefaultShipping() for the package fallbacks.
func NewStoreProvider(store Store, defaults Shipping) *StoreProvider {
	return &StoreProvider{store: store, defaults: defaults}
}

// Shipping implements Provider.
func (p *StoreProvider) Shipping(ctx context.Context) (Shipping, error) {
	values, err := p.store.Get(ctx, KeyFreeShippingThreshold, KeyShippingBaseRate)
	if err != nil {
		return Shipping{}, err
	}
	return Shipping{
		FreeThreshold: parseOr(values[KeyFreeShippingThreshold], p.defaults.FreeThreshold),
		BaseRate:      parseOr(values[KeyShippingBaseRate], p.defaults.BaseRate),
	}, nil
}

func parseOr(v string, fallback decimal.Decimal) decimal.Decimal {
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}
