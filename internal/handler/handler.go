// Package handler exposes the storefront HTTP API on a net/http ServeMux.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/atelier/internal/domain/auth"
	"github.com/xenking/atelier/internal/domain/cart"
	"github.com/xenking/atelier/internal/domain/coupon"
	"github.com/xenking/atelier/internal/domain/order"
	"github.com/xenking/atelier/internal/domain/product"
	"github.com/xenking/atelier/pkg/httpmiddleware"
)

// OrderService is implemented by *order.Service.
type OrderService interface {
	PlaceOrder(ctx context.Context, id *auth.Identity, req order.PlaceRequest) (*order.Order, error)
	List(ctx context.Context, id *auth.Identity, page, limit int) (*order.Page, error)
	Get(ctx context.Context, id *auth.Identity, orderID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id *auth.Identity, orderID string, to order.Status) (*order.Order, error)
}

// CartService is implemented by *cart.Service.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	SetItem(ctx context.Context, userID string, item cart.Item) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID, variantID string) (*cart.Cart, error)
	Sync(ctx context.Context, userID string, items []cart.Item) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
	Wishlist(ctx context.Context, userID string) ([]cart.WishlistItem, error)
	AddToWishlist(ctx context.Context, userID, productID string) error
	RemoveFromWishlist(ctx context.Context, userID, productID string) error
}

var (
	_ OrderService = (*order.Service)(nil)
	_ CartService  = (*cart.Service)(nil)
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
}

// Handler serves the storefront API.
type Handler struct {
	products     product.Repository
	coupons      coupon.Validator
	orders       OrderService
	carts        CartService
	verifier     auth.Verifier
	imageBaseURL string
}

// New constructs a Handler.
func New(
	cfg Config,
	products product.Repository,
	coupons coupon.Validator,
	orders OrderService,
	carts CartService,
	verifier auth.Verifier,
) *Handler {
	return &Handler{
		products:     products,
		coupons:      coupons,
		orders:       orders,
		carts:        carts,
		verifier:     verifier,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpmiddleware.Route(pattern, fn))
	}
	private := func(pattern string, fn authedFunc) {
		mux.Handle(pattern, httpmiddleware.Route(pattern, h.authenticate(fn)))
	}

	public("GET /api/products", h.listProducts)
	public("GET /api/products/{slug}", h.getProduct)
	public("GET /api/categories", h.listCategories)

	private("POST /api/coupons/validate", h.validateCoupon)

	private("POST /api/orders", h.placeOrder)
	private("GET /api/orders", h.listOrders)
	private("GET /api/orders/{id}", h.getOrder)
	private("PATCH /api/orders/{id}/status", h.updateOrderStatus)

	private("GET /api/cart", h.getCart)
	private("PUT /api/cart/items", h.setCartItem)
	private("DELETE /api/cart/items/{productId}", h.removeCartItem)
	private("POST /api/cart/sync", h.syncCart)
	private("DELETE /api/cart", h.clearCart)

	private("GET /api/wishlist", h.getWishlist)
	private("PUT /api/wishlist/{productId}", h.addToWishlist)
	private("DELETE /api/wishlist/{productId}", h.removeFromWishlist)
}

// money rounds an amount for presentation.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
