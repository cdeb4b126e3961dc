package handler

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier/internal/domain/cart"
	"github.com/xenking/atelier/internal/domain/coupon"
	"github.com/xenking/atelier/internal/domain/order"
	"github.com/xenking/atelier/internal/domain/product"
)

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Float64(money(d).InexactFloat64())
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func strField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", p.ID)
		strField(e, "slug", p.Slug)
		strField(e, "name", p.Name)
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		strField(e, "currency", p.Currency)
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		strField(e, "status", string(p.Status))
		strField(e, "categoryId", p.CategoryID)
		strField(e, "image", h.imageURL(p.ImageURL))
		e.Field("variants", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range p.Variants {
					v := &p.Variants[i]
					e.Obj(func(e *jx.Encoder) {
						strField(e, "id", v.ID)
						strField(e, "name", v.Name)
						e.Field("stock", func(e *jx.Encoder) { e.Int(v.Stock) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, v.UnitPrice(p.Price)) })
					})
				}
			})
		})
	})
}

func encodeCategory(e *jx.Encoder, c *product.Category) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", c.ID)
		strField(e, "slug", c.Slug)
		strField(e, "name", c.Name)
	})
}

func encodeAddress(e *jx.Encoder, a *order.Address) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "firstName", a.FirstName)
		strField(e, "lastName", a.LastName)
		strField(e, "email", a.Email)
		strField(e, "phone", a.Phone)
		strField(e, "address", a.Address)
		strField(e, "city", a.City)
		strField(e, "postalCode", a.PostalCode)
		strField(e, "district", a.District)
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		strField(e, "orderNumber", o.Number)
		strField(e, "userId", o.UserID)
		strField(e, "status", string(o.Status))
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range o.Items {
					it := &o.Items[i]
					e.Obj(func(e *jx.Encoder) {
						strField(e, "productId", it.ProductID)
						if it.VariantID != "" {
							strField(e, "variantId", it.VariantID)
						}
						strField(e, "productName", it.ProductName)
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
						e.Field("lineTotal", func(e *jx.Encoder) { encodeMoney(e, it.LineTotal) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
		e.Field("shippingCost", func(e *jx.Encoder) { encodeMoney(e, o.ShippingCost) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeMoney(e, o.DiscountAmount) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		strField(e, "currency", o.Currency)
		strField(e, "paymentMethod", string(o.PaymentMethod))
		e.Field("shippingAddress", func(e *jx.Encoder) { encodeAddress(e, &o.ShippingAddress) })
		if o.Notes != "" {
			strField(e, "notes", o.Notes)
		}
		if o.CouponCode != "" {
			strField(e, "couponCode", o.CouponCode)
		}
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	})
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range c.Items {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "productId", it.ProductID)
						if it.VariantID != "" {
							strField(e, "variantId", it.VariantID)
						}
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
	})
}

func encodeWishlist(e *jx.Encoder, items []cart.WishlistItem) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range items {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "productId", it.ProductID)
						e.Field("addedAt", func(e *jx.Encoder) { encodeTime(e, it.AddedAt) })
					})
				}
			})
		})
	})
}

func encodeDiscount(e *jx.Encoder, d *coupon.Discount, subtotal decimal.Decimal) {
	final := subtotal.Sub(d.Amount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("valid", func(e *jx.Encoder) { e.Bool(true) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeMoney(e, d.Amount) })
		e.Field("finalTotal", func(e *jx.Encoder) { encodeMoney(e, final) })
		e.Field("coupon", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				strField(e, "code", d.Code)
				if d.Description != "" {
					strField(e, "description", d.Description)
				}
			})
		})
	})
}
