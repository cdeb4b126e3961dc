// Package notify delivers post-commit order notifications.
package notify

import (
	"github.com/go-faster/jx"

	"github.com/xenking/atelier/internal/domain/order"
)

// EventOrderPlaced is the event type of order placement messages.
const EventOrderPlaced = "order.placed"

// encodeOrderPlaced renders the order.placed event payload.
func encodeOrderPlaced(o *order.Order) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(EventOrderPlaced) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("email", func(e *jx.Encoder) { e.Str(o.ShippingAddress.Email) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		if o.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						if it.VariantID != "" {
							e.Field("variantId", func(e *jx.Encoder) { e.Str(it.VariantID) })
						}
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")) })
	})

	return append([]byte(nil), e.Bytes()...)
}
