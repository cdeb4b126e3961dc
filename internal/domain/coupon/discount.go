package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount c grants on subtotal. It returns
// ErrMinOrderNotMet when the subtotal is below the coupon's minimum.
func Apply(c *Coupon, subtotal decimal.Decimal) (Discount, error) {
	if c.MinOrderAmount.IsPositive() && subtotal.LessThan(c.MinOrderAmount) {
		return Discount{}, ErrMinOrderNotMet
	}

	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, c.MaxDiscount)
		}
	case DiscountFixed:
		amount = c.Value
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}

	// A discount never exceeds what is being paid for.
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{
		CouponID:    c.ID,
		Code:        c.Code,
		Amount:      amount.Round(2),
		Description: c.Description,
	}, nil
}
