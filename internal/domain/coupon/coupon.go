package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is not found or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrCouponAlreadyUsed is returned when the caller's email has already
	// redeemed the coupon as many times as it allows per user.
	ErrCouponAlreadyUsed = errors.New("coupon already used")
	// ErrMinOrderNotMet is returned when the subtotal is below the coupon's minimum.
	ErrMinOrderNotMet = errors.New("order total below coupon minimum")
)

// IsRejection reports whether err is one of the business reasons a coupon
// may be refused, as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidCoupon) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponUsageLimitReached) ||
		errors.Is(err, ErrCouponAlreadyUsed) ||
		errors.Is(err, ErrMinOrderNotMet)
}

// Coupon defines a coupon's discount behaviour and eligibility constraints.
type Coupon struct {
	ID             string
	Code           string
	DiscountType   DiscountType
	Value          decimal.Decimal
	Description    string
	MinOrderAmount decimal.Decimal
	// MaxDiscount caps percentage discounts. Zero means no cap.
	MaxDiscount decimal.Decimal
	// MaxUses and MaxUsesPerUser of zero mean unlimited.
	MaxUses        int
	MaxUsesPerUser int
	TimesUsed      int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Active         bool
}

// Discount is an approved coupon application for a specific subtotal.
type Discount struct {
	CouponID    string
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Usage is one successful redemption. UserEmail is stored independently of
// UserID so that redemptions survive account deletion.
type Usage struct {
	CouponID       string
	UserID         string
	UserEmail      string
	OrderID        string
	DiscountAmount decimal.Decimal
	CreatedAt      time.Time
}

// NormalizeCode returns the canonical (trimmed, upper-case) form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup of coupons and their redemption history.
type Repository interface {
	// FindByCode returns the coupon with the given normalised code, or
	// ErrInvalidCoupon.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CountUsageByEmail returns how many times email has redeemed the coupon.
	CountUsageByEmail(ctx context.Context, couponID, email string) (int, error)
}
