package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks whether a coupon code may be applied to a subtotal by the
// given user and returns the computed discount.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, email string) (*Discount, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository
// and applying them via the Apply function. It never mutates usage counters;
// those change only inside the order commit.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

var _ Validator = (*RepoValidator)(nil)

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon for the given code, checks its validity
// window, global and per-email usage limits, and applies it to subtotal.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal, email string) (*Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.Active {
		return nil, ErrInvalidCoupon
	}

	now := v.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return nil, ErrCouponExpired
	}

	if c.MaxUses > 0 && c.TimesUsed >= c.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	if c.MaxUsesPerUser > 0 && email != "" {
		used, err := v.repo.CountUsageByEmail(ctx, c.ID, email)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage")
		}
		if used >= c.MaxUsesPerUser {
			return nil, ErrCouponAlreadyUsed
		}
	}

	d, err := Apply(c, subtotal)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
