package couponimport

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/coupon"
)

// Rule is the discount granted by an imported code.
type Rule struct {
	Type        coupon.DiscountType
	Value       decimal.Decimal
	MinOrder    decimal.Decimal
	MaxDiscount decimal.Decimal
	Description string
}

// Rules lists codes with a dedicated discount. Other codes get DefaultRule.
var Rules = map[string]Rule{
	"FIFTYOFF": {Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(50), MaxDiscount: decimal.NewFromInt(1000), Description: "50% off, up to 1000"},
	"SIXTYOFF": {Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(60), MinOrder: decimal.NewFromInt(1500), Description: "60% off orders from 1500"},
	"GNULINUX": {Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(15), Description: "Open source discount: 15% off"},
	"HAPPYHRS": {Type: coupon.DiscountPercentage, Value: decimal.NewFromInt(18), Description: "Happy Hours: 18% off"},
	"OVER9000": {Type: coupon.DiscountFixed, Value: decimal.NewFromInt(90), MinOrder: decimal.NewFromInt(900), Description: "90 off orders from 900"},
	"WELCOME1": {Type: coupon.DiscountFixed, Value: decimal.NewFromInt(50), Description: "50 off your first order"},
}

// DefaultRule applies to codes without an entry in Rules.
var DefaultRule = Rule{
	Type:        coupon.DiscountPercentage,
	Value:       decimal.NewFromInt(10),
	Description: "Promo code: 10% off",
}

// Coupons builds active single-use-per-customer coupons for codes, valid
// from now until validFor elapses. A zero validFor means no expiry.
func Coupons(codes []string, now time.Time, validFor time.Duration) []coupon.Coupon {
	var until *time.Time
	if validFor > 0 {
		t := now.Add(validFor)
		until = &t
	}

	out := make([]coupon.Coupon, 0, len(codes))
	for _, code := range codes {
		code = coupon.NormalizeCode(code)
		rule, ok := Rules[code]
		if !ok {
			rule = DefaultRule
		}
		out = append(out, coupon.Coupon{
			ID:             uuid.NewString(),
			Code:           code,
			DiscountType:   rule.Type,
			Value:          rule.Value,
			Description:    rule.Description,
			MinOrderAmount: rule.MinOrder,
			MaxDiscount:    rule.MaxDiscount,
			MaxUsesPerUser: 1,
			ValidFrom:      &now,
			ValidUntil:     until,
			Active:         true,
		})
	}
	return out
}

// Upserter is implemented by *postgres.CouponRepository.
type Upserter interface {
	Upsert(ctx context.Context, coupons []coupon.Coupon) error
}

// Write upserts coupons in batches of batchSize.
func Write(ctx context.Context, lg *zap.Logger, store Upserter, coupons []coupon.Coupon, batchSize int) error {
	if batchSize < 1 {
		batchSize = 1000
	}
	for start := 0; start < len(coupons); start += batchSize {
		end := min(start+batchSize, len(coupons))
		if err := store.Upsert(ctx, coupons[start:end]); err != nil {
			return errors.Wrapf(err, "upsert coupons %d..%d", start, end)
		}
		lg.Info("Write progress", zap.Int("written", end), zap.Int("total", len(coupons)))
	}
	return nil
}
