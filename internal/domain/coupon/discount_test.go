package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		coupon     *Coupon
		subtotal   decimal.Decimal
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name:       "percentage 18% off 100",
			coupon:     &Coupon{Code: "PCT18", DiscountType: DiscountPercentage, Value: d("18")},
			subtotal:   d("100"),
			wantAmount: d("18"),
		},
		{
			name:       "percentage 100% equals subtotal",
			coupon:     &Coupon{Code: "FREE", DiscountType: DiscountPercentage, Value: d("100")},
			subtotal:   d("249.90"),
			wantAmount: d("249.90"),
		},
		{
			name: "percentage capped by max discount",
			coupon: &Coupon{
				Code:         "PCT50",
				DiscountType: DiscountPercentage,
				Value:        d("50"),
				MaxDiscount:  d("100"),
			},
			subtotal:   d("1000"),
			wantAmount: d("100"),
		},
		{
			name:       "fixed 150 off 1000",
			coupon:     &Coupon{Code: "FLAT150", DiscountType: DiscountFixed, Value: d("150")},
			subtotal:   d("1000"),
			wantAmount: d("150"),
		},
		{
			name:       "fixed larger than subtotal is capped",
			coupon:     &Coupon{Code: "BIG", DiscountType: DiscountFixed, Value: d("200")},
			subtotal:   d("80"),
			wantAmount: d("80"),
		},
		{
			name: "below minimum order amount",
			coupon: &Coupon{
				Code:           "MIN300",
				DiscountType:   DiscountFixed,
				Value:          d("30"),
				MinOrderAmount: d("300"),
			},
			subtotal: d("299.99"),
			wantErr:  ErrMinOrderNotMet,
		},
		{
			name: "exactly at minimum order amount",
			coupon: &Coupon{
				Code:           "MIN300",
				DiscountType:   DiscountFixed,
				Value:          d("30"),
				MinOrderAmount: d("300"),
			},
			subtotal:   d("300"),
			wantAmount: d("30"),
		},
		{
			name:       "rounds to 2 dp",
			coupon:     &Coupon{Code: "PCT33", DiscountType: DiscountPercentage, Value: d("33.33")},
			subtotal:   d("10.01"),
			wantAmount: d("3.34"), // 3.336333
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.coupon, tt.subtotal)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
			assert.Equal(t, tt.coupon.Code, got.Code)
		})
	}
}

func TestApply_UnsupportedType(t *testing.T) {
	_, err := Apply(&Coupon{Code: "X", DiscountType: "bogus"}, d("10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SUMMER25", NormalizeCode("  summer25 "))
	assert.Equal(t, "", NormalizeCode("   "))
}
