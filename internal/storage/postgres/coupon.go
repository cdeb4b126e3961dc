package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/atelier/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, discount_type, value, description, min_order_amount,
		max_discount, max_uses, max_uses_per_user, times_used, valid_from, valid_until, active
		FROM coupons WHERE code = $1`

	countCouponUsageByEmailSQL = `SELECT count(*) FROM coupon_usages
		WHERE coupon_id = $1 AND LOWER(user_email) = LOWER($2)`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_type, value, description, min_order_amount,
		max_discount, max_uses, max_uses_per_user, valid_from, valid_until, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			description = EXCLUDED.description,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount = EXCLUDED.max_discount,
			max_uses = EXCLUDED.max_uses,
			max_uses_per_user = EXCLUDED.max_uses_per_user,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			active = EXCLUDED.active`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalised code.
// Returns coupon.ErrInvalidCoupon when no coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUsageByEmail counts redemptions of the coupon by email, ignoring case.
func (r *CouponRepository) CountUsageByEmail(ctx context.Context, couponID, email string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCouponUsageByEmailSQL, couponID, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage of coupon %q: %w", couponID, err)
	}
	return n, nil
}

// Upsert inserts coupons or updates the rules of existing codes in one
// batch. Usage counters of existing coupons are left untouched.
func (r *CouponRepository) Upsert(ctx context.Context, coupons []coupon.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(upsertCouponSQL,
			c.ID, coupon.NormalizeCode(c.Code), string(c.DiscountType), c.Value, c.Description,
			c.MinOrderAmount, c.MaxDiscount, c.MaxUses, c.MaxUsesPerUser,
			c.ValidFrom, c.ValidUntil, c.Active,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &c.Description, &c.MinOrderAmount,
		&c.MaxDiscount, &c.MaxUses, &c.MaxUsesPerUser, &c.TimesUsed,
		&c.ValidFrom, &c.ValidUntil, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
