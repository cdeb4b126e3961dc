package postgres

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/coupon"
	"github.com/xenking/atelier/internal/domain/order"
)

const (
	// Held until commit, so numbering within a prefix is serialised.
	lockOrderNumberSQL = `SELECT pg_advisory_xact_lock(hashtext('order_number:' || $1))`

	lastOrderNumberSQL = `SELECT order_number FROM orders
		WHERE order_number LIKE $1 || '%'
		ORDER BY order_number DESC LIMIT 1`

	insertOrderSQL = `INSERT INTO orders (id, order_number, user_id, status, subtotal, shipping_cost,
		discount_amount, total, currency, payment_method, shipping_address, notes, coupon_code,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, variant_id, product_name,
		quantity, unit_price, line_total)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`

	findCouponIDSQL = `SELECT id FROM coupons WHERE code = $1`

	insertCouponUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, user_email, order_id, discount_amount)
		VALUES ($1, $2, $3, $4, $5)`

	// The row lock taken here serialises redemptions of one coupon, so the
	// per-email count that follows sees every committed usage.
	incrementCouponUsesSQL = `UPDATE coupons SET times_used = times_used + 1
		WHERE id = $1 AND (max_uses = 0 OR times_used < max_uses)
		RETURNING max_uses_per_user`

	// The product row is conditional only on the quantity ordered without a
	// variant; variant quantities reduce the cached aggregate clamped at zero.
	decrementProductStockSQL = `UPDATE products
		SET stock = GREATEST(stock - $2 - $3, 0), updated_at = now()
		WHERE id = $1 AND stock >= $2`

	decrementVariantStockSQL = `UPDATE product_variants
		SET stock = stock - $3
		WHERE id = $1 AND product_id = $2 AND stock >= $3`

	productStockSQL = `SELECT stock FROM products WHERE id = $1`
	variantStockSQL = `SELECT stock FROM product_variants WHERE id = $1`

	orderColumns = `id, order_number, user_id, status, subtotal, shipping_cost, discount_amount, total,
		currency, payment_method, shipping_address, notes, COALESCE(coupon_code, ''), created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC, order_number DESC
		LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders WHERE ($1 = '' OR user_id = $1)`

	listOrderItemsSQL = `SELECT id, order_id, product_id, COALESCE(variant_id, ''), product_name,
		quantity, unit_price, line_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

const orderNumberConstraint = "orders_order_number_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order, its items, the coupon redemption and the stock
// decrements in a single transaction.
//
// Stock rows are locked in (product, variant) order so that concurrent
// checkouts sharing products cannot deadlock.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, redemption *order.Redemption) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		number, err := nextOrderNumber(ctx, tx, order.NumberPrefix(o.CreatedAt))
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, number, o.UserID, string(o.Status), o.Subtotal, o.ShippingCost,
			o.DiscountAmount, o.Total, o.Currency, string(o.PaymentMethod), o.ShippingAddress,
			o.Notes, o.CouponCode, o.CreatedAt, o.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err, orderNumberConstraint) {
				return &order.ConflictError{Resource: "order_number", Key: number}
			}
			return fmt.Errorf("inserting order %q: %w", o.ID, err)
		}

		batch := &pgx.Batch{}
		for _, item := range o.Items {
			batch.Queue(insertOrderItemSQL,
				item.ID, o.ID, item.ProductID, item.VariantID, item.ProductName,
				item.Quantity, item.UnitPrice, item.LineTotal,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting items of order %q: %w", o.ID, err)
		}

		if redemption != nil {
			if err := redeemCoupon(ctx, tx, o, redemption); err != nil {
				return err
			}
		}

		if err := decrementStock(ctx, tx, o.Items); err != nil {
			return err
		}

		o.Number = number
		return nil
	})
	if err != nil {
		var (
			stockErr *order.InsufficientStockError
			conflict *order.ConflictError
		)
		if errors.As(err, &stockErr) || errors.As(err, &conflict) || coupon.IsRejection(err) {
			return err
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func nextOrderNumber(ctx context.Context, tx pgx.Tx, prefix string) (string, error) {
	if _, err := tx.Exec(ctx, lockOrderNumberSQL, prefix); err != nil {
		return "", fmt.Errorf("locking order numbers: %w", err)
	}

	var last string
	err := tx.QueryRow(ctx, lastOrderNumberSQL, prefix).Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("reading last order number: %w", err)
	}
	return order.NextNumber(prefix, last)
}

func redeemCoupon(ctx context.Context, tx pgx.Tx, o *order.Order, r *order.Redemption) error {
	code := coupon.NormalizeCode(r.Code)

	var couponID string
	if err := tx.QueryRow(ctx, findCouponIDSQL, code).Scan(&couponID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The discount was granted at validation; the order stands.
			zctx.From(ctx).Warn("Coupon disappeared before commit",
				zap.String("coupon_code", code),
				zap.String("order_id", o.ID),
			)
			return nil
		}
		return fmt.Errorf("resolving coupon %q: %w", code, err)
	}

	var perUser int
	if err := tx.QueryRow(ctx, incrementCouponUsesSQL, couponID).Scan(&perUser); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.ErrCouponUsageLimitReached
		}
		return fmt.Errorf("incrementing uses for coupon %q: %w", code, err)
	}

	if perUser > 0 {
		var used int
		if err := tx.QueryRow(ctx, countCouponUsageByEmailSQL, couponID, r.UserEmail).Scan(&used); err != nil {
			return fmt.Errorf("counting usage of coupon %q: %w", code, err)
		}
		if used >= perUser {
			return coupon.ErrCouponAlreadyUsed
		}
	}

	if _, err := tx.Exec(ctx, insertCouponUsageSQL,
		couponID, o.UserID, r.UserEmail, o.ID, r.DiscountAmount,
	); err != nil {
		return fmt.Errorf("recording usage of coupon %q: %w", code, err)
	}
	return nil
}

type productDemand struct {
	productID string
	name      string
	plain     int
	variants  map[string]int
	names     map[string]string
}

func decrementStock(ctx context.Context, tx pgx.Tx, items []order.Item) error {
	byProduct := make(map[string]*productDemand)
	for _, item := range items {
		d, ok := byProduct[item.ProductID]
		if !ok {
			d = &productDemand{
				productID: item.ProductID,
				variants:  make(map[string]int),
				names:     make(map[string]string),
			}
			byProduct[item.ProductID] = d
		}
		if item.VariantID == "" {
			d.plain += item.Quantity
			d.name = item.ProductName
			continue
		}
		d.variants[item.VariantID] += item.Quantity
		d.names[item.VariantID] = item.ProductName
	}

	demands := make([]*productDemand, 0, len(byProduct))
	for _, d := range byProduct {
		demands = append(demands, d)
	}
	slices.SortFunc(demands, func(a, b *productDemand) int { return cmp.Compare(a.productID, b.productID) })

	for _, d := range demands {
		variantTotal := 0
		for _, n := range d.variants {
			variantTotal += n
		}

		tag, err := tx.Exec(ctx, decrementProductStockSQL, d.productID, d.plain, variantTotal)
		if err != nil {
			return fmt.Errorf("decrementing stock of product %q: %w", d.productID, err)
		}
		if tag.RowsAffected() == 0 {
			available, err := currentStock(ctx, tx, productStockSQL, d.productID)
			if err != nil {
				return err
			}
			return &order.InsufficientStockError{
				ProductID: d.productID,
				Name:      d.name,
				Available: available,
				Requested: d.plain,
			}
		}

		variantIDs := make([]string, 0, len(d.variants))
		for id := range d.variants {
			variantIDs = append(variantIDs, id)
		}
		slices.Sort(variantIDs)

		for _, variantID := range variantIDs {
			n := d.variants[variantID]
			tag, err := tx.Exec(ctx, decrementVariantStockSQL, variantID, d.productID, n)
			if err != nil {
				return fmt.Errorf("decrementing stock of variant %q: %w", variantID, err)
			}
			if tag.RowsAffected() == 0 {
				available, err := currentStock(ctx, tx, variantStockSQL, variantID)
				if err != nil {
					return err
				}
				return &order.InsufficientStockError{
					ProductID: d.productID,
					VariantID: variantID,
					Name:      d.names[variantID],
					Available: available,
					Requested: n,
				}
			}
		}
	}
	return nil
}

func currentStock(ctx context.Context, tx pgx.Tx, query, id string) (int, error) {
	var stock int
	if err := tx.QueryRow(ctx, query, id).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading stock of %q: %w", id, err)
	}
	return stock, nil
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns a page of orders, newest first, and the total count matching
// the filter.
func (r *OrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, filter.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	if total == 0 || filter.Offset >= total {
		return nil, total, nil
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, filter.UserID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus moves an order from one status to another.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return &order.ConflictError{Resource: "order_status", Key: id}
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.LineTotal,
		)
		return it, err
	})
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	for _, it := range items {
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentMethod string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &status, &o.Subtotal, &o.ShippingCost, &o.DiscountAmount, &o.Total,
		&o.Currency, &paymentMethod, &o.ShippingAddress, &o.Notes, &o.CouponCode, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	return o, err
}
