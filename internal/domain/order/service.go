package order

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/auth"
	"github.com/xenking/atelier/internal/domain/coupon"
	"github.com/xenking/atelier/internal/domain/product"
	"github.com/xenking/atelier/internal/domain/settings"
)

// maxCommitAttempts bounds retries of a commit that lost the order-number race.
const maxCommitAttempts = 3

// DefaultCurrency is used when ServiceOptions.Currency is empty.
const DefaultCurrency = "TRY"

// DefaultNotifyTimeout is used when ServiceOptions.NotifyTimeout is zero.
const DefaultNotifyTimeout = 10 * time.Second

// ServiceOptions holds optional Service dependencies.
type ServiceOptions struct {
	Currency       string
	Notifier       Notifier
	NotifyTimeout  time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service encapsulates order placement business logic.
type Service struct {
	products product.Repository
	coupons  coupon.Validator
	orders   Repository
	shipping settings.Provider
	notifier Notifier
	currency string
	now      func() time.Time

	notifyTimeout time.Duration
	notifying     sync.WaitGroup

	tracer          trace.Tracer
	placed          metric.Int64Counter
	stockRejections metric.Int64Counter
	numberConflicts metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	orders Repository,
	shipping settings.Provider,
	opts ServiceOptions,
) (*Service, error) {
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}

	s := &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		shipping: shipping,
		notifier: opts.Notifier,
		currency: opts.Currency,
		now:      time.Now,
		tracer:   opts.TracerProvider.Tracer("atelier/order"),

		notifyTimeout: opts.NotifyTimeout,
	}

	meter := opts.MeterProvider.Meter("atelier/order")
	var err error
	if s.placed, err = meter.Int64Counter("atelier.orders.placed",
		metric.WithDescription("Orders committed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	if s.stockRejections, err = meter.Int64Counter("atelier.orders.stock_rejections",
		metric.WithDescription("Checkouts rejected for insufficient stock"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.stock_rejections counter")
	}
	if s.numberConflicts, err = meter.Int64Counter("atelier.orders.number_conflicts",
		metric.WithDescription("Order commits retried after an order number collision"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.number_conflicts counter")
	}
	return s, nil
}

// stockKey identifies the counter a line draws from.
type stockKey struct {
	productID string
	variantID string
}

// PlaceOrder validates the request, prices it, and commits the order. See
// Repository.Create for the commit guarantees.
func (s *Service) PlaceOrder(ctx context.Context, id *auth.Identity, req PlaceRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !id.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	lg := zctx.From(ctx).With(zap.String("user_id", id.ID))

	// Batch fetch every referenced product.
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if !slices.Contains(ids, item.ProductID) {
			ids = append(ids, item.ProductID)
		}
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		productMap[fetched[i].ID] = &fetched[i]
	}

	// Resolve lines and pre-check stock. The commit re-checks atomically;
	// this pass only gives early feedback.
	items := make([]Item, len(req.Items))
	requested := make(map[stockKey]int, len(req.Items))
	subtotal := decimal.Zero
	for i, line := range req.Items {
		p, ok := productMap[line.ProductID]
		if !ok || !p.IsActive() {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}

		price := p.Price
		available := p.Stock
		name := p.Name
		if line.VariantID != "" {
			v := p.Variant(line.VariantID)
			if v == nil {
				return nil, &VariantNotFoundError{ProductID: p.ID, VariantID: line.VariantID}
			}
			price = v.UnitPrice(p.Price)
			available = v.Stock
			name = fmt.Sprintf("%s (%s)", p.Name, v.Name)
		}

		key := stockKey{productID: p.ID, variantID: line.VariantID}
		requested[key] += line.Quantity
		if requested[key] > available {
			s.stockRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "precheck")))
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				VariantID: line.VariantID,
				Name:      name,
				Available: available,
				Requested: requested[key],
			}
		}

		lineTotal := price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items[i] = Item{
			ID:          uuid.NewString(),
			ProductID:   p.ID,
			VariantID:   line.VariantID,
			ProductName: name,
			Quantity:    line.Quantity,
			UnitPrice:   price,
			LineTotal:   lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}

	shipping, err := s.shipping.Shipping(ctx)
	if err != nil {
		lg.Warn("Shipping settings unavailable, using defaults", zap.Error(err))
		shipping = settings.DefaultShipping()
	}
	shippingCost := shipping.Cost(subtotal)

	discount, redemption, err := s.resolveDiscount(ctx, id, req, subtotal)
	if err != nil {
		return nil, err
	}

	total := subtotal.Sub(discount).Add(shippingCost)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		UserID:          id.ID,
		Status:          StatusPending,
		Items:           items,
		Subtotal:        subtotal.Round(2),
		ShippingCost:    shippingCost.Round(2),
		DiscountAmount:  discount.Round(2),
		Total:           total.Round(2),
		Currency:        s.currency,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if redemption != nil {
		o.CouponCode = redemption.Code
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}

	// Once the commit starts it runs to completion or rollback regardless
	// of the client going away.
	commitCtx := context.WithoutCancel(ctx)
	if err := s.commit(commitCtx, o, redemption); err != nil {
		return nil, err
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod))))
	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("total", o.Total.StringFixed(2)),
	)

	s.notify(commitCtx, lg, o)
	return o, nil
}

// notify hands the committed order to the notifier in the background, bounded
// by notifyTimeout. Close waits for pending notifications.
func (s *Service) notify(ctx context.Context, lg *zap.Logger, o *Order) {
	s.notifying.Add(1)
	go func() {
		defer s.notifying.Done()

		ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()
		if err := s.notifier.OrderPlaced(ctx, o); err != nil {
			lg.Warn("Order notification failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}()
}

// Close blocks until in-flight order notifications have finished.
func (s *Service) Close() {
	s.notifying.Wait()
}

// resolveDiscount re-validates the coupon against the final subtotal so the
// commit never persists a discount the coupon does not grant.
func (s *Service) resolveDiscount(
	ctx context.Context,
	id *auth.Identity,
	req PlaceRequest,
	subtotal decimal.Decimal,
) (decimal.Decimal, *Redemption, error) {
	asserted := req.DiscountAmount.Round(2)
	if coupon.NormalizeCode(req.CouponCode) == "" {
		if asserted.IsPositive() {
			return decimal.Zero, nil, &ValidationError{Fields: []validate.FieldError{{
				Name:  "discountAmount",
				Error: errors.New("a discount requires a coupon code"),
			}}}
		}
		return decimal.Zero, nil, nil
	}

	d, err := s.coupons.Validate(ctx, req.CouponCode, subtotal, id.Email)
	if err != nil {
		return decimal.Zero, nil, errors.Wrap(err, "validate coupon")
	}
	if asserted.GreaterThan(d.Amount) {
		return decimal.Zero, nil, &ValidationError{Fields: []validate.FieldError{{
			Name:  "discountAmount",
			Error: errors.Errorf("exceeds the coupon discount of %s", d.Amount.StringFixed(2)),
		}}}
	}
	if !d.Amount.IsPositive() {
		return decimal.Zero, nil, nil
	}
	return d.Amount, &Redemption{
		Code:           d.Code,
		UserEmail:      id.Email,
		DiscountAmount: d.Amount,
	}, nil
}

func (s *Service) commit(ctx context.Context, o *Order, redemption *Redemption) error {
	lg := zctx.From(ctx)
	for attempt := 1; ; attempt++ {
		err := s.orders.Create(ctx, o, redemption)
		if err == nil {
			return nil
		}

		var conflict *ConflictError
		if errors.As(err, &conflict) && attempt < maxCommitAttempts {
			s.numberConflicts.Add(ctx, 1)
			lg.Warn("Order number collision, retrying",
				zap.String("order_id", o.ID),
				zap.String("order_number", conflict.Key),
				zap.Int("attempt", attempt),
			)
			o.Number = ""
			continue
		}

		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			s.stockRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "commit")))
			return stockErr
		}
		if conflict != nil {
			return conflict
		}
		return errors.Wrap(err, "create order")
	}
}

// Page is one page of an order listing.
type Page struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// Listing bounds.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// List returns a page of orders: every order for admins, the caller's own
// orders otherwise. Out-of-range page and limit values are clamped.
func (s *Service) List(ctx context.Context, id *auth.Identity, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	limit = min(limit, MaxPageLimit)

	filter := ListFilter{Offset: (page - 1) * limit, Limit: limit}
	if !id.IsAdmin() {
		filter.UserID = id.ID
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}

// Get returns one order visible to the caller.
func (s *Service) Get(ctx context.Context, id *auth.Identity, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !id.IsAdmin() && o.UserID != id.ID {
		return nil, ErrNotFound
	}
	return o, nil
}

// UpdateStatus moves an order along its lifecycle. Admin only.
func (s *Service) UpdateStatus(ctx context.Context, id *auth.Identity, orderID string, to Status) (*Order, error) {
	if !id.IsAdmin() {
		return nil, ErrAdminRequired
	}

	o, err := s.Get(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return nil, conflict
		}
		return nil, errors.Wrap(err, "update order status")
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
		zap.String("admin_id", id.ID),
	)
	o.Status = to
	o.UpdatedAt = s.now().UTC()
	return o, nil
}
