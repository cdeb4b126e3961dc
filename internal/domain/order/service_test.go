package order

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/atelier/internal/domain/auth"
	"github.com/xenking/atelier/internal/domain/coupon"
	"github.com/xenking/atelier/internal/domain/product"
	"github.com/xenking/atelier/internal/domain/settings"
)

// --- Mock implementations ---

// memStore is an in-memory catalog + order store. Create holds the lock for
// the whole commit and applies nothing unless every step succeeds.
type memStore struct {
	mu        sync.Mutex
	products  map[string]*product.Product
	orders    []Order
	coupons   map[string]*coupon.Coupon
	usages    []coupon.Usage
	getCalls  int
	conflicts int // number of upcoming Create calls that fail with *ConflictError
	createErr error
}

func newMemStore(products ...product.Product) *memStore {
	s := &memStore{
		products: make(map[string]*product.Product),
		coupons:  make(map[string]*coupon.Coupon),
	}
	for i := range products {
		p := products[i]
		s.products[p.ID] = &p
	}
	return s
}

func (s *memStore) Create(_ context.Context, o *Order, r *Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}

	prefix := NumberPrefix(o.CreatedAt)
	last := ""
	for _, existing := range s.orders {
		if strings.HasPrefix(existing.Number, prefix) && existing.Number > last {
			last = existing.Number
		}
	}
	number, err := NextNumber(prefix, last)
	if err != nil {
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return &ConflictError{Resource: "order_number", Key: number}
	}

	// Stage decrements on copies; apply only when all succeed.
	staged := make(map[string]*product.Product)
	get := func(id string) *product.Product {
		if p, ok := staged[id]; ok {
			return p
		}
		cp := *s.products[id]
		cp.Variants = append([]product.Variant(nil), s.products[id].Variants...)
		staged[id] = &cp
		return &cp
	}
	for _, item := range o.Items {
		p := get(item.ProductID)
		if item.VariantID != "" {
			v := p.Variant(item.VariantID)
			if v.Stock < item.Quantity {
				return &InsufficientStockError{
					ProductID: p.ID, VariantID: v.ID, Name: p.Name,
					Available: v.Stock, Requested: item.Quantity,
				}
			}
			v.Stock -= item.Quantity
			p.Stock = max(p.Stock-item.Quantity, 0)
			continue
		}
		if p.Stock < item.Quantity {
			return &InsufficientStockError{
				ProductID: p.ID, Name: p.Name,
				Available: p.Stock, Requested: item.Quantity,
			}
		}
		p.Stock -= item.Quantity
	}

	o.Number = number
	for id, p := range staged {
		s.products[id] = p
	}
	if r != nil {
		if c, ok := s.coupons[coupon.NormalizeCode(r.Code)]; ok {
			c.TimesUsed++
			s.usages = append(s.usages, coupon.Usage{
				CouponID:       c.ID,
				UserID:         o.UserID,
				UserEmail:      r.UserEmail,
				OrderID:        o.ID,
				DiscountAmount: r.DiscountAmount,
			})
		}
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	s.orders = append(s.orders, cp)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			cp := s.orders[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) List(_ context.Context, f ListFilter) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Order
	for _, o := range s.orders {
		if f.UserID == "" || o.UserID == f.UserID {
			matched = append(matched, o)
		}
	}
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return matched[f.Offset:end], total, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			if s.orders[i].Status != from {
				return &ConflictError{Resource: "order", Key: id}
			}
			s.orders[i].Status = to
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *memStore) variantStock(productID, variantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Variant(variantID).Stock
}

// memProductRepo serves the catalog side of memStore.
type memProductRepo struct{ *memStore }

func (r memProductRepo) List(context.Context, product.ListFilter) ([]product.Product, error) {
	return nil, nil
}

func (r memProductRepo) GetBySlug(context.Context, string) (*product.Product, error) {
	return nil, product.ErrNotFound
}

func (r memProductRepo) ListCategories(context.Context) ([]product.Category, error) {
	return nil, nil
}

func (r memProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++

	var out []product.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			cp := *p
			cp.Variants = append([]product.Variant(nil), p.Variants...)
			out = append(out, cp)
		}
	}
	return out, nil
}

type mockCouponValidator struct {
	discount *coupon.Discount
	err      error
	calls    int
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string, _ decimal.Decimal, _ string) (*coupon.Discount, error) {
	m.calls++
	return m.discount, m.err
}

type fixedShipping struct {
	s   settings.Shipping
	err error
}

func (f fixedShipping) Shipping(context.Context) (settings.Shipping, error) {
	return f.s, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, o *Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o.Number)
	return n.err
}

// --- Helpers ---

var defaultShipping = fixedShipping{s: settings.Shipping{
	FreeThreshold: decimal.NewFromInt(500),
	BaseRate:      decimal.NewFromInt(50),
}}

func newTestProduct(id string, price string, stock int, variants ...product.Variant) product.Product {
	return product.Product{
		ID:       id,
		Slug:     "slug-" + id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Currency: "TRY",
		Stock:    stock,
		Status:   product.StatusActive,
		Variants: variants,
	}
}

func verifiedUser(id string) *auth.Identity {
	return &auth.Identity{ID: id, Email: id + "@example.com", Role: auth.RoleCustomer, EmailVerified: true}
}

func validRequest(items ...LineRequest) PlaceRequest {
	return PlaceRequest{
		Items: items,
		ShippingAddress: Address{
			FirstName:  "Ayse",
			LastName:   "Yilmaz",
			Email:      "ayse@example.com",
			Phone:      "05321234567",
			Address:    "Bagdat Caddesi 120",
			City:       "Istanbul",
			PostalCode: "34728",
			District:   "Kadikoy",
		},
		PaymentMethod: PaymentCashOnDelivery,
	}
}

func newTestService(t *testing.T, store *memStore, cv coupon.Validator, opts ServiceOptions) *Service {
	t.Helper()
	if cv == nil {
		cv = &mockCouponValidator{}
	}
	svc, err := NewService(memProductRepo{store}, cv, store, defaultShipping, opts)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) }
	return svc
}

// --- Tests ---

func TestPlaceOrder_Validation(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "100", 5))
	svc := newTestService(t, store, nil, ServiceOptions{})

	req := validRequest()
	req.ShippingAddress.City = ""
	req.PaymentMethod = "bitcoin"

	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	names := make([]string, len(vErr.Fields))
	for i, f := range vErr.Fields {
		names[i] = f.Name
	}
	assert.Contains(t, names, "items")
	assert.Contains(t, names, "shippingAddress.city")
	assert.Contains(t, names, "paymentMethod")
	assert.Zero(t, store.getCalls, "validation must not touch the store")
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "100", 5))
	svc := newTestService(t, store, nil, ServiceOptions{})

	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 0}))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "items[0].quantity", vErr.Fields[0].Name)
}

func TestPlaceOrder_UnverifiedEmail(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "100", 5))
	svc := newTestService(t, store, nil, ServiceOptions{})

	user := verifiedUser("u1")
	user.EmailVerified = false

	_, err := svc.PlaceOrder(context.Background(), user, validRequest(LineRequest{ProductID: "p1", Quantity: 1}))

	require.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Equal(t, 5, store.stock("p1"))
	assert.Zero(t, store.getCalls)
	assert.Empty(t, store.orders)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	inactive := newTestProduct("p2", "10", 5)
	inactive.Status = product.StatusInactive
	svc := newTestService(t, newMemStore(newTestProduct("p1", "10", 5), inactive), nil, ServiceOptions{})

	for _, id := range []string{"missing", "p2"} {
		_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
			validRequest(LineRequest{ProductID: id, Quantity: 1}))

		var pnfErr *ProductNotFoundError
		require.ErrorAs(t, err, &pnfErr)
		assert.Equal(t, id, pnfErr.ProductID)
	}
}

func TestPlaceOrder_VariantNotFound(t *testing.T) {
	svc := newTestService(t, newMemStore(newTestProduct("p1", "10", 5)), nil, ServiceOptions{})

	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", VariantID: "v9", Quantity: 1}))

	var vnfErr *VariantNotFoundError
	require.ErrorAs(t, err, &vnfErr)
	assert.Equal(t, "v9", vnfErr.VariantID)
}

func TestPlaceOrder_PrecheckInsufficientStock(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 2))
	svc := newTestService(t, store, nil, ServiceOptions{})

	// Two lines for the same product add up beyond stock.
	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), validRequest(
		LineRequest{ProductID: "p1", Quantity: 1},
		LineRequest{ProductID: "p1", Quantity: 2},
	))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, "only 2 left of Product p1, requested 3", stockErr.Error())
	assert.Equal(t, 2, store.stock("p1"))
}

func TestPlaceOrder_PricingAndShipping(t *testing.T) {
	tests := []struct {
		name         string
		price        string
		qty          int
		wantSubtotal string
		wantShipping string
		wantTotal    string
	}{
		{name: "exactly at free threshold", price: "250", qty: 2, wantSubtotal: "500", wantShipping: "0", wantTotal: "500"},
		{name: "one unit below threshold", price: "499", qty: 1, wantSubtotal: "499", wantShipping: "50", wantTotal: "549"},
		{name: "above threshold", price: "120.50", qty: 5, wantSubtotal: "602.5", wantShipping: "0", wantTotal: "602.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(newTestProduct("p1", tt.price, 10))
			svc := newTestService(t, store, nil, ServiceOptions{})

			o, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
				validRequest(LineRequest{ProductID: "p1", Quantity: tt.qty}))

			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.wantSubtotal).Equal(o.Subtotal), "subtotal %s", o.Subtotal)
			assert.True(t, decimal.RequireFromString(tt.wantShipping).Equal(o.ShippingCost), "shipping %s", o.ShippingCost)
			assert.True(t, decimal.RequireFromString(tt.wantTotal).Equal(o.Total), "total %s", o.Total)
			assert.Equal(t, 10-tt.qty, store.stock("p1"))
		})
	}
}

func TestPlaceOrder_ShippingSettingsFallback(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 10))
	svc, err := NewService(memProductRepo{store}, &mockCouponValidator{}, store,
		fixedShipping{err: errors.New("settings down")}, ServiceOptions{})
	require.NoError(t, err)

	o, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))

	require.NoError(t, err)
	assert.True(t, settings.DefaultShippingBaseRate.Equal(o.ShippingCost))
}

func TestPlaceOrder_VariantPriceOverride(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "1000", 10,
		product.Variant{ID: "v1", ProductID: "p1", Name: "Gold", Stock: 4,
			PriceOverride: decimal.NewNullDecimal(decimal.NewFromInt(500))},
		product.Variant{ID: "v2", ProductID: "p1", Name: "Silver", Stock: 6},
	))
	svc := newTestService(t, store, nil, ServiceOptions{})

	o, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), validRequest(
		LineRequest{ProductID: "p1", VariantID: "v1", Quantity: 2},
	))

	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.True(t, decimal.NewFromInt(500).Equal(o.Items[0].UnitPrice))
	assert.True(t, decimal.NewFromInt(1000).Equal(o.Items[0].LineTotal))
	assert.Equal(t, 2, store.variantStock("p1", "v1"))
	assert.Equal(t, 8, store.stock("p1"))

	// Without override the parent price applies.
	o, err = svc.PlaceOrder(context.Background(), verifiedUser("u1"), validRequest(
		LineRequest{ProductID: "p1", VariantID: "v2", Quantity: 1},
	))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(o.Items[0].UnitPrice))
}

func TestPlaceOrder_PriceSnapshot(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "100", 10))
	svc := newTestService(t, store, nil, ServiceOptions{})

	placed, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	store.mu.Lock()
	store.products["p1"].Price = decimal.NewFromInt(999)
	store.mu.Unlock()

	got, err := svc.Get(context.Background(), verifiedUser("u1"), placed.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Items[0].UnitPrice))
	assert.True(t, placed.Total.Equal(got.Total))
}

func TestPlaceOrder_OrderNumbers(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 100))
	store.orders = append(store.orders, Order{ID: "old", Number: "ORD-25-02-000041"})
	svc := newTestService(t, store, nil, ServiceOptions{})

	first, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	second, err := svc.PlaceOrder(context.Background(), verifiedUser("u2"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	assert.Equal(t, "ORD-25-03-000001", first.Number)
	assert.Equal(t, "ORD-25-03-000002", second.Number)
}

func TestPlaceOrder_RetriesOrderNumberConflict(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 5))
	store.conflicts = maxCommitAttempts - 1
	svc := newTestService(t, store, nil, ServiceOptions{})

	o, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))

	require.NoError(t, err)
	assert.Equal(t, "ORD-25-03-000001", o.Number)
	assert.Equal(t, 4, store.stock("p1"))
}

func TestPlaceOrder_ConflictRetriesExhausted(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 5))
	store.conflicts = maxCommitAttempts
	svc := newTestService(t, store, nil, ServiceOptions{})

	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 5, store.stock("p1"))
	assert.Empty(t, store.orders)
}

func TestPlaceOrder_NoOversellUnderConcurrency(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "100", 1))
	svc := newTestService(t, store, nil, ServiceOptions{})

	const buyers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		successes = make(chan *Order, buyers)
		failures  = make(chan error, buyers)
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			o, err := svc.PlaceOrder(context.Background(), verifiedUser(string(rune('a'+i))),
				validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
			if err != nil {
				failures <- err
				return
			}
			successes <- o
		}()
	}
	close(start)
	wg.Wait()
	close(successes)
	close(failures)

	assert.Len(t, successes, 1)
	for err := range failures {
		var stockErr *InsufficientStockError
		assert.ErrorAs(t, err, &stockErr)
	}
	assert.Equal(t, 0, store.stock("p1"))
}

func TestPlaceOrder_AtomicMultiItem(t *testing.T) {
	store := newMemStore(
		newTestProduct("p1", "10", 5),
		newTestProduct("p2", "20", 1),
	)
	svc := newTestService(t, store, nil, ServiceOptions{})
	// p2 sells out between the pre-check and the commit.
	svc.orders = &racingStore{memStore: store, drain: "p2"}

	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u2"), validRequest(
		LineRequest{ProductID: "p1", Quantity: 2},
		LineRequest{ProductID: "p2", Quantity: 1},
	))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p2", stockErr.ProductID)
	assert.Equal(t, "Product p2 is out of stock", stockErr.Error())
	assert.Equal(t, 5, store.stock("p1"), "first line must be rolled back")
	assert.Equal(t, 0, store.stock("p2"))
	assert.Empty(t, store.orders)
}

// racingStore empties one product's stock right before committing,
// simulating a concurrent checkout landing between pre-check and commit.
type racingStore struct {
	*memStore
	drain string
}

func (r *racingStore) Create(ctx context.Context, o *Order, red *Redemption) error {
	r.mu.Lock()
	r.products[r.drain].Stock = 0
	r.mu.Unlock()
	return r.memStore.Create(ctx, o, red)
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "200", 10))
	store.coupons["SAVE20"] = &coupon.Coupon{ID: "c1", Code: "SAVE20", Active: true}
	cv := &mockCouponValidator{discount: &coupon.Discount{
		CouponID: "c1",
		Code:     "SAVE20",
		Amount:   decimal.RequireFromString("80.00"),
	}}
	svc := newTestService(t, store, cv, ServiceOptions{})

	req := validRequest(LineRequest{ProductID: "p1", Quantity: 2}) // 400
	req.CouponCode = "save20"
	req.DiscountAmount = decimal.RequireFromString("80")

	o, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), req)

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("80").Equal(o.DiscountAmount))
	// 400 - 80 + 50 shipping (400 < 500)
	assert.True(t, decimal.RequireFromString("370").Equal(o.Total), "total %s", o.Total)
	assert.Equal(t, "SAVE20", o.CouponCode)
	assert.Equal(t, 1, store.coupons["SAVE20"].TimesUsed)
	require.Len(t, store.usages, 1)
	assert.Equal(t, "u1@example.com", store.usages[0].UserEmail)
	assert.Equal(t, o.ID, store.usages[0].OrderID)
}

func TestPlaceOrder_CouponUsageIsPerOrder(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "200", 10))
	store.coupons["SAVE20"] = &coupon.Coupon{ID: "c1", Code: "SAVE20", Active: true}
	cv := &mockCouponValidator{discount: &coupon.Discount{CouponID: "c1", Code: "SAVE20", Amount: decimal.NewFromInt(20)}}
	svc := newTestService(t, store, cv, ServiceOptions{})

	for range 2 {
		req := validRequest(LineRequest{ProductID: "p1", Quantity: 1})
		req.CouponCode = "SAVE20"
		_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), req)
		require.NoError(t, err)
	}

	// A failed checkout must not count.
	req := validRequest(LineRequest{ProductID: "p1", Quantity: 50})
	req.CouponCode = "SAVE20"
	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), req)
	require.Error(t, err)

	assert.Equal(t, 2, store.coupons["SAVE20"].TimesUsed)
	assert.Len(t, store.usages, 2)
}

func TestPlaceOrder_DiscountAssertions(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "200", 10))
	cv := &mockCouponValidator{discount: &coupon.Discount{Code: "SAVE20", Amount: decimal.NewFromInt(20)}}
	svc := newTestService(t, store, cv, ServiceOptions{})

	t.Run("inflated discount is rejected", func(t *testing.T) {
		req := validRequest(LineRequest{ProductID: "p1", Quantity: 1})
		req.CouponCode = "SAVE20"
		req.DiscountAmount = decimal.NewFromInt(150)

		_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), req)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "discountAmount", vErr.Fields[0].Name)
	})

	t.Run("discount without coupon is rejected", func(t *testing.T) {
		req := validRequest(LineRequest{ProductID: "p1", Quantity: 1})
		req.DiscountAmount = decimal.NewFromInt(10)

		_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), req)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("rejected coupon fails the order", func(t *testing.T) {
		cv.err = coupon.ErrCouponExpired
		defer func() { cv.err = nil }()

		req := validRequest(LineRequest{ProductID: "p1", Quantity: 1})
		req.CouponCode = "OLD"
		_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"), req)
		require.ErrorIs(t, err, coupon.ErrCouponExpired)
	})

	assert.Equal(t, 10, store.stock("p1"))
}

func TestPlaceOrder_NotifierFailureDoesNotFailOrder(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 5))
	n := &recordingNotifier{err: errors.New("smtp down")}
	svc := newTestService(t, store, nil, ServiceOptions{Notifier: n})

	o, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))

	require.NoError(t, err)
	svc.Close()
	assert.Equal(t, []string{o.Number}, n.orders)
}

// blockingNotifier holds every notification until release is closed or the
// notification context ends.
type blockingNotifier struct {
	release chan struct{}
	done    chan error
}

func (n *blockingNotifier) OrderPlaced(ctx context.Context, _ *Order) error {
	var err error
	select {
	case <-n.release:
	case <-ctx.Done():
		err = ctx.Err()
	}
	n.done <- err
	return err
}

func TestPlaceOrder_SlowNotifierDoesNotDelayResponse(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 5))
	n := &blockingNotifier{release: make(chan struct{}), done: make(chan error, 1)}
	svc := newTestService(t, store, nil, ServiceOptions{Notifier: n, NotifyTimeout: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	o, err := svc.PlaceOrder(ctx, verifiedUser("u1"), validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	assert.NotEmpty(t, o.Number)
	assert.Less(t, time.Since(start), time.Second)

	// The request deadline does not cancel the notification.
	<-ctx.Done()
	select {
	case err := <-n.done:
		t.Fatalf("notification ended with the request: %v", err)
	default:
	}

	close(n.release)
	svc.Close()
	assert.NoError(t, <-n.done)
}

func TestPlaceOrder_NotifyTimeout(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 5))
	n := &blockingNotifier{release: make(chan struct{}), done: make(chan error, 1)}
	svc := newTestService(t, store, nil, ServiceOptions{Notifier: n, NotifyTimeout: 50 * time.Millisecond})

	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	svc.Close()
	assert.ErrorIs(t, <-n.done, context.DeadlineExceeded)
}

func TestPlaceOrder_CreateError(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 5))
	store.createErr = errors.New("db write failed")
	svc := newTestService(t, store, nil, ServiceOptions{})

	_, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestList(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 100))
	svc := newTestService(t, store, nil, ServiceOptions{})
	for _, user := range []string{"u1", "u1", "u2"} {
		_, err := svc.PlaceOrder(context.Background(), verifiedUser(user),
			validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
		require.NoError(t, err)
	}

	own, err := svc.List(context.Background(), verifiedUser("u1"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, own.Total)
	assert.Equal(t, 1, own.Page)
	assert.Equal(t, DefaultPageLimit, own.Limit)

	admin := &auth.Identity{ID: "admin", Role: auth.RoleAdmin}
	all, err := svc.List(context.Background(), admin, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Len(t, all.Orders, 1)

	clamped, err := svc.List(context.Background(), admin, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageLimit, clamped.Limit)
}

func TestGet_HidesOtherUsersOrders(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 100))
	svc := newTestService(t, store, nil, ServiceOptions{})
	o, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), verifiedUser("u2"), o.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(context.Background(), &auth.Identity{ID: "admin", Role: auth.RoleAdmin}, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
}

func TestUpdateStatus(t *testing.T) {
	store := newMemStore(newTestProduct("p1", "10", 100))
	svc := newTestService(t, store, nil, ServiceOptions{})
	admin := &auth.Identity{ID: "admin", Role: auth.RoleAdmin}

	o, err := svc.PlaceOrder(context.Background(), verifiedUser("u1"),
		validRequest(LineRequest{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), verifiedUser("u1"), o.ID, StatusShipped)
	require.ErrorIs(t, err, ErrAdminRequired)

	_, err = svc.UpdateStatus(context.Background(), admin, o.ID, StatusDelivered)
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)

	updated, err := svc.UpdateStatus(context.Background(), admin, o.ID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status)

	updated, err = svc.UpdateStatus(context.Background(), admin, o.ID, StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, updated.Status)
}

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusShipped))
	assert.True(t, StatusPending.CanTransition(StatusCancelled))
	assert.True(t, StatusShipped.CanTransition(StatusDelivered))
	assert.False(t, StatusDelivered.CanTransition(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransition(StatusPending))
	assert.False(t, StatusPending.CanTransition(StatusDelivered))
}
