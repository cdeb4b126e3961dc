package notify

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/xenking/atelier/internal/domain/order"
)

// --- Mock implementations ---

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (s *fakeSender) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	s.sent = append(s.sent, msgs...)
	return s.err
}

type notifierFunc func(ctx context.Context, o *order.Order) error

func (f notifierFunc) OrderPlaced(ctx context.Context, o *order.Order) error { return f(ctx, o) }

// --- Helpers ---

func testOrder() *order.Order {
	return &order.Order{
		ID:             "order-1",
		Number:         "ORD-25-03-000007",
		UserID:         "user-1",
		Subtotal:       decimal.NewFromInt(400),
		ShippingCost:   decimal.NewFromInt(50),
		DiscountAmount: decimal.NewFromInt(40),
		Total:          decimal.NewFromInt(410),
		Currency:       "TRY",
		CouponCode:     "SAVE10",
		ShippingAddress: order.Address{
			FirstName: "Elif", LastName: "Demir", Email: "elif@example.com",
			Address: "Moda Caddesi 5", City: "Istanbul", District: "Kadikoy", PostalCode: "34710",
		},
		Items: []order.Item{
			{ProductID: "p1", VariantID: "v1", ProductName: "Tote (Red)", Quantity: 2, LineTotal: decimal.NewFromInt(400)},
		},
		CreatedAt: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

// --- Tests ---

func TestKafka_OrderPlaced(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewKafka(w).OrderPlaced(context.Background(), testOrder()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "user-1", string(msg.Key))
	assert.Equal(t, EventOrderPlaced, string(msg.Headers[0].Value))

	fields := map[string]string{}
	d := jx.DecodeBytes(msg.Value)
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		fields[key] = v
		return err
	}))
	assert.Equal(t, "ORD-25-03-000007", fields["orderNumber"])
	assert.Equal(t, "410.00", fields["total"])
	assert.Equal(t, "SAVE10", fields["couponCode"])
	assert.Equal(t, "2025-03-14T10:00:00Z", fields["createdAt"])
}

func TestKafka_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	err := NewKafka(w).OrderPlaced(context.Background(), testOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORD-25-03-000007")
}

func TestMail_OrderPlaced(t *testing.T) {
	s := &fakeSender{}
	require.NoError(t, NewMail(s, "orders@atelier.test").OrderPlaced(context.Background(), testOrder()))
	require.Len(t, s.sent, 1)
	assert.Equal(t, []string{"Order ORD-25-03-000007 confirmed"}, s.sent[0].GetGenHeader(mail.HeaderSubject))
}

func TestMail_InvalidRecipient(t *testing.T) {
	s := &fakeSender{}
	o := testOrder()
	o.ShippingAddress.Email = "not an address"

	require.Error(t, NewMail(s, "orders@atelier.test").OrderPlaced(context.Background(), o))
	assert.Empty(t, s.sent)
}

func TestRenderConfirmation(t *testing.T) {
	body := renderConfirmation(testOrder())
	assert.Contains(t, body, "Hello Elif,")
	assert.Contains(t, body, "2 x Tote (Red)  400.00 TRY")
	assert.Contains(t, body, "Discount (SAVE10): -40.00 TRY")
	assert.Contains(t, body, "Total: 410.00 TRY")
}

func TestMulti(t *testing.T) {
	var calls []string
	m := Multi{
		notifierFunc(func(context.Context, *order.Order) error {
			calls = append(calls, "a")
			return errors.New("a failed")
		}),
		notifierFunc(func(context.Context, *order.Order) error {
			calls = append(calls, "b")
			return nil
		}),
	}

	err := m.OrderPlaced(context.Background(), testOrder())
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Contains(t, err.Error(), "a failed")
}
