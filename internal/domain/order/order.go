package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. Orders are created pending;
// every later transition is an administrative action.
type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered, StatusCancelled},
}

// ParseStatus converts s to a Status, reporting whether it is known.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// CanTransition reports whether an order in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cod"
	PaymentCash           PaymentMethod = "cash"
	PaymentCard           PaymentMethod = "card"
)

func (m PaymentMethod) valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentCash, PaymentCard:
		return true
	default:
		return false
	}
}

// Address is a shipping address snapshot stored with the order.
type Address struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	District   string `json:"district"`
}

// Order represents a placed customer order with pricing and discount details.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Status          Status
	Items           []Item
	Subtotal        decimal.Decimal
	ShippingCost    decimal.Decimal
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	Currency        string
	PaymentMethod   PaymentMethod
	ShippingAddress Address
	Notes           string
	CouponCode      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is a single order line. UnitPrice is snapshotted at order time and
// never follows later catalog price changes.
type Item struct {
	ID          string
	OrderID     string
	ProductID   string
	VariantID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Redemption is the coupon bookkeeping to perform inside the order commit.
type Redemption struct {
	Code           string
	UserEmail      string
	DiscountAmount decimal.Decimal
}

// ListFilter selects a page of orders. An empty UserID lists all orders.
type ListFilter struct {
	UserID string
	Offset int
	Limit  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create atomically assigns o.Number, inserts the order with its items,
	// records the coupon redemption (if any) and decrements stock for every
	// line. Nothing is persisted when any step fails. It returns
	// *InsufficientStockError when a conditional stock decrement matches no
	// row, *ConflictError when the generated order number collides, and a
	// coupon rejection when the redemption would exceed the coupon's limits.
	Create(ctx context.Context, o *Order, redemption *Redemption) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	// UpdateStatus moves the order from one status to another, failing with
	// *ConflictError when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}

// Notifier is told about orders after they have been committed.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order) error
}

type nopNotifier struct{}

func (nopNotifier) OrderPlaced(context.Context, *Order) error { return nil }
