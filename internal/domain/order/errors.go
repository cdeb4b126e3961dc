package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
)

var (
	// ErrEmailNotVerified rejects checkouts from users who have not confirmed
	// their email address.
	ErrEmailNotVerified = errors.New("email address is not verified: verify your email before placing an order")
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrAdminRequired is returned for back-office operations invoked by a
	// non-admin identity.
	ErrAdminRequired = errors.New("admin role required")
)

// ValidationError reports malformed input with per-field detail. It is
// produced before any datastore access.
type ValidationError struct {
	Fields []validate.FieldError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid request: ")
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Error.Error())
	}
	return b.String()
}

// ProductNotFoundError indicates a requested product does not exist or is
// not for sale.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// VariantNotFoundError indicates a line references a variant that does not
// belong to its product.
type VariantNotFoundError struct {
	ProductID string
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %s of product %s not found", e.VariantID, e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds what is
// available, either at pre-check or at the commit-time conditional write.
type InsufficientStockError struct {
	ProductID string
	VariantID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	if e.Available <= 0 {
		return fmt.Sprintf("%s is out of stock", e.Name)
	}
	return fmt.Sprintf("only %d left of %s, requested %d", e.Available, e.Name, e.Requested)
}

// ConflictError indicates a lost race on a uniqueness constraint or a
// conditional update. Order-number conflicts are retried by the Service.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s", e.Resource, e.Key)
}

// InvalidTransitionError indicates a status change not allowed by the order
// lifecycle.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}
