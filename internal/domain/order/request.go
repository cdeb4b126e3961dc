package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"
)

// LineRequest is one requested order line.
type LineRequest struct {
	ProductID string
	VariantID string
	Quantity  int
}

// PlaceRequest holds the checkout input for placing an order.
type PlaceRequest struct {
	Items           []LineRequest
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	Notes           string
	CouponCode      string
	// DiscountAmount is the discount the client displayed. The service
	// recomputes it from the coupon and rejects assertions above that value.
	DiscountAmount decimal.Decimal
}

var (
	errUnknownPaymentMethod = errors.New(`must be one of "cod", "cash", "card"`)
	errNegative             = errors.New("must not be negative")
)

var (
	nonEmpty    = validate.String{MinLength: 1, MinLengthSet: true}
	personName  = validate.String{MinLength: 2, MinLengthSet: true, MaxLength: 100, MaxLengthSet: true}
	email       = validate.String{MinLength: 3, MinLengthSet: true, MaxLength: 254, MaxLengthSet: true, Email: true}
	phone       = validate.String{MinLength: 10, MinLengthSet: true, MaxLength: 20, MaxLengthSet: true}
	street      = validate.String{MinLength: 5, MinLengthSet: true, MaxLength: 500, MaxLengthSet: true}
	place       = validate.String{MinLength: 2, MinLengthSet: true, MaxLength: 100, MaxLengthSet: true}
	postalCode  = validate.String{MinLength: 3, MinLengthSet: true, MaxLength: 12, MaxLengthSet: true}
	notes       = validate.String{MaxLength: 1000, MaxLengthSet: true}
	couponCode  = validate.String{MaxLength: 64, MaxLengthSet: true}
	positiveQty = validate.Int{MinSet: true, Min: 1, MaxSet: true, Max: 1000}
	nonEmptyArr = validate.Array{MinLength: 1, MinLengthSet: true, MaxLength: 100, MaxLengthSet: true}
)

// Validate checks types, required fields and lengths. It returns a
// *ValidationError listing every offending field.
func (r *PlaceRequest) Validate() error {
	var fields []validate.FieldError
	check := func(name string, err error) {
		if err != nil {
			fields = append(fields, validate.FieldError{Name: name, Error: err})
		}
	}

	check("items", nonEmptyArr.ValidateLength(len(r.Items)))
	for i, item := range r.Items {
		check(fmt.Sprintf("items[%d].productId", i), nonEmpty.Validate(item.ProductID))
		check(fmt.Sprintf("items[%d].quantity", i), positiveQty.Validate(int64(item.Quantity)))
	}

	a := r.ShippingAddress
	check("shippingAddress.firstName", personName.Validate(a.FirstName))
	check("shippingAddress.lastName", personName.Validate(a.LastName))
	check("shippingAddress.email", email.Validate(a.Email))
	check("shippingAddress.phone", phone.Validate(a.Phone))
	check("shippingAddress.address", street.Validate(a.Address))
	check("shippingAddress.city", place.Validate(a.City))
	check("shippingAddress.postalCode", postalCode.Validate(a.PostalCode))
	check("shippingAddress.district", place.Validate(a.District))

	if !r.PaymentMethod.valid() {
		check("paymentMethod", errUnknownPaymentMethod)
	}
	check("notes", notes.Validate(r.Notes))
	check("couponCode", couponCode.Validate(r.CouponCode))
	if r.DiscountAmount.IsNegative() {
		check("discountAmount", errNegative)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
