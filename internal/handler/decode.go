package handler

import (
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier/internal/domain/cart"
	"github.com/xenking/atelier/internal/domain/order"
)

const maxBodySize = 1 << 20

var (
	errNotInteger = errors.New("must be an integer")
	errNotNumber  = errors.New("must be a number")
	maxInt32      = decimal.NewFromInt(math.MaxInt32)
)

// bodyError reports a request body that is not well-formed JSON of the
// expected shape.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return "invalid request body: " + e.err.Error() }
func (e *bodyError) Unwrap() error { return e.err }

// readBody reads the request body, bounded by maxBodySize.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, &bodyError{err: err}
	}
	return data, nil
}

// decodeObject decodes a JSON object from data, calling field for each key.
// Syntax errors are wrapped in *bodyError.
func decodeObject(data []byte, field func(d *jx.Decoder, key string) error) error {
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return &bodyError{err: err}
	}
	return nil
}

// optStr decodes a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeInteger decodes a JSON number that must be a whole int32. ok is false
// for other values, which are consumed.
func decodeInteger(d *jx.Decoder) (v int, ok bool, err error) {
	if d.Next() != jx.Number {
		return 0, false, d.Skip()
	}
	n, err := d.Num()
	if err != nil {
		return 0, false, err
	}
	dec, err := decimal.NewFromString(n.String())
	if err != nil || !dec.IsInteger() || dec.Abs().GreaterThan(maxInt32) {
		return 0, false, nil
	}
	return int(dec.IntPart()), true, nil
}

// decodeDecimal decodes a monetary amount given as a JSON number or numeric
// string. ok is false when the value is neither.
func decodeDecimal(d *jx.Decoder) (v decimal.Decimal, ok bool, err error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, false, err
		}
		raw = n.String()
	case jx.String:
		if raw, err = d.Str(); err != nil {
			return decimal.Zero, false, err
		}
	case jx.Null:
		return decimal.Zero, true, d.Null()
	default:
		return decimal.Zero, false, d.Skip()
	}
	v, err = decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, nil
	}
	return v, true, nil
}

// fieldCollector gathers type errors found while decoding.
type fieldCollector []validate.FieldError

func (c *fieldCollector) add(name string, err error) {
	*c = append(*c, validate.FieldError{Name: name, Error: err})
}

func (c fieldCollector) err() error {
	if len(c) == 0 {
		return nil
	}
	return &order.ValidationError{Fields: c}
}

func decodePlaceRequest(data []byte) (order.PlaceRequest, error) {
	var (
		req    order.PlaceRequest
		fields fieldCollector
	)
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d, fmt.Sprintf("items[%d]", len(req.Items)), &fields)
				req.Items = append(req.Items, line)
				return err
			})
		case "shippingAddress":
			return decodeAddress(d, &req.ShippingAddress)
		case "paymentMethod":
			s, err := d.Str()
			req.PaymentMethod = order.PaymentMethod(s)
			return err
		case "notes":
			s, err := optStr(d)
			req.Notes = s
			return err
		case "couponCode":
			s, err := optStr(d)
			req.CouponCode = s
			return err
		case "discountAmount":
			v, ok, err := decodeDecimal(d)
			if !ok && err == nil {
				fields.add("discountAmount", errNotNumber)
			}
			req.DiscountAmount = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, err
	}
	return req, fields.err()
}

func decodeLine(d *jx.Decoder, prefix string, fields *fieldCollector) (order.LineRequest, error) {
	var line order.LineRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			s, err := d.Str()
			line.ProductID = s
			return err
		case "variantId":
			s, err := optStr(d)
			line.VariantID = s
			return err
		case "quantity":
			q, ok, err := decodeInteger(d)
			if !ok && err == nil {
				fields.add(prefix+".quantity", errNotInteger)
			}
			line.Quantity = q
			return err
		default:
			return d.Skip()
		}
	})
	return line, err
}

func decodeAddress(d *jx.Decoder, a *order.Address) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "firstName":
			dst = &a.FirstName
		case "lastName":
			dst = &a.LastName
		case "email":
			dst = &a.Email
		case "phone":
			dst = &a.Phone
		case "address":
			dst = &a.Address
		case "city":
			dst = &a.City
		case "postalCode":
			dst = &a.PostalCode
		case "district":
			dst = &a.District
		default:
			return d.Skip()
		}
		s, err := optStr(d)
		*dst = s
		return err
	})
}

// decodeCartItem decodes {productId, variantId?, quantity}.
func decodeCartItem(d *jx.Decoder, prefix string, fields *fieldCollector) (cart.Item, error) {
	line, err := decodeLine(d, prefix, fields)
	return cart.Item{ProductID: line.ProductID, VariantID: line.VariantID, Quantity: line.Quantity}, err
}
