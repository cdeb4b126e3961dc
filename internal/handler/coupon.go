package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier/internal/domain/auth"
	"github.com/xenking/atelier/internal/domain/coupon"
)

var errNegativeSubtotal = errors.New("must not be negative")

// validateCoupon previews a coupon against a subtotal for the caller. Business
// rejections are reported as {"valid":false,"reason":...} with 200. Usage
// counters are never touched.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		code     string
		subtotal decimal.Decimal
		fields   fieldCollector
	)
	if err := decodeObject(data, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := d.Str()
			code = s
			return err
		case "subtotal":
			v, ok, err := decodeDecimal(d)
			if !ok && err == nil {
				fields.add("subtotal", errNotNumber)
			}
			subtotal = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if subtotal.IsNegative() {
		fields.add("subtotal", errNegativeSubtotal)
	}
	if err := fields.err(); err != nil {
		writeDomainError(w, r, err)
		return
	}

	discount, err := h.coupons.Validate(r.Context(), code, subtotal, id.Email)
	switch {
	case coupon.IsRejection(err):
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("valid", func(e *jx.Encoder) { e.Bool(false) })
				strField(e, "reason", rejectionReason(err))
			})
		})
	case err != nil:
		writeDomainError(w, r, errors.Wrap(err, "validate coupon"))
	default:
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDiscount(e, discount, subtotal) })
	}
}
