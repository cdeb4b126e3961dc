package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/ogen-go/ogen/validate"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/cart"
	"github.com/xenking/atelier/internal/domain/coupon"
	"github.com/xenking/atelier/internal/domain/order"
	"github.com/xenking/atelier/internal/domain/product"
)

// writeJSON writes the body produced by encode with the given status.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorFields(w, status, msg, nil)
}

// writeErrorFields writes {"code","error","fields"?}.
func writeErrorFields(w http.ResponseWriter, status int, msg string, fields []validate.FieldError) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
			if len(fields) == 0 {
				return
			}
			e.Field("fields", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, f := range fields {
						e.Obj(func(e *jx.Encoder) {
							e.Field("name", func(e *jx.Encoder) { e.Str(f.Name) })
							e.Field("error", func(e *jx.Encoder) { e.Str(f.Error.Error()) })
						})
					}
				})
			})
		})
	})
}

// writeDomainError maps service errors to HTTP responses. Anything it does
// not recognise is logged and reported as 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *order.ValidationError
		stock      *order.InsufficientStockError
		missing    *order.ProductNotFoundError
		variant    *order.VariantNotFoundError
		conflict   *order.ConflictError
		transition *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &validation):
		writeErrorFields(w, http.StatusBadRequest, "invalid request", validation.Fields)
	case errors.As(err, &stock):
		writeError(w, http.StatusBadRequest, stock.Error())
	case coupon.IsRejection(err):
		writeError(w, http.StatusBadRequest, rejectionReason(err))
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, cart.ErrInvalidQuantity.Error())
	case errors.Is(err, order.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, order.ErrEmailNotVerified.Error())
	case errors.Is(err, order.ErrAdminRequired):
		writeError(w, http.StatusForbidden, order.ErrAdminRequired.Error())
	case errors.As(err, &missing):
		writeError(w, http.StatusNotFound, missing.Error())
	case errors.As(err, &variant):
		writeError(w, http.StatusNotFound, variant.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, order.ErrNotFound.Error())
	case errors.Is(err, product.ErrNotFound), errors.Is(err, cart.ErrProductNotFound):
		writeError(w, http.StatusNotFound, product.ErrNotFound.Error())
	case errors.Is(err, cart.ErrVariantNotFound):
		writeError(w, http.StatusNotFound, cart.ErrVariantNotFound.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "the request conflicted with a concurrent update, retry")
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, transition.Error())
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// rejectionReason returns the message of the coupon rejection sentinel in
// err's chain, without the wrapping context.
func rejectionReason(err error) string {
	for _, sentinel := range []error{
		coupon.ErrInvalidCoupon,
		coupon.ErrCouponExpired,
		coupon.ErrCouponUsageLimitReached,
		coupon.ErrCouponAlreadyUsed,
		coupon.ErrMinOrderNotMet,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
