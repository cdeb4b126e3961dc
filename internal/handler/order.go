package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/atelier/internal/domain/auth"
	"github.com/xenking/atelier/internal/domain/order"
)

var (
	errUnknownStatus = errors.New(`must be one of "pending", "shipped", "delivered", "cancelled"`)
	errNotPositive   = errors.New("must be a positive integer")
)

// placeOrder decodes the checkout request and commits it. Responds 201 with
// the stored order.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := decodePlaceRequest(data)
	if err != nil {
		var body *bodyError
		if errors.As(err, &body) {
			writeError(w, http.StatusBadRequest, body.Error())
			return
		}
		writeDomainError(w, r, err)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// listOrders serves ?page=&limit=. Admins see every order.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var fields fieldCollector
	page := queryInt(r, "page", 1, &fields)
	limit := queryInt(r, "limit", order.DefaultPageLimit, &fields)
	if limit > order.MaxPageLimit {
		fields.add("limit", errors.Errorf("must not exceed %d", order.MaxPageLimit))
	}
	if err := fields.err(); err != nil {
		writeDomainError(w, r, err)
		return
	}

	p, err := h.orders.List(r.Context(), id, page, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range p.Orders {
						encodeOrder(e, &p.Orders[i])
					}
				})
			})
			e.Field("total", func(e *jx.Encoder) { e.Int(p.Total) })
			e.Field("page", func(e *jx.Encoder) { e.Int(p.Page) })
			e.Field("limit", func(e *jx.Encoder) { e.Int(p.Limit) })
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	o, err := h.orders.Get(r.Context(), id, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// updateOrderStatus serves PATCH {status}. Admin only.
func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var raw string
	if err := decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		raw = s
		return err
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	to, ok := order.ParseStatus(raw)
	if !ok {
		var fields fieldCollector
		fields.add("status", errUnknownStatus)
		writeDomainError(w, r, fields.err())
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, r.PathValue("id"), to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// queryInt parses a positive integer query parameter, returning def when it
// is absent.
func queryInt(r *http.Request, name string, def int, fields *fieldCollector) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		fields.add(name, errNotPositive)
		return def
	}
	return v
}
