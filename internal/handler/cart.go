package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/atelier/internal/domain/auth"
	"github.com/xenking/atelier/internal/domain/cart"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	c, err := h.carts.Get(r.Context(), id.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

// setCartItem upserts one line. Quantity 0 removes it.
func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var fields fieldCollector
	d := jx.DecodeBytes(data)
	item, err := decodeCartItem(d, "item", &fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, (&bodyError{err: err}).Error())
		return
	}
	if err := fields.err(); err != nil {
		writeDomainError(w, r, err)
		return
	}

	c, err := h.carts.SetItem(r.Context(), id.ID, item)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	c, err := h.carts.RemoveItem(r.Context(), id.ID, r.PathValue("productId"), r.URL.Query().Get("variantId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

// syncCart merges {items:[...]} from a client-side cart.
func (h *Handler) syncCart(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		items []cart.Item
		// Sync skips malformed lines instead of rejecting the request.
		ignored fieldCollector
	)
	if err := decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := decodeCartItem(d, fmt.Sprintf("items[%d]", len(items)), &ignored)
			items = append(items, item)
			return err
		})
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.carts.Sync(r.Context(), id.ID, items)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if err := h.carts.Clear(r.Context(), id.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getWishlist(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	items, err := h.carts.Wishlist(r.Context(), id.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeWishlist(e, items) })
}

func (h *Handler) addToWishlist(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if err := h.carts.AddToWishlist(r.Context(), id.ID, r.PathValue("productId")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeFromWishlist(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if err := h.carts.RemoveFromWishlist(r.Context(), id.ID, r.PathValue("productId")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
