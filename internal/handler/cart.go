package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-service/internal/couponjson"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// decodeCartRequest reads {"cart":{"items":[...]}} from the request body. A
// missing cart yields an empty one, which the service rejects.
func decodeCartRequest(w http.ResponseWriter, r *http.Request) (coupon.Cart, bool) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody, err.Error())
		return coupon.Cart{}, false
	}

	var cart coupon.Cart
	err = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "cart" {
			return d.Skip()
		}
		c, err := couponjson.DecodeCart(d)
		cart = c
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidCart, err.Error())
		return coupon.Cart{}, false
	}
	return cart, true
}

// ApplicableCoupons handles POST /api/applicable-coupons.
func (h *Handler) ApplicableCoupons(w http.ResponseWriter, r *http.Request) {
	cart, ok := decodeCartRequest(w, r)
	if !ok {
		return
	}
	list, err := h.coupons.GetApplicableCoupons(r.Context(), cart)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("applicable_coupons", func(e *jx.Encoder) { couponjson.EncodeApplicable(e, list) })
		})
	})
}

// ApplyCoupon handles POST /api/apply-coupon/{id}.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	cart, ok := decodeCartRequest(w, r)
	if !ok {
		return
	}
	pc, err := h.coupons.ApplyCoupon(r.Context(), chi.URLParam(r, "id"), cart)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("updated_cart", func(e *jx.Encoder) { couponjson.EncodePricedCart(e, pc) })
		})
	})
}
