package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-service/internal/couponjson"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

// decodeInput reads a coupon document from the request body. Any id in the
// body is ignored.
func decodeInput(w http.ResponseWriter, r *http.Request) (coupon.Input, bool) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody, err.Error())
		return coupon.Input{}, false
	}
	rec, err := couponjson.DecodeRecord(jx.DecodeBytes(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody, err.Error())
		return coupon.Input{}, false
	}
	return rec.Input, true
}

func couponData(c *coupon.Coupon) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { couponjson.EncodeCoupon(e, c) }
}

// CreateCoupon handles POST /api/coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	c, err := h.coupons.CreateCoupon(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, couponData(c))
}

// ListCoupons handles GET /api/coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	cs, err := h.coupons.ListCoupons(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { couponjson.EncodeCoupons(e, cs) })
}

// GetCoupon handles GET /api/coupons/{id}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.GetCoupon(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, couponData(c))
}

// UpdateCoupon handles PUT /api/coupons/{id}.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	c, err := h.coupons.UpdateCoupon(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, couponData(c))
}

// DeleteCoupon handles DELETE /api/coupons/{id}.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.DeleteCoupon(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("Coupon deleted") })
			e.Field("coupon", couponData(c))
		})
	})
}
