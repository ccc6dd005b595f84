package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

const (
	msgValidationFailed = "Validation failed"
	msgInvalidBody      = "Invalid request body"
	msgInvalidCart      = "Invalid cart data"
	msgNotFound         = "Coupon not found"
	msgExpired          = "Coupon has expired"
	msgConditionNotMet  = "Coupon conditions not met"
	msgInternal         = "Internal server error"
	msgUnauthorized     = "Unauthorized"
	msgForbidden        = "Forbidden"
)

// writeJSON writes an already encoded body.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeData writes {"success":true,"data":<data>}.
func writeData(w http.ResponseWriter, status int, data func(e *jx.Encoder)) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
		e.Field("data", data)
	})
	writeJSON(w, status, &e)
}

// writeError writes {"success":false,"error":{"message":...,"details":[...]}}.
// details is omitted when empty.
func writeError(w http.ResponseWriter, status int, message string, details ...string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("error", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("message", func(e *jx.Encoder) { e.Str(message) })
				if len(details) > 0 {
					e.Field("details", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, d := range details {
								e.Str(d)
							}
						})
					})
				}
			})
		})
	})
	writeJSON(w, status, &e)
}

func writeRouteNotFound(w http.ResponseWriter) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("message", func(e *jx.Encoder) { e.Str("Route not found") })
	})
	writeJSON(w, http.StatusNotFound, &e)
}

// writeServiceError maps domain errors to API responses. Anything
// unrecognized is logged and answered with 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		mErr *coupon.MalformedCouponError
		cErr *coupon.InvalidCartError
	)
	switch {
	case errors.As(err, &mErr):
		writeError(w, http.StatusBadRequest, msgValidationFailed, mErr.Field+": "+mErr.Reason)
	case errors.As(err, &cErr):
		writeError(w, http.StatusBadRequest, msgInvalidCart, cErr.Error())
	case errors.Is(err, coupon.ErrInvalidCart):
		writeError(w, http.StatusBadRequest, msgInvalidCart)
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, coupon.ErrCouponExpired):
		writeError(w, http.StatusBadRequest, msgExpired)
	case errors.Is(err, coupon.ErrCouponCondition):
		writeError(w, http.StatusBadRequest, msgConditionNotMet)
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
