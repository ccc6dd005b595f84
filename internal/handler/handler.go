// Package handler serves the coupon HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// CouponService is the domain API the handlers delegate to.
type CouponService interface {
	CreateCoupon(ctx context.Context, in coupon.Input) (*coupon.Coupon, error)
	GetCoupon(ctx context.Context, id string) (*coupon.Coupon, error)
	ListCoupons(ctx context.Context) ([]*coupon.Coupon, error)
	UpdateCoupon(ctx context.Context, id string, in coupon.Input) (*coupon.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) (*coupon.Coupon, error)
	GetApplicableCoupons(ctx context.Context, cart coupon.Cart) ([]coupon.Applicable, error)
	ApplyCoupon(ctx context.Context, id string, cart coupon.Cart) (coupon.PricedCart, error)
}

var _ CouponService = (*coupon.Service)(nil)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the /api routes.
type Handler struct {
	coupons CouponService
}

// NewHandler returns a Handler backed by the given service.
func NewHandler(coupons CouponService) *Handler {
	return &Handler{coupons: coupons}
}

// Mount registers the API routes on r. Mutating coupon routes are wrapped in
// guard when it is non-nil.
func (h *Handler) Mount(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Get("/coupons", h.ListCoupons)
	r.Get("/coupons/{id}", h.GetCoupon)
	r.Post("/applicable-coupons", h.ApplicableCoupons)
	r.Post("/apply-coupon/{id}", h.ApplyCoupon)

	r.Group(func(r chi.Router) {
		if guard != nil {
			r.Use(guard)
		}
		r.Post("/coupons", h.CreateCoupon)
		r.Put("/coupons/{id}", h.UpdateCoupon)
		r.Delete("/coupons/{id}", h.DeleteCoupon)
	})
}

// NewRouter builds the root router: middlewares, index, the API under /api,
// extra mounts (health probes) and the not-found fallback.
func NewRouter(h *Handler, guard func(http.Handler) http.Handler, middlewares []func(http.Handler) http.Handler, mounts ...func(chi.Router)) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.NotFound(RouteNotFound)
	r.MethodNotAllowed(RouteNotFound)

	r.Get("/", Index)
	for _, m := range mounts {
		m(r)
	}
	r.Route("/api", func(r chi.Router) {
		h.Mount(r, guard)
	})
	return r
}

// Index greets callers of the root path.
func Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Welcome to the Coupon API!"))
}

// RouteNotFound answers requests that match no route.
func RouteNotFound(w http.ResponseWriter, _ *http.Request) {
	writeRouteNotFound(w)
}
