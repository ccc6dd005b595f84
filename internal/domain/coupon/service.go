package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Service exposes coupon CRUD and evaluation on top of a Repository. The
// repository may be a cache in front of the durable store; the service does
// not care which.
type Service struct {
	repo   Repository
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates a Service backed by the given Repository.
func NewService(repo Repository, tp trace.TracerProvider) *Service {
	return &Service{
		repo:   repo,
		tracer: tp.Tracer("coupon"),
		now:    time.Now,
	}
}

// CreateCoupon validates in and persists a new coupon. The store assigns the id.
func (s *Service) CreateCoupon(ctx context.Context, in Input) (*Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Create")
	defer span.End()

	c, err := New("", in)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = s.now().UTC()

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}

	zctx.From(ctx).Info("Coupon created",
		zap.String("coupon_id", c.ID),
		zap.String("type", string(c.Kind())),
	)
	return c, nil
}

// GetCoupon returns the coupon with the given id or ErrNotFound.
func (s *Service) GetCoupon(ctx context.Context, id string) (*Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Get", trace.WithAttributes(attribute.String("coupon.id", id)))
	defer span.End()

	c, err := s.repo.FetchByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "fetch coupon")
	}
	return c, nil
}

// ListCoupons returns every stored coupon, expired ones included.
func (s *Service) ListCoupons(ctx context.Context) ([]*Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.List")
	defer span.End()

	cs, err := s.repo.FetchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch coupons")
	}
	return cs, nil
}

// UpdateCoupon replaces the rule of an existing coupon. The id and creation
// time are preserved.
func (s *Service) UpdateCoupon(ctx context.Context, id string, in Input) (*Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Update", trace.WithAttributes(attribute.String("coupon.id", id)))
	defer span.End()

	existing, err := s.repo.FetchByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "fetch coupon")
	}

	c, err := New(id, in)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update coupon")
	}

	zctx.From(ctx).Info("Coupon updated",
		zap.String("coupon_id", c.ID),
		zap.String("type", string(c.Kind())),
	)
	return c, nil
}

// DeleteCoupon removes a coupon and returns the deleted record.
func (s *Service) DeleteCoupon(ctx context.Context, id string) (*Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Delete", trace.WithAttributes(attribute.String("coupon.id", id)))
	defer span.End()

	c, err := s.repo.FetchByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "fetch coupon")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, errors.Wrap(err, "delete coupon")
	}

	zctx.From(ctx).Info("Coupon deleted", zap.String("coupon_id", id))
	return c, nil
}

// GetApplicableCoupons lists every unexpired coupon that yields a positive
// discount for cart, in store order. It returns ErrInvalidCart for an empty
// or invalid cart.
func (s *Service) GetApplicableCoupons(ctx context.Context, cart Cart) ([]Applicable, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.GetApplicable")
	defer span.End()

	if err := cart.Validate(); err != nil {
		return nil, err
	}

	cs, err := s.repo.FetchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch coupons")
	}

	out := FilterApplicable(cs, cart, s.now())
	span.SetAttributes(
		attribute.Int("coupon.candidates", len(cs)),
		attribute.Int("coupon.applicable", len(out)),
	)
	return out, nil
}

// ApplyCoupon resolves id and applies it to cart. It returns ErrInvalidCart,
// ErrNotFound, ErrCouponExpired or ErrCouponCondition on failure.
func (s *Service) ApplyCoupon(ctx context.Context, id string, cart Cart) (PricedCart, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Apply", trace.WithAttributes(attribute.String("coupon.id", id)))
	defer span.End()

	if err := cart.Validate(); err != nil {
		return PricedCart{}, err
	}

	c, err := s.repo.FetchByID(ctx, id)
	if err != nil {
		return PricedCart{}, errors.Wrap(err, "fetch coupon")
	}

	pc, err := Apply(c, cart, s.now())
	if err != nil {
		return PricedCart{}, err
	}

	zctx.From(ctx).Debug("Coupon applied",
		zap.String("coupon_id", id),
		zap.String("discount", pc.TotalDiscount.String()),
	)
	return pc, nil
}
