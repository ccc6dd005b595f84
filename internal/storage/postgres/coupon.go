package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-service/internal/couponjson"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

const (
	couponColumns = `id, type, details, expiration, created_at`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at, id`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5)`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			details = EXCLUDED.details,
			expiration = EXCLUDED.expiration`

	updateCouponSQL = `UPDATE coupons SET type = $2, details = $3, expiration = $4 WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Variant parameters live in the details JSONB column in the API's wire shape.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FetchByID returns the coupon with the given id, or a *coupon.NotFoundError.
func (r *CouponRepository) FetchByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &coupon.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return c, nil
}

// FetchAll returns every coupon ordered by creation time.
func (r *CouponRepository) FetchAll(ctx context.Context) ([]*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	cs, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return cs, nil
}

// Create inserts c, assigning a new UUID when c.ID is empty.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, insertCouponSQL, couponArgs(c)...)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.ID, err)
	}
	return nil
}

// Upsert inserts c or replaces the rule of the existing coupon with the same
// id. The original creation time is kept on conflict.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(c)...)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.ID, err)
	}
	return nil
}

// Update replaces the rule and expiration of an existing coupon.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, string(c.Kind()), couponjson.MarshalDetails(c.Variant), c.Expiration,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &coupon.NotFoundError{ID: c.ID}
	}
	return nil
}

// Delete removes the coupon with the given id.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &coupon.NotFoundError{ID: id}
	}
	return nil
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.ID, string(c.Kind()), couponjson.MarshalDetails(c.Variant), c.Expiration, c.CreatedAt,
	}
}

// scanCoupon rebuilds a coupon through coupon.New so that a row that does not
// satisfy the model is reported instead of reaching the engine.
func scanCoupon(row pgx.CollectableRow) (*coupon.Coupon, error) {
	var (
		id         string
		kind       string
		details    []byte
		expiration *time.Time
		createdAt  time.Time
	)
	if err := row.Scan(&id, &kind, &details, &expiration, &createdAt); err != nil {
		return nil, err
	}

	if expiration != nil {
		utc := expiration.UTC()
		expiration = &utc
	}

	in := coupon.Input{Type: coupon.Kind(kind), Expiration: expiration}
	if err := couponjson.DecodeDetails(jx.DecodeBytes(details), &in); err != nil {
		return nil, fmt.Errorf("decoding details of coupon %q: %w", id, err)
	}

	c, err := coupon.New(id, in)
	if err != nil {
		// Not %w: a bad row is a store fault, not a caller input error.
		return nil, fmt.Errorf("stored coupon %q is invalid: %v", id, err)
	}
	c.CreatedAt = createdAt.UTC()
	return c, nil
}
