// Package cache provides a Redis read-through cache in front of the coupon
// store.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/couponjson"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

// DefaultTTL is how long cached coupon snapshots live.
const DefaultTTL = time.Hour

const listKey = "coupons"

func couponKey(id string) string { return "coupon:" + id }

var _ coupon.Repository = (*Coupons)(nil)

// Coupons decorates a coupon.Repository with a Redis read-through cache.
//
// Cache failures never fail a call: they are logged and the underlying
// repository result is returned.
type Coupons struct {
	next coupon.Repository
	rdb  redis.UniversalClient
	ttl  time.Duration
}

// NewCoupons wraps next with a cache backed by rdb. A non-positive ttl
// selects DefaultTTL.
func NewCoupons(next coupon.Repository, rdb redis.UniversalClient, ttl time.Duration) *Coupons {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coupons{next: next, rdb: rdb, ttl: ttl}
}

// FetchByID returns the cached coupon or loads it from the store and caches it.
func (c *Coupons) FetchByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	key := couponKey(id)
	if data, ok := c.get(ctx, key); ok {
		cp, err := couponjson.UnmarshalCoupon(data)
		if err == nil {
			return cp, nil
		}
		c.warn(ctx, "Decode cached coupon", key, err)
	}

	cp, err := c.next.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, couponjson.MarshalCoupon(cp))
	return cp, nil
}

// FetchAll returns the cached coupon list or loads it from the store and
// caches it.
func (c *Coupons) FetchAll(ctx context.Context) ([]*coupon.Coupon, error) {
	if data, ok := c.get(ctx, listKey); ok {
		cs, err := couponjson.DecodeCoupons(jx.DecodeBytes(data))
		if err == nil {
			return cs, nil
		}
		c.warn(ctx, "Decode cached coupons", listKey, err)
	}

	cs, err := c.next.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	var e jx.Encoder
	couponjson.EncodeCoupons(&e, cs)
	c.set(ctx, listKey, e.Bytes())
	return cs, nil
}

// Create stores cp and drops the cached list.
func (c *Coupons) Create(ctx context.Context, cp *coupon.Coupon) error {
	if err := c.next.Create(ctx, cp); err != nil {
		return err
	}
	c.del(ctx, listKey)
	return nil
}

// Update stores cp, refreshes its cached snapshot and drops the cached list.
func (c *Coupons) Update(ctx context.Context, cp *coupon.Coupon) error {
	if err := c.next.Update(ctx, cp); err != nil {
		return err
	}
	c.set(ctx, couponKey(cp.ID), couponjson.MarshalCoupon(cp))
	c.del(ctx, listKey)
	return nil
}

// Delete removes the coupon and drops both its snapshot and the cached list.
func (c *Coupons) Delete(ctx context.Context, id string) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.del(ctx, couponKey(id), listKey)
	return nil
}

func (c *Coupons) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return data, true
	case errors.Is(err, redis.Nil):
	default:
		c.warn(ctx, "Cache get", key, err)
	}
	return nil, false
}

func (c *Coupons) set(ctx context.Context, key string, data []byte) {
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.warn(ctx, "Cache set", key, err)
	}
}

func (c *Coupons) del(ctx context.Context, keys ...string) {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.warn(ctx, "Cache invalidate", keys[0], err)
	}
}

func (c *Coupons) warn(ctx context.Context, msg, key string, err error) {
	zctx.From(ctx).Warn(msg, zap.String("key", key), zap.Error(err))
}
