package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-service/internal/domain/coupon"
)

type countingRepo struct {
	byID  map[string]*coupon.Coupon
	order []string

	fetchByID int
	fetchAll  int
}

func newCountingRepo(cs ...*coupon.Coupon) *countingRepo {
	r := &countingRepo{byID: make(map[string]*coupon.Coupon)}
	for _, c := range cs {
		r.byID[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	return r
}

func (r *countingRepo) FetchByID(_ context.Context, id string) (*coupon.Coupon, error) {
	r.fetchByID++
	c, ok := r.byID[id]
	if !ok {
		return nil, &coupon.NotFoundError{ID: id}
	}
	return c, nil
}

func (r *countingRepo) FetchAll(_ context.Context) ([]*coupon.Coupon, error) {
	r.fetchAll++
	out := make([]*coupon.Coupon, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out, nil
}

func (r *countingRepo) Create(_ context.Context, c *coupon.Coupon) error {
	r.byID[c.ID] = c
	r.order = append(r.order, c.ID)
	return nil
}

func (r *countingRepo) Update(_ context.Context, c *coupon.Coupon) error {
	if _, ok := r.byID[c.ID]; !ok {
		return &coupon.NotFoundError{ID: c.ID}
	}
	r.byID[c.ID] = c
	return nil
}

func (r *countingRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return &coupon.NotFoundError{ID: id}
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func cartWise(t *testing.T, id, threshold, pct string) *coupon.Coupon {
	t.Helper()
	th := decimal.RequireFromString(threshold)
	p := decimal.RequireFromString(pct)
	c, err := coupon.New(id, coupon.Input{Type: coupon.KindCartWise, Threshold: &th, Discount: &p})
	require.NoError(t, err)
	c.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return c
}

func setup(t *testing.T, cs ...*coupon.Coupon) (*Coupons, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := newCountingRepo(cs...)
	return NewCoupons(repo, rdb, time.Minute), repo, mr
}

func TestCoupons_FetchByID_ReadThrough(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t, cartWise(t, "a", "100", "10"))

	first, err := c.FetchByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.fetchByID)
	assert.True(t, mr.Exists("coupon:a"))
	assert.Equal(t, time.Minute, mr.TTL("coupon:a"))

	second, err := c.FetchByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.fetchByID, "second read must be served from cache")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Kind(), second.Kind())
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestCoupons_FetchByID_NotFoundNotCached(t *testing.T) {
	ctx := context.Background()
	c, _, mr := setup(t)

	_, err := c.FetchByID(ctx, "missing")
	require.ErrorIs(t, err, coupon.ErrNotFound)
	assert.False(t, mr.Exists("coupon:missing"))
}

func TestCoupons_FetchAll_Invalidation(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t, cartWise(t, "a", "100", "10"))

	_, err := c.FetchAll(ctx)
	require.NoError(t, err)
	_, err = c.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.fetchAll)
	assert.True(t, mr.Exists("coupons"))

	require.NoError(t, c.Create(ctx, cartWise(t, "b", "0", "5")))
	assert.False(t, mr.Exists("coupons"))

	all, err := c.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, repo.fetchAll)
}

func TestCoupons_Update(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t, cartWise(t, "a", "100", "10"))

	_, err := c.FetchAll(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Update(ctx, cartWise(t, "a", "200", "20")))
	assert.False(t, mr.Exists("coupons"))
	require.True(t, mr.Exists("coupon:a"))

	got, err := c.FetchByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, repo.fetchByID, "update must refresh the snapshot")
	assert.True(t, decimal.RequireFromString("200").Equal(got.Variant.(coupon.CartWise).Threshold))

	require.ErrorIs(t, c.Update(ctx, cartWise(t, "zzz", "1", "1")), coupon.ErrNotFound)
	assert.False(t, mr.Exists("coupon:zzz"))
}

func TestCoupons_Delete(t *testing.T) {
	ctx := context.Background()
	c, _, mr := setup(t, cartWise(t, "a", "100", "10"))

	_, err := c.FetchByID(ctx, "a")
	require.NoError(t, err)
	_, err = c.FetchAll(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "a"))
	assert.False(t, mr.Exists("coupon:a"))
	assert.False(t, mr.Exists("coupons"))

	_, err = c.FetchByID(ctx, "a")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestCoupons_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t, cartWise(t, "a", "100", "10"))
	mr.Close()

	got, err := c.FetchByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	all, err := c.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, c.Delete(ctx, "a"))
	assert.Equal(t, 1, repo.fetchByID)
	assert.Equal(t, 1, repo.fetchAll)
}

func TestCoupons_CorruptEntryReloads(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t, cartWise(t, "a", "100", "10"))
	require.NoError(t, mr.Set("coupon:a", "{not json"))

	got, err := c.FetchByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, 1, repo.fetchByID)
}
