package coupon

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type mockCouponRepo struct {
	byID      map[string]*Coupon
	order     []string
	fetchErr  error
	createErr error
	nextID    int

	created []*Coupon
	updated []*Coupon
	deleted []string
}

func newMockRepo(cs ...*Coupon) *mockCouponRepo {
	m := &mockCouponRepo{byID: make(map[string]*Coupon)}
	for _, c := range cs {
		m.byID[c.ID] = c
		m.order = append(m.order, c.ID)
	}
	return m
}

func (m *mockCouponRepo) FetchByID(_ context.Context, id string) (*Coupon, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return c, nil
}

func (m *mockCouponRepo) FetchAll(_ context.Context) ([]*Coupon, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]*Coupon, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}

func (m *mockCouponRepo) Create(_ context.Context, c *Coupon) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	c.ID = "gen-" + strconv.Itoa(m.nextID)
	m.byID[c.ID] = c
	m.order = append(m.order, c.ID)
	m.created = append(m.created, c)
	return nil
}

func (m *mockCouponRepo) Update(_ context.Context, c *Coupon) error {
	m.byID[c.ID] = c
	m.updated = append(m.updated, c)
	return nil
}

func (m *mockCouponRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository) *Service {
	s := NewService(repo, noop.NewTracerProvider())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestService_GetApplicableCoupons(t *testing.T) {
	yesterday := fixedNow.Add(-24 * time.Hour)
	expired := cartWise(t, "old", "0", "90")
	expired.Expiration = &yesterday

	repo := newMockRepo(
		cartWise(t, "cw", "100", "10"),
		expired,
		productWise(t, "pw", 1, "50"),
	)
	svc := newTestService(repo)

	got, err := svc.GetApplicableCoupons(context.Background(), Cart{Items: []Item{item(1, "60", 2)}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cw", got[0].CouponID)
	assertDecimal(t, "12", got[0].Discount)
	assert.Equal(t, "pw", got[1].CouponID)
	assertDecimal(t, "60", got[1].Discount)
}

func TestService_GetApplicableCoupons_InvalidCart(t *testing.T) {
	svc := newTestService(newMockRepo())

	_, err := svc.GetApplicableCoupons(context.Background(), Cart{})
	require.ErrorIs(t, err, ErrInvalidCart)
}

func TestService_GetApplicableCoupons_StoreError(t *testing.T) {
	repo := newMockRepo()
	repo.fetchErr = errors.New("connection reset")
	svc := newTestService(repo)

	_, err := svc.GetApplicableCoupons(context.Background(), Cart{Items: []Item{item(1, "1", 1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch coupons")
}

func TestService_ApplyCoupon(t *testing.T) {
	yesterday := fixedNow.Add(-24 * time.Hour)
	expired := cartWise(t, "old", "0", "10")
	expired.Expiration = &yesterday

	repo := newMockRepo(cartWise(t, "cw", "100", "10"), expired)

	tests := []struct {
		name      string
		id        string
		cart      Cart
		wantFinal string
		wantErr   error
	}{
		{
			name:      "applies",
			id:        "cw",
			cart:      Cart{Items: []Item{item(1, "60", 2)}},
			wantFinal: "108",
		},
		{
			name:    "unknown id",
			id:      "missing",
			cart:    Cart{Items: []Item{item(1, "60", 2)}},
			wantErr: ErrNotFound,
		},
		{
			name:    "expired",
			id:      "old",
			cart:    Cart{Items: []Item{item(1, "60", 2)}},
			wantErr: ErrCouponExpired,
		},
		{
			name:    "conditions not met",
			id:      "cw",
			cart:    Cart{Items: []Item{item(1, "50", 2)}},
			wantErr: ErrCouponCondition,
		},
		{
			name:    "empty cart checked before lookup",
			id:      "missing",
			cart:    Cart{},
			wantErr: ErrInvalidCart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(repo)

			got, err := svc.ApplyCoupon(context.Background(), tt.id, tt.cart)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got.Items)
				return
			}

			require.NoError(t, err)
			assertDecimal(t, tt.wantFinal, got.FinalPrice)
		})
	}
}

func TestService_CreateCoupon(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	c, err := svc.CreateCoupon(context.Background(), Input{Type: KindCartWise, Threshold: dp("50"), Discount: dp("5")})
	require.NoError(t, err)
	assert.Equal(t, "gen-1", c.ID)
	assert.Equal(t, fixedNow, c.CreatedAt)
	require.Len(t, repo.created, 1)

	_, err = svc.CreateCoupon(context.Background(), Input{Type: KindCartWise})
	require.ErrorIs(t, err, ErrMalformedCoupon)
	assert.Len(t, repo.created, 1, "malformed input must not reach the store")
}

func TestService_CreateCoupon_StoreError(t *testing.T) {
	repo := newMockRepo()
	repo.createErr = errors.New("db write failed")
	svc := newTestService(repo)

	_, err := svc.CreateCoupon(context.Background(), Input{Type: KindCartWise, Threshold: dp("1"), Discount: dp("5")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create coupon")
}

func TestService_UpdateCoupon(t *testing.T) {
	created := fixedNow.Add(-time.Hour)
	orig := cartWise(t, "cw", "100", "10")
	orig.CreatedAt = created
	repo := newMockRepo(orig)
	svc := newTestService(repo)

	got, err := svc.UpdateCoupon(context.Background(), "cw", Input{
		Type:      KindProductWise,
		ProductID: pid(3),
		Discount:  dp("15"),
	})
	require.NoError(t, err)
	assert.Equal(t, "cw", got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, ProductWise{ProductID: 3, DiscountPercent: d("15")}, got.Variant)
	require.Len(t, repo.updated, 1)

	_, err = svc.UpdateCoupon(context.Background(), "nope", Input{Type: KindCartWise})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateCoupon(context.Background(), "cw", Input{Type: KindCartWise})
	require.ErrorIs(t, err, ErrMalformedCoupon)
	assert.Len(t, repo.updated, 1)
}

func TestService_DeleteCoupon(t *testing.T) {
	repo := newMockRepo(cartWise(t, "cw", "100", "10"))
	svc := newTestService(repo)

	got, err := svc.DeleteCoupon(context.Background(), "cw")
	require.NoError(t, err)
	assert.Equal(t, "cw", got.ID)
	assert.Equal(t, []string{"cw"}, repo.deleted)

	_, err = svc.DeleteCoupon(context.Background(), "cw")
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "cw", nfErr.ID)
}

func TestService_ListCoupons(t *testing.T) {
	repo := newMockRepo(cartWise(t, "a", "1", "1"), productWise(t, "b", 1, "1"))
	svc := newTestService(repo)

	got, err := svc.ListCoupons(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}
