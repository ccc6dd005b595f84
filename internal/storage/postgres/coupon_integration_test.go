//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/coupon-service/internal/domain/auth"
	"github.com/xenking/coupon-service/internal/domain/coupon"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "coupon",
				"POSTGRES_PASSWORD": "coupon",
				"POSTGRES_DB":       "coupon",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host: %v\n", err)
		return 1
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mapped port: %v\n", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://coupon:coupon@%s:%s/coupon?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrations: %v\n", err)
		return 1
	}

	return m.Run()
}

func truncate(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), "TRUNCATE coupons, api_keys")
	require.NoError(t, err)
}

func mustCoupon(t *testing.T, in coupon.Input) *coupon.Coupon {
	t.Helper()
	c, err := coupon.New("", in)
	require.NoError(t, err)
	return c
}

func TestCouponRepository_CRUD(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	threshold := decimal.RequireFromString("100")
	discount := decimal.RequireFromString("12.5")
	exp := time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC)

	cw := mustCoupon(t, coupon.Input{
		Type:       coupon.KindCartWise,
		Threshold:  &threshold,
		Discount:   &discount,
		Expiration: &exp,
	})
	require.NoError(t, repo.Create(ctx, cw))
	require.NotEmpty(t, cw.ID)

	bx := mustCoupon(t, coupon.Input{
		Type:        coupon.KindBuyXGetY,
		BuyProducts: []coupon.ProductQuantity{{ProductID: 1, Quantity: 3}},
		GetProducts: []coupon.ProductQuantity{{ProductID: 2, Quantity: 1}},
	})
	require.NoError(t, repo.Create(ctx, bx))

	got, err := repo.FetchByID(ctx, cw.ID)
	require.NoError(t, err)
	v, ok := got.Variant.(coupon.CartWise)
	require.True(t, ok)
	assert.True(t, threshold.Equal(v.Threshold))
	assert.True(t, discount.Equal(v.DiscountPercent))
	require.NotNil(t, got.Expiration)
	assert.True(t, exp.Equal(*got.Expiration))

	all, err := repo.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, cw.ID, all[0].ID)
	assert.Equal(t, bx.ID, all[1].ID)

	pid := int64(9)
	updated := mustCoupon(t, coupon.Input{Type: coupon.KindProductWise, ProductID: &pid, Discount: &discount})
	updated.ID = cw.ID
	updated.CreatedAt = got.CreatedAt
	require.NoError(t, repo.Update(ctx, updated))

	got, err = repo.FetchByID(ctx, cw.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.KindProductWise, got.Kind())
	assert.Nil(t, got.Expiration)

	require.NoError(t, repo.Delete(ctx, cw.ID))
	_, err = repo.FetchByID(ctx, cw.ID)
	require.ErrorIs(t, err, coupon.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, cw.ID), coupon.ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, updated), coupon.ErrNotFound)
}

func TestCouponRepository_Upsert(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	discount := decimal.RequireFromString("5")
	pid := int64(1)
	c := mustCoupon(t, coupon.Input{Type: coupon.KindProductWise, ProductID: &pid, Discount: &discount})
	c.ID = "fixed-id"
	c.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, c))

	higher := decimal.RequireFromString("15")
	c2 := mustCoupon(t, coupon.Input{Type: coupon.KindProductWise, ProductID: &pid, Discount: &higher})
	c2.ID = "fixed-id"
	c2.CreatedAt = time.Now()
	require.NoError(t, repo.Upsert(ctx, c2))

	got, err := repo.FetchByID(ctx, "fixed-id")
	require.NoError(t, err)
	assert.True(t, higher.Equal(got.Variant.(coupon.ProductWise).DiscountPercent))
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))
}

func TestAPIKeyRepository(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := NewAPIKeyRepository(testPool)

	pepper := []byte("pepper")
	hash := auth.Hash(pepper, "secret")
	require.NoError(t, repo.Upsert(ctx, hash, "admin", []string{auth.ScopeCouponsWrite}))

	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "admin", info.Name)
	assert.Equal(t, []string{auth.ScopeCouponsWrite}, info.Scopes)

	_, err = repo.FindByHash(ctx, auth.Hash(pepper, "other"))
	require.ErrorIs(t, err, auth.ErrUnknownKey)

	a := auth.NewAuthenticator(repo, pepper)
	_, err = a.Authenticate(ctx, "secret", auth.ScopeCouponsWrite)
	require.NoError(t, err)
}
