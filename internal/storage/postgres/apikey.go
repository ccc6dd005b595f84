package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-service/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
// Returns auth.ErrUnknownKey when no matching key exists.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnknownKey
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// Upsert stores an active key with the given hash, reactivating it if it
// already exists.
func (r *APIKeyRepository) Upsert(ctx context.Context, hash, name string, scopes []string) error {
	if _, err := r.pool.Exec(ctx, upsertAPIKeySQL, uuid.NewString(), hash, name, scopes); err != nil {
		return fmt.Errorf("upserting api key %q: %w", name, err)
	}
	return nil
}
