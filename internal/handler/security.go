package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/domain/auth"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "X-API-Key"

// Authenticator checks an API key for a scope.
type Authenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

var _ Authenticator = (*auth.Authenticator)(nil)

// RequireAPIKey rejects requests whose X-API-Key does not grant scope: 401
// for an unknown key, 403 for a missing scope. Accepted requests log with an
// api_key field naming the key.
func RequireAPIKey(a Authenticator, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := a.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), scope)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrUnknownKey):
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			case errors.Is(err, auth.ErrMissingScope):
				writeError(w, http.StatusForbidden, msgForbidden)
				return
			default:
				zctx.From(r.Context()).Error("Authenticate", zap.Error(err))
				writeError(w, http.StatusInternalServerError, msgInternal)
				return
			}

			lg := zctx.From(r.Context()).With(zap.String("api_key", info.Name))
			lg.Debug("Authenticated")
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), lg)))
		})
	}
}
