// Package auth authenticates administrative API callers by API key.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// Errors returned by Authenticator.
var (
	// ErrUnknownKey is returned when no active key matches the presented one.
	ErrUnknownKey = errors.New("unknown api key")
	// ErrMissingScope is returned when a known key lacks the required scope.
	ErrMissingScope = errors.New("api key lacks required scope")
)

// ScopeCouponsWrite permits creating, updating and deleting coupons.
const ScopeCouponsWrite = "coupons:write"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope. The "*" scope grants all.
func (i *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Hash returns the hex HMAC-SHA256 of key under pepper, the form stored in
// the repository.
func Hash(pepper []byte, key string) string {
	return hex.EncodeToString(sum(pepper, key))
}

func sum(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Authenticator resolves presented API keys against a Repository.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator using the given repository and
// HMAC pepper.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate looks up key and checks it grants scope. The stored hash is
// compared in constant time against the computed one.
func (a *Authenticator) Authenticate(ctx context.Context, key, scope string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnknownKey
	}
	hash := sum(a.pepper, key)

	info, err := a.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return nil, ErrUnknownKey
		}
		return nil, errors.Wrap(err, "lookup api key")
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnknownKey
	}
	if !info.HasScope(scope) {
		return nil, ErrMissingScope
	}
	return info, nil
}
