package coupon

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for the coupon domain. None of them are retryable: they
// describe the caller's input or the stored data, not a transient failure.
var (
	// ErrMalformedCoupon is returned when coupon fields violate the model's
	// structural or range constraints.
	ErrMalformedCoupon = errors.New("malformed coupon")
	// ErrInvalidCart is returned when a cart is missing, empty, or holds an
	// invalid line.
	ErrInvalidCart = errors.New("invalid cart data")
	// ErrNotFound is returned when a coupon id does not exist in the store.
	ErrNotFound = errors.New("coupon not found")
	// ErrCouponExpired is returned when a coupon's expiration has passed.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrCouponCondition is returned when an unexpired coupon yields no
	// discount for the given cart.
	ErrCouponCondition = errors.New("coupon conditions not met")
)

// MalformedCouponError identifies the coupon field that failed validation.
type MalformedCouponError struct {
	Field  string
	Reason string
}

func (e *MalformedCouponError) Error() string {
	return fmt.Sprintf("malformed coupon: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedCoupon.
func (e *MalformedCouponError) Unwrap() error { return ErrMalformedCoupon }

func malformed(field, reason string) error {
	return &MalformedCouponError{Field: field, Reason: reason}
}

// InvalidCartError describes why a cart was rejected. Index is the offending
// line, or -1 when the cart as a whole is invalid.
type InvalidCartError struct {
	Index  int
	Reason string
}

func (e *InvalidCartError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid cart data: %s", e.Reason)
	}
	return fmt.Sprintf("invalid cart data: item %d: %s", e.Index, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidCart.
func (e *InvalidCartError) Unwrap() error { return ErrInvalidCart }

// NotFoundError indicates a coupon id is unknown to the store.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("coupon %s not found", e.ID)
}

// Unwrap lets errors.Is match ErrNotFound.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }
