package checkout

import (
	"errors"
	"fmt"
)

// Error taxonomy for the checkout flow. Nothing here is fatal: every
// error is either recoverable by retrying the same call or explicitly
// non-blocking.
var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrEmptyCart       = errors.New("cart is empty")

	// ErrCouponRejected never blocks checkout; it degrades to no discount.
	ErrCouponRejected = errors.New("coupon rejected")

	// ErrOrderCreation blocks all payment branches until a re-submit succeeds.
	ErrOrderCreation = errors.New("order creation failed")

	// ErrPaymentFailed returns the session to the details step with the
	// already-created order retained for retry.
	ErrPaymentFailed = errors.New("payment failed")

	ErrInvalidTransition = errors.New("operation not valid in current checkout step")
)

// ValidationError reports a missing or malformed required field. It is
// reported inline and blocks the details transition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
