package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for checkout and transition validation.
var (
	// ErrNotFound is returned when the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when checkout is attempted with no cart lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrEmptyReceiptRef is returned when a receipt submission carries no
	// reference.
	ErrEmptyReceiptRef = errors.New("receipt reference required")
	// ErrEmptyTrackingCode is returned when shipping is attempted without a
	// tracking code.
	ErrEmptyTrackingCode = errors.New("tracking code required")
	// ErrCodeConsumed is returned by Repository.CreateCheckout when the
	// order's discount code was consumed by a concurrent checkout after it
	// was read as unused. The whole checkout transaction is rolled back.
	ErrCodeConsumed = errors.New("discount code already consumed")
)

// InvalidStateError indicates a transition was attempted from the wrong
// state. Always recoverable by the caller; the order is left untouched.
type InvalidStateError struct {
	OrderID   string
	Current   Status
	Attempted Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %s is %s, cannot transition to %s", e.OrderID, e.Current, e.Attempted)
}

// RatingOutOfRangeError indicates a rating outside the allowed bounds.
type RatingOutOfRangeError struct {
	Rating int
}

func (e *RatingOutOfRangeError) Error() string {
	return fmt.Sprintf("rating %d out of range [%d, %d]", e.Rating, RatingMin, RatingMax)
}
