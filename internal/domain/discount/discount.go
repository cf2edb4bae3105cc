package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors shared between the ledger and its storage implementations.
var (
	// ErrNoCode is returned when a customer has no issued discount code.
	ErrNoCode = errors.New("no discount code issued")
	// ErrCodeCollision is returned by Insert when the generated code is
	// already taken by another customer. Handled internally via bounded
	// retry, never surfaced to callers of the ledger.
	ErrCodeCollision = errors.New("discount code already taken")
	// ErrAlreadyIssued is returned by Insert when a concurrent session has
	// already issued a code for the same customer.
	ErrAlreadyIssued = errors.New("discount code already issued for customer")
)

// Code is a single-use promotional code bound to one customer. At most one
// code exists per customer; once used it is never re-issued.
type Code struct {
	CustomerID string
	Code       string
	Used       bool
	CreatedAt  time.Time
}

// Repository defines persistence operations for discount codes. Uniqueness of
// the code value and the one-code-per-customer rule are enforced by
// storage-level constraints, not in-process locking.
type Repository interface {
	// Get returns the customer's code, or ErrNoCode when none was issued.
	Get(ctx context.Context, customerID string) (*Code, error)
	// Insert stores a freshly generated code. Returns ErrCodeCollision when
	// the code value is taken, ErrAlreadyIssued when the customer already
	// holds a code.
	Insert(ctx context.Context, customerID, code string) error
	// MarkUsed idempotently consumes the customer's code. A missing or
	// already-used code is a no-op.
	MarkUsed(ctx context.Context, customerID string) error
}
