package cart

import (
	"context"
)

// Line is one mutable cart row. Quantity is always >= 1; a line whose
// quantity would drop to zero is removed by the store, never retained.
type Line struct {
	CustomerID string
	ProductID  string
	Quantity   int
}

// Store holds the in-progress cart for each customer, one mutable cart per
// customer at a time. Every mutation is a single atomic storage operation so
// near-simultaneous events for the same customer (double-tapped buttons)
// cannot corrupt a line.
type Store interface {
	// Add appends a line or increments the existing one by qty.
	Add(ctx context.Context, customerID, productID string, qty int) error
	// Increment bumps an existing line by one. Missing line is a no-op.
	Increment(ctx context.Context, customerID, productID string) error
	// Decrement lowers a line by one, removing it entirely when the quantity
	// would drop to zero or below.
	Decrement(ctx context.Context, customerID, productID string) error
	// Remove deletes the line unconditionally. Missing line is a no-op.
	Remove(ctx context.Context, customerID, productID string) error
	// List returns the customer's lines in insertion order.
	List(ctx context.Context, customerID string) ([]Line, error)
	// Clear empties the cart. Called only after the checkout order snapshot
	// has been durably created.
	Clear(ctx context.Context, customerID string) error
}
