package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivemarket/honeyshop/internal/domain/cart"
)

const (
	addCartLineSQL = `INSERT INTO cart_items (customer_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	incrementCartLineSQL = `UPDATE cart_items SET quantity = quantity + 1
		WHERE customer_id = $1 AND product_id = $2`

	// Decrement runs as a guarded update first, falling back to deleting the
	// depleted line when no row matched. The quantity >= 2 guard re-evaluates
	// after a racing decrement commits, so the blocked statement lands on a
	// quantity-1 row as a no-match and the delete removes the line instead of
	// writing a zero quantity.
	decrementCartLineSQL = `UPDATE cart_items SET quantity = quantity - 1
		WHERE customer_id = $1 AND product_id = $2 AND quantity >= 2`

	deleteDepletedLineSQL = `DELETE FROM cart_items
		WHERE customer_id = $1 AND product_id = $2 AND quantity <= 1`

	removeCartLineSQL = `DELETE FROM cart_items
		WHERE customer_id = $1 AND product_id = $2`

	listCartSQL = `SELECT customer_id, product_id, quantity FROM cart_items
		WHERE customer_id = $1 ORDER BY added_at, product_id`

	clearCartSQL = `DELETE FROM cart_items WHERE customer_id = $1`
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL. Each mutation is
// atomic at the row level, so racing events for the same customer serialize
// on the row lock instead of corrupting quantities.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

// Add appends a line or increments the existing one by qty.
func (s *CartStore) Add(ctx context.Context, customerID, productID string, qty int) error {
	_, err := s.pool.Exec(ctx, addCartLineSQL, customerID, productID, qty)
	if err != nil {
		return fmt.Errorf("adding cart line %q/%q: %w", customerID, productID, err)
	}
	return nil
}

// Increment bumps an existing line by one. A missing line is a no-op.
func (s *CartStore) Increment(ctx context.Context, customerID, productID string) error {
	_, err := s.pool.Exec(ctx, incrementCartLineSQL, customerID, productID)
	if err != nil {
		return fmt.Errorf("incrementing cart line %q/%q: %w", customerID, productID, err)
	}
	return nil
}

// Decrement lowers a line by one, removing it when the quantity would drop to
// zero or below.
func (s *CartStore) Decrement(ctx context.Context, customerID, productID string) error {
	ct, err := s.pool.Exec(ctx, decrementCartLineSQL, customerID, productID)
	if err != nil {
		return fmt.Errorf("decrementing cart line %q/%q: %w", customerID, productID, err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := s.pool.Exec(ctx, deleteDepletedLineSQL, customerID, productID); err != nil {
			return fmt.Errorf("decrementing cart line %q/%q: %w", customerID, productID, err)
		}
	}
	return nil
}

// Remove deletes the line unconditionally.
func (s *CartStore) Remove(ctx context.Context, customerID, productID string) error {
	_, err := s.pool.Exec(ctx, removeCartLineSQL, customerID, productID)
	if err != nil {
		return fmt.Errorf("removing cart line %q/%q: %w", customerID, productID, err)
	}
	return nil
}

// List returns the customer's lines in insertion order.
func (s *CartStore) List(ctx context.Context, customerID string) ([]cart.Line, error) {
	rows, err := s.pool.Query(ctx, listCartSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing cart for %q: %w", customerID, err)
	}

	var lines []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.CustomerID, &l.ProductID, &l.Quantity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning cart line for %q: %w", customerID, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing cart for %q: %w", customerID, err)
	}
	return lines, nil
}

// Clear empties the cart.
func (s *CartStore) Clear(ctx context.Context, customerID string) error {
	_, err := s.pool.Exec(ctx, clearCartSQL, customerID)
	if err != nil {
		return fmt.Errorf("clearing cart for %q: %w", customerID, err)
	}
	return nil
}
