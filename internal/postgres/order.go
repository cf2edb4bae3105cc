package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivemarket/honeyshop/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, customer_id, items, total_price,
		discount_code, final_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	// The used = FALSE guard makes the consume a compare-and-set: of two
	// checkouts racing on the same code, only one update matches a row.
	consumeOrderCodeSQL = `UPDATE discount_codes SET used = TRUE
		WHERE customer_id = $1 AND code = $2 AND used = FALSE`

	getOrderSQL = `SELECT id, customer_id, items, total_price, discount_code,
		final_price, receipt_reference, status, admin_confirmed, tracking_code,
		shipped, delivered, rating, feedback, created_at
		FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, customer_id, items, total_price, discount_code,
		final_price, receipt_reference, status, admin_confirmed, tracking_code,
		shipped, delivered, rating, feedback, created_at
		FROM orders ORDER BY created_at, id`

	// Transition statements: the WHERE clause on status makes each one a
	// compare-and-set, linearizing racing transitions on the row lock.
	submitReceiptSQL = `UPDATE orders SET receipt_reference = $2, status = 'receipt_submitted'
		WHERE id = $1 AND status = 'pending_payment'`

	confirmPaymentSQL = `UPDATE orders SET status = 'payment_confirmed', admin_confirmed = TRUE
		WHERE id = $1 AND status = ANY($2)`

	assignTrackingSQL = `UPDATE orders SET tracking_code = $2, status = 'shipped', shipped = TRUE
		WHERE id = $1 AND status = 'payment_confirmed'`

	markDeliveredSQL = `UPDATE orders SET status = 'delivered', delivered = TRUE
		WHERE id = $1 AND status = 'shipped'`

	setRatingSQL = `UPDATE orders SET rating = $2, feedback = $3, status = 'rated'
		WHERE id = $1 AND status = 'delivered'`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateCheckout persists the order snapshot, clears the customer's cart,
// and consumes the discount code when one was applied, all in a single
// transaction so no crash can separate the three effects.
func (r *OrderRepository) CreateCheckout(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, itemsJSON, o.TotalPrice,
		o.DiscountCode, o.FinalPrice, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	if _, err := tx.Exec(ctx, clearCartSQL, o.CustomerID); err != nil {
		return fmt.Errorf("clearing cart for order %q: %w", o.ID, err)
	}

	if o.DiscountCode != "" {
		ct, err := tx.Exec(ctx, consumeOrderCodeSQL, o.CustomerID, o.DiscountCode)
		if err != nil {
			return fmt.Errorf("consuming discount code for order %q: %w", o.ID, err)
		}
		if ct.RowsAffected() == 0 {
			// A concurrent checkout consumed the code after we read it as
			// unused. The deferred rollback discards the order insert and the
			// cart clear.
			return order.ErrCodeConsumed
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns every order in creation order. Used by the export tool.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// SubmitReceipt records the receipt reference while the order is pending
// payment. Reports whether this call won the transition.
func (r *OrderRepository) SubmitReceipt(ctx context.Context, id, receiptRef string) (bool, error) {
	ct, err := r.pool.Exec(ctx, submitReceiptSQL, id, receiptRef)
	if err != nil {
		return false, fmt.Errorf("submitting receipt for order %q: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// ConfirmPayment advances the order to payment_confirmed from any of the
// given states.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, id string, from []order.Status) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	ct, err := r.pool.Exec(ctx, confirmPaymentSQL, id, states)
	if err != nil {
		return false, fmt.Errorf("confirming payment for order %q: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// AssignTracking sets the tracking code and marks the order shipped.
func (r *OrderRepository) AssignTracking(ctx context.Context, id, trackingCode string) (bool, error) {
	ct, err := r.pool.Exec(ctx, assignTrackingSQL, id, trackingCode)
	if err != nil {
		return false, fmt.Errorf("assigning tracking for order %q: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkDelivered advances a shipped order to delivered.
func (r *OrderRepository) MarkDelivered(ctx context.Context, id string) (bool, error) {
	ct, err := r.pool.Exec(ctx, markDeliveredSQL, id)
	if err != nil {
		return false, fmt.Errorf("marking order %q delivered: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// SetRating stores rating and feedback and moves the order to its terminal
// state.
func (r *OrderRepository) SetRating(ctx context.Context, id string, rating int, feedback string) (bool, error) {
	ct, err := r.pool.Exec(ctx, setRatingSQL, id, rating, feedback)
	if err != nil {
		return false, fmt.Errorf("rating order %q: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		status    string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &itemsJSON, &o.TotalPrice, &o.DiscountCode,
		&o.FinalPrice, &o.ReceiptReference, &status, &o.AdminConfirmed,
		&o.TrackingCode, &o.Shipped, &o.Delivered, &o.Rating, &o.Feedback,
		&o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items for order %q: %w", o.ID, err)
	}
	return o, nil
}
