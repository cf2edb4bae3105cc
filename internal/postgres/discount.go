package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivemarket/honeyshop/internal/domain/discount"
)

const (
	getDiscountCodeSQL = `SELECT customer_id, code, used, created_at
		FROM discount_codes WHERE customer_id = $1`

	insertDiscountCodeSQL = `INSERT INTO discount_codes (customer_id, code) VALUES ($1, $2)`

	markCodeUsedSQL = `UPDATE discount_codes SET used = TRUE WHERE customer_id = $1`
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
// Code uniqueness and the one-code-per-customer rule map directly onto the
// table's UNIQUE and PRIMARY KEY constraints.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// Get returns the customer's code, or discount.ErrNoCode when none exists.
func (r *DiscountRepository) Get(ctx context.Context, customerID string) (*discount.Code, error) {
	rows, err := r.pool.Query(ctx, getDiscountCodeSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("getting discount code for %q: %w", customerID, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanDiscountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNoCode
		}
		return nil, fmt.Errorf("getting discount code for %q: %w", customerID, err)
	}
	return &c, nil
}

// Insert stores a freshly generated code, translating constraint violations
// into the ledger's sentinel errors.
func (r *DiscountRepository) Insert(ctx context.Context, customerID, code string) error {
	_, err := r.pool.Exec(ctx, insertDiscountCodeSQL, customerID, code)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "discount_codes_pkey" {
				return discount.ErrAlreadyIssued
			}
			return discount.ErrCodeCollision
		}
		return fmt.Errorf("inserting discount code for %q: %w", customerID, err)
	}
	return nil
}

// MarkUsed idempotently consumes the customer's code. Updating a missing or
// already-used row affects nothing and is not an error.
func (r *DiscountRepository) MarkUsed(ctx context.Context, customerID string) error {
	_, err := r.pool.Exec(ctx, markCodeUsedSQL, customerID)
	if err != nil {
		return fmt.Errorf("marking discount code used for %q: %w", customerID, err)
	}
	return nil
}

func scanDiscountCode(row pgx.CollectableRow) (discount.Code, error) {
	var c discount.Code
	err := row.Scan(&c.CustomerID, &c.Code, &c.Used, &c.CreatedAt)
	return c, err
}
