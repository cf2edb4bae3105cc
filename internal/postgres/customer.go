package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hivemarket/honeyshop/internal/domain/customer"
)

const (
	ensureCustomerSQL = `INSERT INTO customers (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`

	// Empty fields leave the stored value untouched.
	updateContactSQL = `UPDATE customers SET
		first_name   = COALESCE(NULLIF($2, ''), first_name),
		last_name    = COALESCE(NULLIF($3, ''), last_name),
		city         = COALESCE(NULLIF($4, ''), city),
		address      = COALESCE(NULLIF($5, ''), address),
		phone_mobile = COALESCE(NULLIF($6, ''), phone_mobile),
		phone_fixed  = COALESCE(NULLIF($7, ''), phone_fixed),
		postal_code  = COALESCE(NULLIF($8, ''), postal_code)
		WHERE id = $1`

	getCustomerSQL = `SELECT id, first_name, last_name, city, address,
		phone_mobile, phone_fixed, postal_code, created_at
		FROM customers WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Ensure creates the customer row on first interaction. Concurrent calls for
// the same ID are safe; the conflict clause makes the insert idempotent.
func (r *CustomerRepository) Ensure(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, ensureCustomerSQL, id)
	if err != nil {
		return fmt.Errorf("ensuring customer %q: %w", id, err)
	}
	return nil
}

// UpdateContact overwrites the non-empty contact fields for the customer.
func (r *CustomerRepository) UpdateContact(ctx context.Context, id string, c customer.Contact) error {
	_, err := r.pool.Exec(ctx, updateContactSQL, id,
		c.FirstName, c.LastName, c.City, c.Address,
		c.PhoneMobile, c.PhoneFixed, c.PostalCode,
	)
	if err != nil {
		return fmt.Errorf("updating contact for customer %q: %w", id, err)
	}
	return nil
}

// GetByID returns the customer record.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.City, &c.Address,
		&c.PhoneMobile, &c.PhoneFixed, &c.PostalCode, &c.CreatedAt,
	)
	return c, err
}
