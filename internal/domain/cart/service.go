package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/hivemarket/honeyshop/internal/domain/customer"
	"github.com/hivemarket/honeyshop/internal/domain/product"
)

// ErrInvalidQuantity is returned when an add request carries a non-positive
// quantity.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// ProductNotFoundError indicates an add request named an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Service wraps the cart Store with catalog validation and pre-checkout
// totals.
type Service struct {
	store     Store
	products  product.Repository
	customers customer.Repository
}

// NewService creates a cart Service with the required dependencies.
func NewService(store Store, products product.Repository, customers customer.Repository) *Service {
	return &Service{
		store:     store,
		products:  products,
		customers: customers,
	}
}

// Add validates the product and quantity, ensures the customer exists, and
// appends or increments the cart line.
func (s *Service) Add(ctx context.Context, customerID, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return &ProductNotFoundError{ProductID: productID}
		}
		return errors.Wrap(err, "get product")
	}

	if err := s.customers.Ensure(ctx, customerID); err != nil {
		return errors.Wrap(err, "ensure customer")
	}

	if err := s.store.Add(ctx, customerID, productID, qty); err != nil {
		return errors.Wrap(err, "add cart line")
	}
	return nil
}

// Increment bumps an existing line by one.
func (s *Service) Increment(ctx context.Context, customerID, productID string) error {
	return s.store.Increment(ctx, customerID, productID)
}

// Decrement lowers a line by one, removing it when it would reach zero.
func (s *Service) Decrement(ctx context.Context, customerID, productID string) error {
	return s.store.Decrement(ctx, customerID, productID)
}

// Remove deletes the line unconditionally.
func (s *Service) Remove(ctx context.Context, customerID, productID string) error {
	return s.store.Remove(ctx, customerID, productID)
}

// List returns the cart lines in insertion order.
func (s *Service) List(ctx context.Context, customerID string) ([]Line, error) {
	return s.store.List(ctx, customerID)
}

// Total returns the pre-checkout estimate of the cart value at current
// catalog prices. The authoritative total is frozen into the order at
// checkout time.
func (s *Service) Total(ctx context.Context, customerID string) (decimal.Decimal, error) {
	lines, err := s.store.List(ctx, customerID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "list cart")
	}
	if len(lines) == 0 {
		return decimal.Zero, nil
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get products")
	}

	priceByID := make(map[string]decimal.Decimal, len(products))
	for _, p := range products {
		priceByID[p.ID] = p.Price
	}

	total := decimal.Zero
	for _, l := range lines {
		price, ok := priceByID[l.ProductID]
		if !ok {
			// Product vanished from the catalog after it entered the cart.
			return decimal.Zero, &ProductNotFoundError{ProductID: l.ProductID}
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total, nil
}
