package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer record does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer holds the shop's view of a chat user. The ID is the opaque
// identifier assigned by the presentation layer; contact fields are filled in
// lazily during checkout and may stay empty forever.
type Customer struct {
	ID          string
	FirstName   string
	LastName    string
	City        string
	Address     string
	PhoneMobile string
	PhoneFixed  string
	PostalCode  string
	CreatedAt   time.Time
}

// Contact carries the optional contact fields a customer may supply during
// checkout. Empty fields leave the stored value untouched.
type Contact struct {
	FirstName   string
	LastName    string
	City        string
	Address     string
	PhoneMobile string
	PhoneFixed  string
	PostalCode  string
}

// Repository defines persistence operations for customers. Customers are
// created on first interaction and never deleted.
type Repository interface {
	// Ensure creates the customer row if it does not exist yet. Safe to call
	// concurrently for the same ID.
	Ensure(ctx context.Context, id string) error
	// UpdateContact overwrites the non-empty contact fields for the customer.
	UpdateContact(ctx context.Context, id string, c Contact) error
	GetByID(ctx context.Context, id string) (*Customer, error)
}
