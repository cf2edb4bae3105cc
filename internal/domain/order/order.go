package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order. States advance monotonically;
// no transition ever moves an order backward.
type Status string

const (
	// StatusPendingPayment is the initial state after checkout.
	StatusPendingPayment Status = "pending_payment"
	// StatusReceiptSubmitted means the customer uploaded a payment receipt.
	StatusReceiptSubmitted Status = "receipt_submitted"
	// StatusPaymentConfirmed means an operator verified the receipt.
	StatusPaymentConfirmed Status = "payment_confirmed"
	// StatusShipped means a tracking code was assigned.
	StatusShipped Status = "shipped"
	// StatusDelivered means the customer confirmed delivery.
	StatusDelivered Status = "delivered"
	// StatusRated is the terminal state after the customer left a rating.
	StatusRated Status = "rated"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

var statusRank = map[Status]int{
	StatusPendingPayment:   0,
	StatusReceiptSubmitted: 1,
	StatusPaymentConfirmed: 2,
	StatusShipped:          3,
	StatusDelivered:        4,
	StatusRated:            5,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Before reports whether s precedes other in the fulfillment sequence.
func (s Status) Before(other Status) bool {
	return statusRank[s] < statusRank[other]
}

// Item is one line of an order's immutable cart snapshot. Name and unit price
// are frozen at checkout time so later catalog changes never affect the order.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Order is the durable record of a finalized checkout. Created exactly once,
// mutated only through the fulfillment state machine, never deleted.
type Order struct {
	ID               string
	CustomerID       string
	Items            []Item
	TotalPrice       decimal.Decimal
	DiscountCode     string
	FinalPrice       decimal.Decimal
	ReceiptReference string
	Status           Status
	AdminConfirmed   bool
	TrackingCode     string
	Shipped          bool
	Delivered        bool
	Rating           *int
	Feedback         string
	CreatedAt        time.Time
}

// Repository defines persistence operations for orders. Every transition
// method is a storage-level compare-and-set: the precondition check and the
// state write are one atomic operation, and the boolean result reports
// whether this call won the transition. A false result with a nil error means
// the order was not in the required state (or does not exist).
type Repository interface {
	// CreateCheckout persists the order, clears the customer's cart, and,
	// when the order carries a discount code, consumes that code, all inside
	// a single transaction so a crash can never clear a cart without an order
	// or consume a code without an order. The consume is itself a
	// compare-and-set guarded on the code being unused: when a concurrent
	// checkout consumed it first, nothing is written and ErrCodeConsumed is
	// returned.
	CreateCheckout(ctx context.Context, o *Order) error

	// GetByID returns the order, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)

	SubmitReceipt(ctx context.Context, id, receiptRef string) (bool, error)
	ConfirmPayment(ctx context.Context, id string, from []Status) (bool, error)
	AssignTracking(ctx context.Context, id, trackingCode string) (bool, error)
	MarkDelivered(ctx context.Context, id string) (bool, error)
	SetRating(ctx context.Context, id string, rating int, feedback string) (bool, error)
}
