package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hivemarket/honeyshop/internal/audit"
	"github.com/hivemarket/honeyshop/internal/domain/cart"
	"github.com/hivemarket/honeyshop/internal/domain/customer"
	"github.com/hivemarket/honeyshop/internal/domain/discount"
	"github.com/hivemarket/honeyshop/internal/domain/product"
	"github.com/hivemarket/honeyshop/internal/notify"
)

// Rating bounds accepted by Rate.
const (
	RatingMin = 1
	RatingMax = 5
)

// Config holds the fulfillment policy knobs.
type Config struct {
	// Policy controls discount size and eligibility.
	Policy discount.Policy
	// ConfirmRequiresReceipt selects the strict confirmation policy: an
	// operator may only confirm orders that already received a receipt.
	// When false, confirmation from pending_payment is allowed and implies
	// the receipt arrived out of band.
	ConfirmRequiresReceipt bool
}

// Service owns the order lifecycle: it converts carts into immutable order
// snapshots and drives each order through the fulfillment state machine as
// external events arrive.
type Service struct {
	cfg       Config
	products  product.Repository
	carts     cart.Store
	customers customer.Repository
	codes     *discount.Ledger
	orders    Repository
	notifier  notify.Notifier
	auditor   audit.Recorder
	lg        *zap.Logger
	tracer    trace.Tracer
}

// NewService creates the fulfillment Service with the required dependencies.
func NewService(
	cfg Config,
	products product.Repository,
	carts cart.Store,
	customers customer.Repository,
	codes *discount.Ledger,
	orders Repository,
	notifier notify.Notifier,
	auditor audit.Recorder,
	lg *zap.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		products:  products,
		carts:     carts,
		customers: customers,
		codes:     codes,
		orders:    orders,
		notifier:  notifier,
		auditor:   auditor,
		lg:        lg,
		tracer:    otel.Tracer("honeyshop/order"),
	}
}

// CheckoutRequest holds the input for converting a cart into an order.
type CheckoutRequest struct {
	CustomerID   string
	DiscountCode string
	// Contact optionally updates the customer's contact fields collected
	// during the checkout conversation.
	Contact *customer.Contact
}

// CheckoutResult holds the outcome of a successful checkout.
type CheckoutResult struct {
	Order           *Order
	DiscountApplied bool
}

// Checkout snapshots the cart, applies the discount policy, and durably
// creates the order. Order insert, cart clear, and discount consumption
// happen in one storage transaction: a failure in between never leaves a
// cleared cart without an order, or a consumed code without an order. When
// two checkouts race on the same code, the guarded consume lets exactly one
// through; the loser's transaction rolls back and the checkout is redone
// without the discount.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "Checkout")
	defer span.End()

	lines, err := s.carts.List(ctx, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	items, total, err := s.snapshotItems(ctx, lines)
	if err != nil {
		return nil, err
	}

	discountAmt, appliedCode, err := s.applyDiscount(ctx, req.CustomerID, req.DiscountCode, total)
	if err != nil {
		return nil, err
	}

	if req.Contact != nil {
		if err := s.customers.UpdateContact(ctx, req.CustomerID, *req.Contact); err != nil {
			return nil, errors.Wrap(err, "update contact")
		}
	}

	o := &Order{
		ID:           uuid.New().String(),
		CustomerID:   req.CustomerID,
		Items:        items,
		TotalPrice:   total,
		DiscountCode: appliedCode,
		FinalPrice:   total.Sub(discountAmt),
		Status:       StatusPendingPayment,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.orders.CreateCheckout(ctx, o); err != nil {
		if !errors.Is(err, ErrCodeConsumed) || appliedCode == "" {
			return nil, errors.Wrap(err, "create order")
		}
		// Lost the consume race; the order was rolled back. Redo the
		// checkout at full price, the code is spent either way.
		s.lg.Info("discount code lost to concurrent checkout",
			zap.String("customer_id", req.CustomerID),
			zap.String("code", appliedCode),
		)
		appliedCode = ""
		o.DiscountCode = ""
		o.FinalPrice = o.TotalPrice
		if err := s.orders.CreateCheckout(ctx, o); err != nil {
			return nil, errors.Wrap(err, "create order")
		}
	}

	s.recordAudit(ctx, o, "order_created")
	s.lg.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("total", o.TotalPrice.String()),
		zap.String("final", o.FinalPrice.String()),
		zap.Bool("discount_applied", appliedCode != ""),
	)

	return &CheckoutResult{Order: o, DiscountApplied: appliedCode != ""}, nil
}

// snapshotItems freezes the cart lines into order items at current catalog
// prices and returns the authoritative total.
func (s *Service) snapshotItems(ctx context.Context, lines []cart.Line) ([]Item, decimal.Decimal, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, decimal.Zero, &cart.ProductNotFoundError{ProductID: l.ProductID}
		}
		items = append(items, Item{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  l.Quantity,
		})
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return items, total, nil
}

// applyDiscount returns the discount amount and the code to consume. The code
// counts only when it matches the customer's own unused code and the policy
// yields a non-zero amount; an already-used or foreign code silently yields
// no discount, matching the conversational flow where a stale code in the
// chat history must not fail checkout.
func (s *Service) applyDiscount(ctx context.Context, customerID, supplied string, total decimal.Decimal) (decimal.Decimal, string, error) {
	if supplied == "" {
		return decimal.Zero, "", nil
	}

	code, err := s.codes.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, discount.ErrNoCode) {
			return decimal.Zero, "", nil
		}
		return decimal.Zero, "", errors.Wrap(err, "lookup discount code")
	}
	if code.Used || !strings.EqualFold(code.Code, supplied) {
		return decimal.Zero, "", nil
	}

	amount := s.cfg.Policy.Amount(total)
	if amount.IsZero() {
		// Below the eligibility threshold; keep the code unused.
		return decimal.Zero, "", nil
	}
	return amount, code.Code, nil
}

// SubmitReceipt records the customer's payment receipt reference. Valid only
// while the order is pending payment; duplicate submissions after that are
// rejected, not overwritten.
func (s *Service) SubmitReceipt(ctx context.Context, orderID, receiptRef string) (*Order, error) {
	if receiptRef == "" {
		return nil, ErrEmptyReceiptRef
	}

	ok, err := s.orders.SubmitReceipt(ctx, orderID, receiptRef)
	if err != nil {
		return nil, errors.Wrap(err, "submit receipt")
	}
	if !ok {
		return nil, s.invalidState(ctx, orderID, StatusReceiptSubmitted)
	}
	return s.finishTransition(ctx, orderID, "receipt_submitted", nil)
}

// ConfirmPayment marks the order's payment as verified by an operator. Under
// the strict policy only receipt_submitted orders qualify; the relaxed policy
// additionally accepts pending_payment. On success the customer is notified.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (*Order, error) {
	from := []Status{StatusReceiptSubmitted}
	if !s.cfg.ConfirmRequiresReceipt {
		from = append(from, StatusPendingPayment)
	}

	ok, err := s.orders.ConfirmPayment(ctx, orderID, from)
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}
	if !ok {
		return nil, s.invalidState(ctx, orderID, StatusPaymentConfirmed)
	}
	return s.finishTransition(ctx, orderID, "payment_confirmed", func(o *Order) notify.Event {
		return notify.Event{
			Kind:       notify.KindOrderConfirmed,
			CustomerID: o.CustomerID,
			OrderID:    o.ID,
			FinalPrice: o.FinalPrice,
		}
	})
}

// AssignTracking sets the shipment tracking code and marks the order shipped.
// Valid only while payment_confirmed: an order cannot ship before payment is
// confirmed and cannot ship twice. On success the customer is notified with
// the tracking code.
func (s *Service) AssignTracking(ctx context.Context, orderID, trackingCode string) (*Order, error) {
	if trackingCode == "" {
		return nil, ErrEmptyTrackingCode
	}

	ok, err := s.orders.AssignTracking(ctx, orderID, trackingCode)
	if err != nil {
		return nil, errors.Wrap(err, "assign tracking")
	}
	if !ok {
		return nil, s.invalidState(ctx, orderID, StatusShipped)
	}
	return s.finishTransition(ctx, orderID, "shipped", func(o *Order) notify.Event {
		return notify.Event{
			Kind:         notify.KindOrderShipped,
			CustomerID:   o.CustomerID,
			OrderID:      o.ID,
			TrackingCode: o.TrackingCode,
			FinalPrice:   o.FinalPrice,
		}
	})
}

// ConfirmDelivery is invoked by the customer once the shipment arrives.
// Valid only while shipped.
func (s *Service) ConfirmDelivery(ctx context.Context, orderID string) (*Order, error) {
	ok, err := s.orders.MarkDelivered(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "confirm delivery")
	}
	if !ok {
		return nil, s.invalidState(ctx, orderID, StatusDelivered)
	}
	return s.finishTransition(ctx, orderID, "delivered", nil)
}

// Rate stores the customer's rating and feedback and moves the order to its
// terminal state. Valid only while delivered; re-rating is rejected.
func (s *Service) Rate(ctx context.Context, orderID string, rating int, feedback string) (*Order, error) {
	if rating < RatingMin || rating > RatingMax {
		return nil, &RatingOutOfRangeError{Rating: rating}
	}

	ok, err := s.orders.SetRating(ctx, orderID, rating, feedback)
	if err != nil {
		return nil, errors.Wrap(err, "rate order")
	}
	if !ok {
		return nil, s.invalidState(ctx, orderID, StatusRated)
	}
	return s.finishTransition(ctx, orderID, "rated", nil)
}

// Get returns the order snapshot for display and tracking.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// invalidState builds the InvalidStateError for a lost compare-and-set,
// naming the order's current state. A missing order surfaces as ErrNotFound.
func (s *Service) invalidState(ctx context.Context, orderID string, attempted Status) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "read order state")
	}
	return &InvalidStateError{OrderID: orderID, Current: o.Status, Attempted: attempted}
}

// finishTransition re-reads the order after a won compare-and-set, records
// the audit entry, and emits the notification when due. Audit and notifier
// failures are logged, never failing an already-committed transition.
func (s *Service) finishTransition(ctx context.Context, orderID, event string, eventFor func(*Order) notify.Event) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "read order after transition")
	}

	s.recordAudit(ctx, o, event)

	if eventFor != nil {
		if err := s.notifier.Notify(ctx, eventFor(o)); err != nil {
			s.lg.Warn("notification delivery failed",
				zap.String("order_id", o.ID),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}

	s.lg.Info("order transitioned",
		zap.String("order_id", o.ID),
		zap.String("status", o.Status.String()),
	)
	return o, nil
}

func (s *Service) recordAudit(ctx context.Context, o *Order, event string) {
	err := s.auditor.Record(ctx, audit.Entry{
		Event:            event,
		OrderID:          o.ID,
		CustomerID:       o.CustomerID,
		Status:           o.Status.String(),
		TotalPrice:       o.TotalPrice,
		FinalPrice:       o.FinalPrice,
		DiscountCode:     o.DiscountCode,
		ReceiptReference: o.ReceiptReference,
		TrackingCode:     o.TrackingCode,
		Rating:           o.Rating,
		At:               time.Now().UTC(),
	})
	if err != nil {
		s.lg.Warn("audit record failed",
			zap.String("order_id", o.ID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
