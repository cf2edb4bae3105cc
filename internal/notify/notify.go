// Package notify carries outbound notification decisions from the shop core
// to the presentation layer. The core only decides that a notification is
// due; rendering and transport belong to the external collaborator.
package notify

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Kind identifies the notification template the presentation layer should
// render.
type Kind string

const (
	// KindOrderConfirmed tells the customer their payment was verified.
	KindOrderConfirmed Kind = "order_confirmed"
	// KindOrderShipped tells the customer their order left the warehouse,
	// carrying the tracking code.
	KindOrderShipped Kind = "order_shipped"
)

// Event is one due notification.
type Event struct {
	Kind         Kind
	CustomerID   string
	OrderID      string
	TrackingCode string
	FinalPrice   decimal.Decimal
}

// Notifier delivers events to the presentation layer.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier records due notifications in the service log. It stands in for
// a real transport during development and in deployments where the
// presentation layer polls the order state instead.
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier creates a LogNotifier writing to the given logger.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg}
}

// Notify logs the event and reports success.
func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	n.lg.Info("notification due",
		zap.String("kind", string(e.Kind)),
		zap.String("customer_id", e.CustomerID),
		zap.String("order_id", e.OrderID),
		zap.String("tracking_code", e.TrackingCode),
		zap.String("final_price", e.FinalPrice.String()),
	)
	return nil
}
