// Package api exposes the shop core over a thin JSON HTTP surface used by
// the out-of-process presentation layer and the operator console.
package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/hivemarket/honeyshop/internal/domain/cart"
	"github.com/hivemarket/honeyshop/internal/domain/discount"
	"github.com/hivemarket/honeyshop/internal/domain/order"
	"github.com/hivemarket/honeyshop/internal/domain/product"
)

// Handler serves the shop API, delegating all business logic to the domain
// services.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	codes    *discount.Ledger
	orders   *order.Service

	ordersPlaced metric.Int64Counter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	codes *discount.Ledger,
	orders *order.Service,
) (*Handler, error) {
	meter := otel.Meter("honeyshop/api")
	ordersPlaced, err := meter.Int64Counter("shop.orders.placed",
		metric.WithDescription("Number of orders created via checkout"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}

	return &Handler{
		products:     products,
		carts:        carts,
		codes:        codes,
		orders:       orders,
		ordersPlaced: ordersPlaced,
	}, nil
}

// Register installs all API routes on mux. Operator-only routes are wrapped
// with the given auth middleware.
func (h *Handler) Register(mux *http.ServeMux, operator func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/products", h.ListProducts)

	mux.HandleFunc("GET /api/customers/{customerID}/cart", h.GetCart)
	mux.HandleFunc("POST /api/customers/{customerID}/cart/items", h.AddCartItem)
	mux.HandleFunc("POST /api/customers/{customerID}/cart/items/{productID}/increment", h.IncrementCartItem)
	mux.HandleFunc("POST /api/customers/{customerID}/cart/items/{productID}/decrement", h.DecrementCartItem)
	mux.HandleFunc("DELETE /api/customers/{customerID}/cart/items/{productID}", h.RemoveCartItem)

	mux.HandleFunc("GET /api/customers/{customerID}/discount-code", h.GetDiscountCode)
	mux.HandleFunc("POST /api/customers/{customerID}/checkout", h.Checkout)

	mux.HandleFunc("GET /api/orders/{orderID}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{orderID}/receipt", h.SubmitReceipt)
	mux.HandleFunc("POST /api/orders/{orderID}/delivery", h.ConfirmDelivery)
	mux.HandleFunc("POST /api/orders/{orderID}/rating", h.RateOrder)

	mux.Handle("POST /api/orders/{orderID}/confirm", operator(http.HandlerFunc(h.ConfirmPayment)))
	mux.Handle("POST /api/orders/{orderID}/tracking", operator(http.HandlerFunc(h.AssignTracking)))
}
