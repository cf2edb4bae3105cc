package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hivemarket/honeyshop/internal/domain/customer"
	"github.com/hivemarket/honeyshop/internal/domain/order"
)

type orderItemResponse struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	CustomerID       string              `json:"customer_id"`
	Items            []orderItemResponse `json:"items"`
	TotalPrice       decimal.Decimal     `json:"total_price"`
	DiscountCode     string              `json:"discount_code,omitempty"`
	FinalPrice       decimal.Decimal     `json:"final_price"`
	ReceiptReference string              `json:"receipt_reference,omitempty"`
	Status           string              `json:"status"`
	TrackingCode     string              `json:"tracking_code,omitempty"`
	Rating           *int                `json:"rating,omitempty"`
	Feedback         string              `json:"feedback,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return orderResponse{
		ID:               o.ID,
		CustomerID:       o.CustomerID,
		Items:            items,
		TotalPrice:       o.TotalPrice,
		DiscountCode:     o.DiscountCode,
		FinalPrice:       o.FinalPrice,
		ReceiptReference: o.ReceiptReference,
		Status:           o.Status.String(),
		TrackingCode:     o.TrackingCode,
		Rating:           o.Rating,
		Feedback:         o.Feedback,
		CreatedAt:        o.CreatedAt,
	}
}

type contactRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	City        string `json:"city"`
	Address     string `json:"address"`
	PhoneMobile string `json:"phone_mobile"`
	PhoneFixed  string `json:"phone_fixed"`
	PostalCode  string `json:"postal_code"`
}

type checkoutRequest struct {
	DiscountCode string          `json:"discount_code,omitempty"`
	Contact      *contactRequest `json:"contact,omitempty"`
}

type checkoutResponse struct {
	Order           orderResponse `json:"order"`
	DiscountApplied bool          `json:"discount_applied"`
}

// Checkout converts the customer's cart into an order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	svcReq := order.CheckoutRequest{
		CustomerID:   customerID,
		DiscountCode: req.DiscountCode,
	}
	if req.Contact != nil {
		svcReq.Contact = &customer.Contact{
			FirstName:   req.Contact.FirstName,
			LastName:    req.Contact.LastName,
			City:        req.Contact.City,
			Address:     req.Contact.Address,
			PhoneMobile: req.Contact.PhoneMobile,
			PhoneFixed:  req.Contact.PhoneFixed,
			PostalCode:  req.Contact.PostalCode,
		}
	}

	res, err := h.orders.Checkout(r.Context(), svcReq)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	h.ordersPlaced.Add(r.Context(), 1,
		metric.WithAttributes(attribute.Bool("discount", res.DiscountApplied)),
	)
	respondJSON(w, http.StatusCreated, checkoutResponse{
		Order:           toOrderResponse(res.Order),
		DiscountApplied: res.DiscountApplied,
	})
}

// GetOrder returns the order snapshot.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("orderID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type submitReceiptRequest struct {
	ReceiptReference string `json:"receipt_reference"`
}

// SubmitReceipt records the customer's payment receipt reference.
func (h *Handler) SubmitReceipt(w http.ResponseWriter, r *http.Request) {
	var req submitReceiptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.SubmitReceipt(r.Context(), r.PathValue("orderID"), req.ReceiptReference)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

// ConfirmPayment marks the order's payment as verified. Operator only.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.ConfirmPayment(r.Context(), r.PathValue("orderID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type assignTrackingRequest struct {
	TrackingCode string `json:"tracking_code"`
}

// AssignTracking sets the shipment tracking code. Operator only.
func (h *Handler) AssignTracking(w http.ResponseWriter, r *http.Request) {
	var req assignTrackingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.AssignTracking(r.Context(), r.PathValue("orderID"), req.TrackingCode)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

// ConfirmDelivery records that the customer received the shipment.
func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.ConfirmDelivery(r.Context(), r.PathValue("orderID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

type rateOrderRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

// RateOrder stores the customer's rating and closes the order.
func (h *Handler) RateOrder(w http.ResponseWriter, r *http.Request) {
	var req rateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.Rate(r.Context(), r.PathValue("orderID"), req.Rating, req.Feedback)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}
