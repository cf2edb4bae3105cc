package api

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type cartLineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartResponse struct {
	Items []cartLineResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// GetCart returns the cart lines and the current total estimate.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")

	lines, err := h.carts.List(r.Context(), customerID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	total, err := h.carts.Total(r.Context(), customerID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	items := make([]cartLineResponse, 0, len(lines))
	for _, l := range lines {
		items = append(items, cartLineResponse{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	respondJSON(w, http.StatusOK, cartResponse{Items: items, Total: total})
}

// AddCartItem adds a product to the cart, incrementing the line when it
// already exists.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")

	var req addCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	if err := h.carts.Add(r.Context(), customerID, req.ProductID, req.Quantity); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IncrementCartItem bumps a cart line by one.
func (h *Handler) IncrementCartItem(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")
	productID := r.PathValue("productID")

	if err := h.carts.Increment(r.Context(), customerID, productID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DecrementCartItem lowers a cart line by one, removing it at zero.
func (h *Handler) DecrementCartItem(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")
	productID := r.PathValue("productID")

	if err := h.carts.Decrement(r.Context(), customerID, productID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveCartItem deletes a cart line unconditionally.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")
	productID := r.PathValue("productID")

	if err := h.carts.Remove(r.Context(), customerID, productID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
