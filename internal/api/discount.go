package api

import "net/http"

type discountCodeResponse struct {
	Code string `json:"code"`
	Used bool   `json:"used"`
}

// GetDiscountCode returns the customer's discount code, issuing one on first
// request.
func (h *Handler) GetDiscountCode(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")

	code, err := h.codes.GetOrIssue(r.Context(), customerID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	used, err := h.codes.IsUsed(r.Context(), customerID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, discountCodeResponse{Code: code, Used: used})
}
