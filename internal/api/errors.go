package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/hivemarket/honeyshop/internal/domain/cart"
	"github.com/hivemarket/honeyshop/internal/domain/order"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Code: status, Message: msg})
}

// respondDomainError maps domain errors onto HTTP statuses. Unexpected
// errors are logged and surfaced as retryable 500s so the caller knows the
// operation did not happen.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pnfErr   *cart.ProductNotFoundError
		stateErr *order.InvalidStateError
		rateErr  *order.RatingOutOfRangeError
	)

	switch {
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrEmptyReceiptRef),
		errors.Is(err, order.ErrEmptyTrackingCode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rateErr):
		respondError(w, http.StatusBadRequest, rateErr.Error())
	case errors.Is(err, order.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &stateErr):
		respondError(w, http.StatusConflict, stateErr.Error())
	case errors.As(err, &pnfErr):
		respondError(w, http.StatusUnprocessableEntity, pnfErr.Error())
	default:
		zctx.From(r.Context()).Error("internal error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error, retry later")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
