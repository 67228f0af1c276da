package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/product"
)

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
	ProductID     string `json:"productId,omitempty"`
	Requested     *int   `json:"requested,omitempty"`
	Available     *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:         msg,
		CorrelationID: w.Header().Get(HeaderCorrelationID),
	})
}

// statusFor maps a service failure to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrInvalidArgument), errors.Is(err, product.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrNotFound), errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInsufficientStock), errors.Is(err, cart.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrTransactionFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Unclassified errors are
// logged and replaced with a generic message.
func writeServiceError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Printf("internal error: %v", err)
		writeError(w, status, "internal error")
		return
	}
	if status == http.StatusConflict {
		logger.Printf("transaction failed: %v", err)
		writeError(w, status, "transaction failed, please retry")
		return
	}

	resp := errorResponse{
		Error:         err.Error(),
		CorrelationID: w.Header().Get(HeaderCorrelationID),
	}
	var cartErr *cart.Error
	if errors.As(err, &cartErr) && cartErr.Kind == cart.ErrInsufficientStock {
		resp.ProductID = cartErr.ProductID
		resp.Requested = &cartErr.Requested
		resp.Available = &cartErr.Available
	}
	writeJSON(w, status, resp)
}
