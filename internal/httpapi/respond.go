package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/safar/go-sql-marketplace/internal/orders"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
	// Orders lists what a failed multi-seller checkout still committed.
	Orders []models.Order `json:"orders,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondServiceError maps domain and storage errors to HTTP statuses.
// Anything unrecognised is logged and hidden behind a 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var checkoutErr *orders.CheckoutError
	if errors.As(err, &checkoutErr) {
		resp.Orders = checkoutErr.Committed
	}
	var validationErr *orders.ValidationError
	if errors.As(err, &validationErr) {
		resp.Fields = validationErr.Fields
	}

	switch {
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrSellerNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, orders.ErrForbidden):
		status, resp.Code = http.StatusForbidden, "forbidden"
	case errors.Is(err, orders.ErrInvalidTransition):
		status, resp.Code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, database.ErrInsufficientStock):
		status, resp.Code = http.StatusConflict, "insufficient_stock"
	case errors.Is(err, database.ErrOptimisticLockFailed):
		status, resp.Code = http.StatusConflict, "concurrent_update"
	case errors.Is(err, orders.ErrInvalidRequest):
		status, resp.Code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		status, resp.Code = http.StatusGatewayTimeout, "timeout"
	default:
		resp.Code = "internal_error"
	}

	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		if checkoutErr == nil {
			resp.Error = "internal server error"
		}
	}

	respondJSON(w, status, resp)
}
