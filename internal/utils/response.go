package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-storefront/internal/models"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) error {
	return WriteJSON(w, status, SuccessResponse(message, data))
}

// WriteError picks the status from err and writes the error envelope.
func WriteError(w http.ResponseWriter, message string, err error) int {
	status := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		detail = http.StatusText(status)
	}
	_ = WriteJSON(w, status, ErrorResponse(message, detail))
	return status
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrInvalidBuyerData), errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrPromoNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrOrderNotPending),
		errors.Is(err, models.ErrOrderAlreadyCancelled),
		errors.Is(err, models.ErrOrderNotExpired),
		errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrTicketAlreadyCheckedIn),
		errors.Is(err, models.ErrInUse):
		return http.StatusConflict
	case errors.Is(err, models.ErrPromoNotYetValid),
		errors.Is(err, models.ErrPromoExpired),
		errors.Is(err, models.ErrPromoExhausted),
		errors.Is(err, models.ErrTicketNotUsable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
