package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-raffle/internal/models"
	"ms-raffle/internal/payment"
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

// StatusForError maps domain and gateway errors to an HTTP status and a
// short message for the response envelope.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, payment.ErrInvalidNotification):
		return http.StatusBadRequest, "Invalid notification"
	case errors.Is(err, models.ErrNumberTaken):
		return http.StatusConflict, "Number already taken"
	case errors.Is(err, models.ErrTicketAlreadyPaid):
		return http.StatusConflict, "Ticket already paid"
	case errors.Is(err, models.ErrTicketNotFound):
		return http.StatusNotFound, "Ticket not found"
	case errors.Is(err, models.ErrAllocationExhausted):
		return http.StatusServiceUnavailable, "No available number found, try again"
	case payment.IsConfigurationError(err):
		return http.StatusInternalServerError, "Payment gateway is not configured"
	case payment.IsGatewayError(err):
		return http.StatusBadGateway, "Payment gateway error"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

func WriteError(w http.ResponseWriter, err error) {
	status, message := StatusForError(err)
	WriteJSON(w, status, ErrorResponse(message, err.Error()))
}
