package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- Events (EVT) ----

func ErrEventNotFound() *AppError {
	return New("EVT_001", "Event not found", http.StatusNotFound)
}

// ---- Webhooks (WH) ----

func ErrWebhookNotFound() *AppError {
	return New("WH_001", "Webhook not found", http.StatusNotFound)
}

func ErrInvalidWebhookURL() *AppError {
	return New("WH_002", "Webhook URL must be a valid http or https URL", http.StatusBadRequest)
}

func ErrEmptyEventTypes() *AppError {
	return New("WH_003", "Webhook must subscribe to at least one event type", http.StatusBadRequest)
}

// ---- Deliveries (DLV) ----

func ErrDeliveryNotFound() *AppError {
	return New("DLV_001", "Delivery not found", http.StatusNotFound)
}

// ---- Authentication (AUTH) ----

func ErrMissingAPIKey() *AppError {
	return New("AUTH_001", "Missing API key", http.StatusUnauthorized)
}

func ErrInvalidAPIKey() *AppError {
	return New("AUTH_002", "Invalid API key", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
