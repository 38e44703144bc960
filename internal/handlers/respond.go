package handlers

import (
	"github.com/labstack/echo/v4"
)

// Stable error kinds surfaced to clients. Internal failures never leak
// details, they map to ErrInternal with a generic message.
const (
	ErrNotFound              = "not_found"
	ErrInvalidInput          = "invalid_input"
	ErrInsufficientInventory = "insufficient_inventory"
	ErrEmptyCart             = "empty_cart"
	ErrPaymentAuthFailed     = "payment_auth_failed"
	ErrSignatureInvalid      = "signature_invalid"
	ErrConflict              = "conflict"
	ErrInternal              = "internal_error"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func fail(c echo.Context, code int, kind, message string) error {
	return c.JSON(code, ErrorResponse{Error: kind, Message: message})
}
