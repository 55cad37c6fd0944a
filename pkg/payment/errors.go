package payment

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Callers match with errors.Is; wrapped errors carry the detail.
var (
	ErrConfiguration     = errors.New("payment gateway not configured")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrSignature         = errors.New("invalid webhook signature")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrProvider          = errors.New("payment provider unavailable")
)

// ErrTransactionMissing is returned when a webhook references an unknown payment.
var ErrTransactionMissing = fmt.Errorf("%w: payment record missing", ErrNotFound)

// ProviderError describes a non-success answer from a provider API.
// It is logged in full and never returned to HTTP callers.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

// HTTPStatus maps an error kind onto the status code surfaced to callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show to a client or provider for err.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrSignature), errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrInsufficientFunds):
		return err.Error()
	case errors.Is(err, ErrConfiguration):
		return "payment gateway is not configured"
	default:
		return "payment could not be processed, please try again later"
	}
}
