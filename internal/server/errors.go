package server

import (
	"errors"
	"net/http"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAccount),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrInvalidExternalKey),
		errors.Is(err, domain.ErrInvalidTransactionType),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrPluginNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAborted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPaymentLocked),
		errors.Is(err, domain.ErrSuccessImmutable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
