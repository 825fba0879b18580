package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAccount         = errors.New("invalid_account")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidCurrency        = errors.New("invalid_currency")
	ErrInvalidExternalKey     = errors.New("invalid_external_key")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrInvalidPaymentMethod   = errors.New("invalid_payment_method")

	ErrPaymentNotFound     = errors.New("payment_not_found")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrAttemptNotFound     = errors.New("attempt_not_found")
	ErrPluginNotFound      = errors.New("plugin_not_found")

	// ErrSuccessImmutable guards a SUCCESS transaction's processed amount.
	ErrSuccessImmutable = errors.New("success_transaction_immutable")

	// ErrPaymentLocked means another call holds the per-payment serialization
	// lock; the caller should retry.
	ErrPaymentLocked = errors.New("payment_locked")

	// ErrAborted is the sentinel matched by errors.Is for control-plugin
	// aborts; the concrete error is an *AbortError naming the plugin.
	ErrAborted = errors.New("aborted_by_control_plugin")
)

// AbortError reports which control plugin aborted the operation before the
// core operation ran.
type AbortError struct {
	PluginName string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted by plugin %s", e.PluginName)
}

func (e *AbortError) Is(target error) bool {
	return target == ErrAborted
}
