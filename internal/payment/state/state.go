// Package state maps raw gateway outcomes onto transaction statuses and the
// persisted state-name vocabulary (AUTH_SUCCESS, CAPTURE_PENDING, ...).
package state

import (
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// Classify turns a plugin outcome into the status and state name recorded on
// the transaction. A nil outcome means the plugin never answered (timeout,
// transport failure): the transaction is PENDING and the janitor owns it.
func Classify(transactionType domain.TransactionType, outcome *domain.PluginOutcome) (domain.TransactionStatus, string) {
	prefix := Prefix(transactionType)
	if outcome == nil {
		return domain.TransactionStatusPending, prefix + "_PENDING"
	}
	switch outcome.Status {
	case domain.PluginStatusProcessed:
		return domain.TransactionStatusSuccess, prefix + "_SUCCESS"
	case domain.PluginStatusPending:
		return domain.TransactionStatusPending, prefix + "_PENDING"
	case domain.PluginStatusError:
		return domain.TransactionStatusPaymentFailure, prefix + "_FAILED"
	case domain.PluginStatusCanceled:
		return domain.TransactionStatusPluginFailure, prefix + "_ERRORED"
	default:
		return domain.TransactionStatusUnknown, prefix + "_ERRORED"
	}
}

// Prefix returns the state-name prefix for a transaction type. AUTHORIZE
// abbreviates to AUTH; every other type is its own prefix.
func Prefix(transactionType domain.TransactionType) string {
	if transactionType == domain.TransactionTypeAuthorize {
		return "AUTH"
	}
	return string(transactionType)
}

// IsSuccessState reports whether a state name records a successful step.
func IsSuccessState(stateName string) bool {
	return strings.HasSuffix(stateName, "_SUCCESS")
}

// LastSuccessState scans the transactions in reverse insertion order and
// returns the state name of the most recent successful one, skipping
// excludeID so a transaction being corrected does not count itself. The
// second return is false when no prior success exists.
func LastSuccessState(transactions []domain.PaymentTransaction, excludeID snowflake.ID) (string, bool) {
	for i := len(transactions) - 1; i >= 0; i-- {
		txn := transactions[i]
		if txn.ID == excludeID {
			continue
		}
		if txn.Status == domain.TransactionStatusSuccess {
			return Prefix(txn.TransactionType) + "_SUCCESS", true
		}
	}
	return "", false
}
