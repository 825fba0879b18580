package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

func TestClassify(t *testing.T) {
	processed := &domain.PluginOutcome{Status: domain.PluginStatusProcessed}
	pending := &domain.PluginOutcome{Status: domain.PluginStatusPending}
	failed := &domain.PluginOutcome{Status: domain.PluginStatusError}
	canceled := &domain.PluginOutcome{Status: domain.PluginStatusCanceled}
	undefined := &domain.PluginOutcome{Status: domain.PluginStatusUndefined}

	tests := []struct {
		name       string
		txnType    domain.TransactionType
		outcome    *domain.PluginOutcome
		wantStatus domain.TransactionStatus
		wantState  string
	}{
		{"no answer", domain.TransactionTypeAuthorize, nil, domain.TransactionStatusPending, "AUTH_PENDING"},
		{"processed", domain.TransactionTypeAuthorize, processed, domain.TransactionStatusSuccess, "AUTH_SUCCESS"},
		{"pending", domain.TransactionTypeCapture, pending, domain.TransactionStatusPending, "CAPTURE_PENDING"},
		{"error", domain.TransactionTypePurchase, failed, domain.TransactionStatusPaymentFailure, "PURCHASE_FAILED"},
		{"canceled", domain.TransactionTypeRefund, canceled, domain.TransactionStatusPluginFailure, "REFUND_ERRORED"},
		{"undefined", domain.TransactionTypeVoid, undefined, domain.TransactionStatusUnknown, "VOID_ERRORED"},
		{"unrecognized plugin status", domain.TransactionTypeCredit, &domain.PluginOutcome{Status: "WAT"}, domain.TransactionStatusUnknown, "CREDIT_ERRORED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, stateName := Classify(tt.txnType, tt.outcome)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantState, stateName)
		})
	}
}

func TestIsSuccessState(t *testing.T) {
	assert.True(t, IsSuccessState("AUTH_SUCCESS"))
	assert.True(t, IsSuccessState("CHARGEBACK_SUCCESS"))
	assert.False(t, IsSuccessState("AUTH_PENDING"))
	assert.False(t, IsSuccessState(""))
}

func TestLastSuccessState(t *testing.T) {
	txns := []domain.PaymentTransaction{
		{ID: 1, TransactionType: domain.TransactionTypeAuthorize, Status: domain.TransactionStatusSuccess},
		{ID: 2, TransactionType: domain.TransactionTypeCapture, Status: domain.TransactionStatusSuccess},
		{ID: 3, TransactionType: domain.TransactionTypeCapture, Status: domain.TransactionStatusPending},
	}

	name, ok := LastSuccessState(txns, 0)
	assert.True(t, ok)
	assert.Equal(t, "CAPTURE_SUCCESS", name)

	name, ok = LastSuccessState(txns, 2)
	assert.True(t, ok)
	assert.Equal(t, "AUTH_SUCCESS", name, "the excluded transaction must not count itself")

	_, ok = LastSuccessState(txns[2:], 0)
	assert.False(t, ok)
}
