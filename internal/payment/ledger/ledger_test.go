package ledger

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

var nextID snowflake.ID

func txn(t domain.TransactionType, s domain.TransactionStatus, amount, currency string) domain.PaymentTransaction {
	nextID++
	d := decimal.RequireFromString(amount)
	return domain.PaymentTransaction{
		ID:                nextID,
		ExternalKey:       nextID.String(),
		TransactionType:   t,
		Status:            s,
		Amount:            d,
		Currency:          currency,
		ProcessedAmount:   d,
		ProcessedCurrency: currency,
	}
}

func withKey(t domain.PaymentTransaction, key string) domain.PaymentTransaction {
	t.ExternalKey = key
	return t
}

func TestComputeEmpty(t *testing.T) {
	got := Compute(nil)
	assert.True(t, got.AuthAmount.IsZero())
	assert.True(t, got.CapturedAmount.IsZero())
	assert.True(t, got.PurchasedAmount.IsZero())
	assert.True(t, got.CreditedAmount.IsZero())
	assert.True(t, got.RefundedAmount.IsZero())
	assert.Empty(t, got.Currency)
	assert.False(t, got.IsAuthVoided)
}

func TestComputeAuthCapture(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "200", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusSuccess, "150", "USD"),
	})
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, got.AuthAmount.Equal(decimal.RequireFromString("200")))
	assert.True(t, got.CapturedAmount.Equal(decimal.RequireFromString("150")))
	assert.False(t, got.IsAuthVoided)
}

func TestComputeVoidCancelsCapture(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "100", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusSuccess, "100", "USD"),
		txn(domain.TransactionTypeVoid, domain.TransactionStatusSuccess, "0", "USD"),
	})
	assert.True(t, got.AuthAmount.Equal(decimal.RequireFromString("100")))
	assert.True(t, got.CapturedAmount.IsZero())
	assert.False(t, got.IsAuthVoided, "void cancels the capture, not the authorization")
}

func TestComputeVoidCancelsAuth(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "100", "USD"),
		txn(domain.TransactionTypeVoid, domain.TransactionStatusSuccess, "0", "USD"),
	})
	assert.True(t, got.AuthAmount.IsZero())
	assert.True(t, got.IsAuthVoided)
}

func TestComputeVoidSkipsFailedTransactions(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "100", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusPaymentFailure, "100", "USD"),
		txn(domain.TransactionTypeVoid, domain.TransactionStatusSuccess, "0", "USD"),
	})
	assert.True(t, got.AuthAmount.IsZero(), "the void reaches past the failed capture")
	assert.True(t, got.IsAuthVoided)
}

func TestComputeOnlyFirstAuthCounts(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "50", "USD"),
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "50", "USD"),
	})
	assert.True(t, got.AuthAmount.Equal(decimal.RequireFromString("50")))
}

func TestComputeVoidedAuthExposesNext(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "50", "USD"),
		txn(domain.TransactionTypeVoid, domain.TransactionStatusSuccess, "0", "USD"),
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "30", "USD"),
	})
	assert.True(t, got.AuthAmount.Equal(decimal.RequireFromString("30")))
	assert.True(t, got.IsAuthVoided)
}

func TestComputeCapturesAndRefundsSum(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "200", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusSuccess, "120", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusSuccess, "40", "USD"),
		txn(domain.TransactionTypeRefund, domain.TransactionStatusSuccess, "50", "USD"),
	})
	assert.True(t, got.CapturedAmount.Equal(decimal.RequireFromString("160")))
	assert.True(t, got.RefundedAmount.Equal(decimal.RequireFromString("50")))
}

func TestComputeProcessedAmountPreferred(t *testing.T) {
	a := txn(domain.TransactionTypePurchase, domain.TransactionStatusSuccess, "10", "USD")
	a.ProcessedAmount = decimal.RequireFromString("9.50")
	got := Compute([]domain.PaymentTransaction{a})
	assert.True(t, got.PurchasedAmount.Equal(decimal.RequireFromString("9.50")))
}

func TestComputeProcessedCurrencyMismatchFallsBack(t *testing.T) {
	a := txn(domain.TransactionTypePurchase, domain.TransactionStatusSuccess, "10", "USD")
	a.ProcessedAmount = decimal.RequireFromString("8.70")
	a.ProcessedCurrency = "EUR"
	b := txn(domain.TransactionTypePurchase, domain.TransactionStatusSuccess, "5", "USD")
	got := Compute([]domain.PaymentTransaction{a, b})
	assert.True(t, got.PurchasedAmount.Equal(decimal.RequireFromString("15")),
		"one mismatched settlement currency falls back to requested amounts for the whole type")
}

func TestComputeCurrencyFromFirstTransaction(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusPaymentFailure, "10", "EUR"),
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "10", "USD"),
	})
	assert.Equal(t, "EUR", got.Currency, "currency comes from insertion order, not from success")
}

func TestComputeChargebackReducesCaptured(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "10", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusSuccess, "10", "USD"),
		txn(domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, "10", "USD"),
	})
	assert.True(t, got.AuthAmount.Equal(decimal.RequireFromString("10")))
	assert.True(t, got.CapturedAmount.IsZero())
}

func TestComputeChargebackReversedRestoresCaptured(t *testing.T) {
	cb := txn(domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, "10", "USD")
	reversal := txn(domain.TransactionTypeChargeback, domain.TransactionStatusPaymentFailure, "10", "USD")
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "10", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusSuccess, "10", "USD"),
		cb,
		withKey(reversal, cb.ExternalKey),
	})
	assert.True(t, got.CapturedAmount.Equal(decimal.RequireFromString("10")))
}

func TestComputeChargebackReducesPurchased(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypePurchase, domain.TransactionStatusSuccess, "10", "USD"),
		txn(domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, "10", "USD"),
	})
	assert.True(t, got.PurchasedAmount.IsZero())
}

func TestComputeMultipleChargebacksPartialReversal(t *testing.T) {
	first := txn(domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, "1", "USD")
	second := txn(domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, "1", "USD")
	reversal := txn(domain.TransactionTypeChargeback, domain.TransactionStatusPaymentFailure, "1", "USD")
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypePurchase, domain.TransactionStatusSuccess, "10", "USD"),
		first,
		second,
		withKey(reversal, first.ExternalKey),
	})
	assert.True(t, got.PurchasedAmount.Equal(decimal.RequireFromString("9")),
		"only the chargeback sharing the reversal's external key is reversed")
}

func TestComputeChargebackReversalTransaction(t *testing.T) {
	cb := txn(domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, "10", "USD")
	reversal := txn(domain.TransactionTypeChargebackReversal, domain.TransactionStatusSuccess, "10", "USD")
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypePurchase, domain.TransactionStatusSuccess, "10", "USD"),
		cb,
		withKey(reversal, cb.ExternalKey),
	})
	assert.True(t, got.PurchasedAmount.Equal(decimal.RequireFromString("10")))
}

func TestComputeChargebackDifferentCurrency(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypePurchase, domain.TransactionStatusSuccess, "10", "USD"),
		txn(domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, "1", "EUR"),
	})
	assert.True(t, got.PurchasedAmount.IsZero(),
		"a chargeback in a foreign currency zeroes the total rather than guessing a rate")
}

func TestComputeChargebackNeverNegative(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypePurchase, domain.TransactionStatusSuccess, "10", "USD"),
		txn(domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, "15", "USD"),
	})
	assert.True(t, got.PurchasedAmount.IsZero())
}

func TestComputePendingTransactionsIgnored(t *testing.T) {
	got := Compute([]domain.PaymentTransaction{
		txn(domain.TransactionTypeAuthorize, domain.TransactionStatusSuccess, "100", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusPending, "60", "USD"),
		txn(domain.TransactionTypeCapture, domain.TransactionStatusUnknown, "40", "USD"),
	})
	assert.True(t, got.CapturedAmount.IsZero())
}
