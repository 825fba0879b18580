// Package ledger derives a payment's monetary totals from its ordered
// transaction list. Compute is a pure function: no hidden state, a defined
// answer (including zero) for every input, and it never errors. This matters
// because reconciliation re-derives totals from scratch after correcting a
// transaction.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/smallbiznis/paycore/internal/money"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// Compute walks the transaction list and returns the derived totals.
//
// Void matching is a stack problem: walking in reverse, each successful VOID
// cancels the nearest preceding successful transaction that is not itself
// cancelled. Cancelled transactions are excluded from every total; a
// cancelled AUTHORIZE flips IsAuthVoided.
func Compute(transactions []domain.PaymentTransaction) domain.PaymentAmounts {
	out := domain.PaymentAmounts{
		AuthAmount:      decimal.Zero,
		CapturedAmount:  decimal.Zero,
		PurchasedAmount: decimal.Zero,
		CreditedAmount:  decimal.Zero,
		RefundedAmount:  decimal.Zero,
	}

	// Payment currency comes from the first transaction, in insertion order,
	// that carries one.
	for _, txn := range transactions {
		if txn.Currency != "" {
			out.Currency = txn.Currency
			break
		}
	}

	// Partition successful transactions into active and voided, scanning in
	// reverse so each VOID cancels the most recent not-yet-cancelled entry.
	pendingVoids := 0
	activeIdx := make([]int, 0, len(transactions))
	for i := len(transactions) - 1; i >= 0; i-- {
		txn := transactions[i]
		if txn.Status != domain.TransactionStatusSuccess {
			continue
		}
		switch {
		case txn.TransactionType == domain.TransactionTypeVoid:
			pendingVoids++
		case pendingVoids > 0:
			pendingVoids--
			if txn.TransactionType == domain.TransactionTypeAuthorize {
				out.IsAuthVoided = true
			}
		default:
			activeIdx = append(activeIdx, i)
		}
	}

	// Restore insertion order for the summations below.
	active := make([]domain.PaymentTransaction, 0, len(activeIdx))
	for i := len(activeIdx) - 1; i >= 0; i-- {
		active = append(active, transactions[activeIdx[i]])
	}

	out.AuthAmount = amountForType(active, domain.TransactionTypeAuthorize, true)
	out.CapturedAmount = amountForType(active, domain.TransactionTypeCapture, false)
	out.PurchasedAmount = amountForType(active, domain.TransactionTypePurchase, false)
	out.CreditedAmount = amountForType(active, domain.TransactionTypeCredit, false)
	out.RefundedAmount = amountForType(active, domain.TransactionTypeRefund, false)

	applyChargebacks(&out, transactions, active)

	return out
}

// amountForType sums the active transactions of one type. Processed amounts
// are used only when every summed transaction settled in its own requested
// currency; any mismatch falls back to the requested amounts in the payment's
// nominal currency. firstOnly implements the single-logical-hold rule for
// AUTHORIZE: incremental authorizations are not summed.
func amountForType(active []domain.PaymentTransaction, transactionType domain.TransactionType, firstOnly bool) decimal.Decimal {
	requested := decimal.Zero
	processed := decimal.Zero
	useProcessed := true
	seen := false

	for _, txn := range active {
		if txn.TransactionType != transactionType {
			continue
		}
		if firstOnly && seen {
			break
		}
		seen = true

		requested = requested.Add(money.Normalize(txn.Amount, txn.Currency))
		if txn.Currency != "" && txn.Currency == txn.ProcessedCurrency {
			processed = processed.Add(money.Normalize(txn.ProcessedAmount, txn.ProcessedCurrency))
		} else {
			useProcessed = false
		}
	}

	if useProcessed {
		return processed
	}
	return requested
}

// applyChargebacks reduces the captured (or, absent captures, purchased)
// total by the still-active chargebacks. A chargeback is reversed when a
// later transaction with the same external key is either a CHARGEBACK with
// PAYMENT_FAILURE status or a successful CHARGEBACK_REVERSAL. A chargeback in
// a different currency than the payment collapses the reduced total to zero,
// matching the observed behavior of the system this replaces.
func applyChargebacks(out *domain.PaymentAmounts, transactions, active []domain.PaymentTransaction) {
	chargebackTotal := decimal.Zero
	mismatch := false
	any := false

	for _, txn := range active {
		if txn.TransactionType != domain.TransactionTypeChargeback {
			continue
		}
		if chargebackReversed(transactions, txn) {
			continue
		}
		any = true
		if txn.Currency != out.Currency {
			mismatch = true
			continue
		}
		chargebackTotal = chargebackTotal.Add(money.Normalize(txn.Amount, txn.Currency))
	}

	if !any {
		return
	}

	target := &out.CapturedAmount
	if out.CapturedAmount.IsZero() && !out.PurchasedAmount.IsZero() {
		target = &out.PurchasedAmount
	}

	if mismatch {
		*target = decimal.Zero
		return
	}
	reduced := target.Sub(chargebackTotal)
	if reduced.IsNegative() {
		reduced = decimal.Zero
	}
	*target = reduced
}

func chargebackReversed(transactions []domain.PaymentTransaction, chargeback domain.PaymentTransaction) bool {
	passed := false
	for _, txn := range transactions {
		if txn.ID == chargeback.ID {
			passed = true
			continue
		}
		if !passed || txn.ExternalKey != chargeback.ExternalKey {
			continue
		}
		if txn.TransactionType == domain.TransactionTypeChargeback && txn.Status == domain.TransactionStatusPaymentFailure {
			return true
		}
		if txn.TransactionType == domain.TransactionTypeChargebackReversal && txn.Status == domain.TransactionStatusSuccess {
			return true
		}
	}
	return false
}
