package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PaymentAmounts are the derived monetary totals of a payment. They are a
// pure function of the transaction list (see the ledger package) and are
// never stored.
type PaymentAmounts struct {
	AuthAmount      decimal.Decimal `json:"auth_amount"`
	CapturedAmount  decimal.Decimal `json:"captured_amount"`
	PurchasedAmount decimal.Decimal `json:"purchased_amount"`
	CreditedAmount  decimal.Decimal `json:"credited_amount"`
	RefundedAmount  decimal.Decimal `json:"refunded_amount"`
	Currency        string          `json:"currency"`
	IsAuthVoided    bool            `json:"is_auth_voided"`
}

// PaymentInfo is a payment with its transaction history and derived totals.
type PaymentInfo struct {
	Payment      Payment              `json:"payment"`
	Transactions []PaymentTransaction `json:"transactions"`
	Amounts      PaymentAmounts       `json:"amounts"`
}

// TransactionRequest is one API-level payment operation. ExternalKey is the
// idempotency key: retries under the same key resolve to the same attempt.
type TransactionRequest struct {
	AccountID          snowflake.ID
	PaymentMethodID    snowflake.ID
	PaymentExternalKey string
	ExternalKey        string
	TransactionType    TransactionType
	Amount             decimal.Decimal
	Currency           string
	PluginName         string
	Properties         map[string]string
	ControlPluginNames []string
}

// Service is the core API exposed to the transport layer.
type Service interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (*PaymentInfo, error)
	// ReconcileNow runs a reconciliation pass for one transaction on demand.
	// It reports whether the transaction was repaired.
	ReconcileNow(ctx context.Context, transactionID snowflake.ID) (bool, error)
	GetPayment(ctx context.Context, paymentID snowflake.ID) (*PaymentInfo, error)
	GetPaymentByExternalKey(ctx context.Context, accountID snowflake.ID, externalKey string) (*PaymentInfo, error)
}

// Publisher is the event-publishing collaborator. Publish is fire-and-forget:
// it is called after terminal transitions and never awaited by core logic.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Event is a domain event emitted after a transaction transition.
type Event struct {
	Type          string
	AccountID     snowflake.ID
	PaymentID     snowflake.ID
	TransactionID snowflake.ID
	DedupeKey     string
	Payload       map[string]any
}

const (
	EventTransactionSucceeded = "payment.transaction.succeeded"
	EventTransactionFailed    = "payment.transaction.failed"
	EventTransactionPending   = "payment.transaction.pending"
	EventTransactionRepaired  = "payment.reconciliation.repaired"
)
