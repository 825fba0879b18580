package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PluginStatus is the raw outcome reported by a gateway plugin. It is mapped
// to a TransactionStatus by the state machine; the two vocabularies are kept
// separate on purpose.
type PluginStatus string

const (
	PluginStatusProcessed PluginStatus = "PROCESSED"
	PluginStatusPending   PluginStatus = "PENDING"
	PluginStatusError     PluginStatus = "ERROR"
	PluginStatusCanceled  PluginStatus = "CANCELED"
	PluginStatusUndefined PluginStatus = "UNDEFINED"
)

// PluginOutcome is what a gateway plugin reports for one transaction. A nil
// *PluginOutcome means the plugin gave no answer at all (timeout, crash),
// which is distinct from an outcome carrying PluginStatusUndefined.
type PluginOutcome struct {
	Status            PluginStatus
	ProcessedAmount   decimal.Decimal
	ProcessedCurrency string
	GatewayErrorCode  string
	GatewayError      string
	Properties        map[string]string
}

// ExecuteRequest carries the parameters of a gateway plugin call.
type ExecuteRequest struct {
	AccountID       snowflake.ID
	PaymentID       snowflake.ID
	TransactionID   snowflake.ID
	PaymentMethodID snowflake.ID
	TransactionType TransactionType
	Amount          decimal.Decimal
	Currency        string
	Properties      map[string]string
}

// GatewayPlugin is the payment gateway capability. Both calls may be slow and
// unreliable; callers bound them with a context deadline. QueryStatus is an
// idempotent read used by reconciliation, never a new charge.
type GatewayPlugin interface {
	Name() string
	Execute(ctx context.Context, req ExecuteRequest) (*PluginOutcome, error)
	QueryStatus(ctx context.Context, accountID, paymentID, transactionID snowflake.ID) (*PluginOutcome, error)
}

// ControlContext is the call context handed to control-plugin hooks. Prior
// calls may adjust the payment method, amount, currency and properties seen
// by later plugins and by the core operation.
type ControlContext struct {
	AccountID              snowflake.ID
	PaymentID              snowflake.ID
	AttemptID              snowflake.ID
	PaymentExternalKey     string
	TransactionExternalKey string
	TransactionType        TransactionType
	PaymentMethodID        snowflake.ID
	Amount                 decimal.Decimal
	Currency               string
	ProcessedAmount        decimal.Decimal
	ProcessedCurrency      string
	Properties             map[string]string
}

// PriorCallResult is what a control plugin's prior-call hook returns. Nil
// pointer fields mean "no adjustment".
type PriorCallResult struct {
	Aborted                 bool
	AdjustedPaymentMethodID *snowflake.ID
	AdjustedAmount          *decimal.Decimal
	AdjustedCurrency        *string
	AdjustedProperties      map[string]string
}

// ControlPlugin is an interceptor invoked around the core payment operation.
// Hooks for one call run sequentially, never concurrently.
type ControlPlugin interface {
	Name() string
	PriorCall(ctx context.Context, call *ControlContext) (*PriorCallResult, error)
	OnSuccessCall(ctx context.Context, call *ControlContext) error
	OnFailureCall(ctx context.Context, call *ControlContext) error
}
