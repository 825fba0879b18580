package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionType is one discrete payment operation against a Payment.
type TransactionType string

const (
	TransactionTypeAuthorize          TransactionType = "AUTHORIZE"
	TransactionTypeCapture            TransactionType = "CAPTURE"
	TransactionTypePurchase           TransactionType = "PURCHASE"
	TransactionTypeVoid               TransactionType = "VOID"
	TransactionTypeCredit             TransactionType = "CREDIT"
	TransactionTypeRefund             TransactionType = "REFUND"
	TransactionTypeChargeback         TransactionType = "CHARGEBACK"
	TransactionTypeChargebackReversal TransactionType = "CHARGEBACK_REVERSAL"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeAuthorize, TransactionTypeCapture, TransactionTypePurchase,
		TransactionTypeVoid, TransactionTypeCredit, TransactionTypeRefund,
		TransactionTypeChargeback, TransactionTypeChargebackReversal:
		return true
	default:
		return false
	}
}

// TransactionStatus is the logical outcome recorded for a transaction.
type TransactionStatus string

const (
	TransactionStatusPending        TransactionStatus = "PENDING"
	TransactionStatusSuccess        TransactionStatus = "SUCCESS"
	TransactionStatusPaymentFailure TransactionStatus = "PAYMENT_FAILURE"
	TransactionStatusPluginFailure  TransactionStatus = "PLUGIN_FAILURE"
	TransactionStatusUnknown        TransactionStatus = "UNKNOWN"
)

// Terminal reports whether the status can never change again on its own.
// PENDING and UNKNOWN transactions are reconciliation candidates.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionStatusSuccess, TransactionStatusPaymentFailure, TransactionStatusPluginFailure:
		return true
	default:
		return false
	}
}

// AttemptStatus is the lifecycle of a logical request envelope.
type AttemptStatus string

const (
	AttemptStatusInit       AttemptStatus = "INIT"
	AttemptStatusProcessing AttemptStatus = "PROCESSING"
	AttemptStatusAborted    AttemptStatus = "ABORTED"
	AttemptStatusSuccess    AttemptStatus = "SUCCESS"
	AttemptStatusFailure    AttemptStatus = "FAILURE"
)

// Payment is the aggregate root. Monetary totals are derived from the
// transaction list, never stored.
type Payment struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID            snowflake.ID `json:"account_id" gorm:"not null;index"`
	PaymentMethodID      snowflake.ID `json:"payment_method_id" gorm:"not null"`
	ExternalKey          string       `json:"external_key" gorm:"type:text;not null"`
	PaymentNumber        int64        `json:"payment_number" gorm:"not null"`
	StateName            string       `json:"state_name" gorm:"type:text"`
	LastSuccessStateName string       `json:"last_success_state_name" gorm:"type:text"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// PaymentTransaction is one attempted step against a Payment. Rows are only
// appended, or corrected in place by reconciliation with id and external key
// preserved.
type PaymentTransaction struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	AccountID         snowflake.ID      `json:"account_id" gorm:"not null;index"`
	PaymentID         snowflake.ID      `json:"payment_id" gorm:"not null;index"`
	AttemptID         *snowflake.ID     `json:"attempt_id"`
	ExternalKey       string            `json:"external_key" gorm:"type:text;not null"`
	TransactionType   TransactionType   `json:"transaction_type" gorm:"type:text;not null"`
	Status            TransactionStatus `json:"status" gorm:"type:text;not null"`
	Amount            decimal.Decimal   `json:"amount" gorm:"type:numeric(18,6);not null"`
	Currency          string            `json:"currency" gorm:"type:text;not null"`
	ProcessedAmount   decimal.Decimal   `json:"processed_amount" gorm:"type:numeric(18,6)"`
	ProcessedCurrency string            `json:"processed_currency" gorm:"type:text"`
	StateName         string            `json:"state_name" gorm:"type:text"`
	GatewayErrorCode  string            `json:"gateway_error_code" gorm:"type:text"`
	GatewayErrorMsg   string            `json:"gateway_error_msg" gorm:"type:text"`
	PluginDetail      datatypes.JSON    `json:"plugin_detail" gorm:"type:jsonb"`
	EffectiveDate     time.Time         `json:"effective_date" gorm:"not null"`
	ReconcileAttempts int               `json:"reconcile_attempts" gorm:"not null;default:0"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// PaymentAttempt is the request envelope used when a control-plugin chain is
// involved. An attempt may exist without a transaction (chain aborted before
// the core operation ran).
type PaymentAttempt struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	AccountID          snowflake.ID    `json:"account_id" gorm:"not null;index"`
	PaymentID          *snowflake.ID   `json:"payment_id"`
	TransactionID      *snowflake.ID   `json:"transaction_id"`
	ExternalKey        string          `json:"external_key" gorm:"type:text;not null"`
	TransactionType    TransactionType `json:"transaction_type" gorm:"type:text;not null"`
	Amount             decimal.Decimal `json:"amount" gorm:"type:numeric(18,6);not null"`
	Currency           string          `json:"currency" gorm:"type:text;not null"`
	Status             AttemptStatus   `json:"status" gorm:"type:text;not null"`
	PluginName         string          `json:"plugin_name" gorm:"type:text"`
	ControlPluginNames datatypes.JSON  `json:"control_plugin_names" gorm:"type:jsonb"`
	EffectiveDate      time.Time       `json:"effective_date" gorm:"not null"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }
