package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionCorrection is a reconciliation-driven in-place update. Identity
// and external key are always preserved; only the fields here may change.
type TransactionCorrection struct {
	Status            TransactionStatus
	StateName         string
	ProcessedAmount   decimal.Decimal
	ProcessedCurrency string
	GatewayErrorCode  string
	GatewayErrorMsg   string
}

// Repository is the persistence collaborator. Each call commits atomically.
type Repository interface {
	// FindOrCreatePayment resolves the payment for (accountID, externalKey),
	// creating it with the next payment number when absent.
	FindOrCreatePayment(ctx context.Context, db *gorm.DB, payment *Payment) (*Payment, error)
	GetPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*Payment, error)
	GetPaymentByExternalKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, externalKey string) (*Payment, error)
	UpdatePaymentState(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, stateName string, lastSuccessStateName string, updatedAt time.Time) error

	// AppendTransaction inserts a transaction. It is idempotent on
	// (account_id, transaction_type, external key): the second of two racing
	// inserts is reported with inserted=false and no error.
	AppendTransaction(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) (inserted bool, err error)
	GetTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*PaymentTransaction, error)
	FindTransactionByExternalKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, transactionType TransactionType, externalKey string) (*PaymentTransaction, error)
	LoadTransactions(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]PaymentTransaction, error)
	// CorrectTransaction updates a non-terminal transaction in place. A
	// SUCCESS row's processed amount is immutable; corrections that would
	// touch it are rejected.
	CorrectTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, correction TransactionCorrection, updatedAt time.Time) error
	IncrementReconcileAttempts(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, updatedAt time.Time) error
	// FindTransactionsByStatus returns the reconciliation work list: rows in
	// any of the given statuses created inside (createdAfter, createdBefore]
	// with fewer than maxAttempts reconcile attempts, oldest first.
	FindTransactionsByStatus(ctx context.Context, db *gorm.DB, statuses []TransactionStatus, createdBefore, createdAfter time.Time, maxAttempts int, limit int) ([]PaymentTransaction, error)

	// InsertAttempt is idempotent on (account_id, transaction_type, external
	// key) with the same contract as AppendTransaction.
	InsertAttempt(ctx context.Context, db *gorm.DB, attempt *PaymentAttempt) (inserted bool, err error)
	FindAttemptByExternalKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, transactionType TransactionType, externalKey string) (*PaymentAttempt, error)
	UpdateAttempt(ctx context.Context, db *gorm.DB, attemptID snowflake.ID, status AttemptStatus, paymentID, transactionID *snowflake.ID, updatedAt time.Time) error
}
