package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_repo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			payment_method_id BIGINT NOT NULL,
			external_key TEXT NOT NULL,
			payment_number BIGINT NOT NULL,
			state_name TEXT NOT NULL DEFAULT '',
			last_success_state_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX uq_payments_account_external_key ON payments(account_id, external_key)`,
		`CREATE TABLE payment_transactions (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			payment_id BIGINT NOT NULL,
			attempt_id BIGINT,
			external_key TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			status TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			currency TEXT NOT NULL,
			processed_amount NUMERIC,
			processed_currency TEXT,
			state_name TEXT NOT NULL DEFAULT '',
			gateway_error_code TEXT,
			gateway_error_msg TEXT,
			plugin_detail TEXT,
			effective_date TIMESTAMP NOT NULL,
			reconcile_attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX uq_payment_transactions_idempotency ON payment_transactions(account_id, transaction_type, external_key)`,
		`CREATE TABLE payment_attempts (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			payment_id BIGINT,
			transaction_id BIGINT,
			external_key TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			plugin_name TEXT NOT NULL DEFAULT '',
			control_plugin_names TEXT,
			effective_date TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX uq_payment_attempts_idempotency ON payment_attempts(account_id, transaction_type, external_key)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTransaction(id snowflake.ID, externalKey string, status domain.TransactionStatus, createdAt time.Time) *domain.PaymentTransaction {
	return &domain.PaymentTransaction{
		ID:              id,
		AccountID:       1,
		PaymentID:       100,
		ExternalKey:     externalKey,
		TransactionType: domain.TransactionTypeAuthorize,
		Status:          status,
		Amount:          decimal.RequireFromString("10"),
		Currency:        "USD",
		StateName:       "AUTH_PENDING",
		EffectiveDate:   createdAt,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestAppendTransactionIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	now := time.Now().UTC()

	inserted, err := repo.AppendTransaction(ctx, db, newTransaction(1, "txn-1", domain.TransactionStatusPending, now))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same idempotency scope, different id: the insert must be swallowed.
	inserted, err = repo.AppendTransaction(ctx, db, newTransaction(2, "txn-1", domain.TransactionStatusPending, now))
	require.NoError(t, err)
	assert.False(t, inserted)

	winner, err := repo.FindTransactionByExternalKey(ctx, db, 1, domain.TransactionTypeAuthorize, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), winner.ID)
}

func TestCorrectTransaction(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	now := time.Now().UTC()

	_, err := repo.AppendTransaction(ctx, db, newTransaction(1, "txn-1", domain.TransactionStatusPending, now))
	require.NoError(t, err)

	correction := domain.TransactionCorrection{
		Status:            domain.TransactionStatusSuccess,
		StateName:         "AUTH_SUCCESS",
		ProcessedAmount:   decimal.RequireFromString("10"),
		ProcessedCurrency: "USD",
	}
	require.NoError(t, repo.CorrectTransaction(ctx, db, 1, correction, now))

	txn, err := repo.GetTransaction(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
	assert.Equal(t, "txn-1", txn.ExternalKey, "correction preserves the external key")

	// A settled transaction cannot transition again.
	err = repo.CorrectTransaction(ctx, db, 1, domain.TransactionCorrection{
		Status:    domain.TransactionStatusPaymentFailure,
		StateName: "AUTH_FAILED",
	}, now)
	assert.ErrorIs(t, err, domain.ErrSuccessImmutable)

	err = repo.CorrectTransaction(ctx, db, 999, correction, now)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestFindTransactionsByStatusWindow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	fresh := newTransaction(1, "fresh", domain.TransactionStatusPending, now.Add(-time.Minute))
	stuck := newTransaction(2, "stuck", domain.TransactionStatusPending, now.Add(-time.Hour))
	ancient := newTransaction(3, "ancient", domain.TransactionStatusUnknown, now.Add(-30*24*time.Hour))
	settled := newTransaction(4, "settled", domain.TransactionStatusSuccess, now.Add(-time.Hour))
	exhausted := newTransaction(5, "exhausted", domain.TransactionStatusPending, now.Add(-time.Hour))
	exhausted.ReconcileAttempts = 3

	for _, txn := range []*domain.PaymentTransaction{fresh, stuck, ancient, settled, exhausted} {
		_, err := repo.AppendTransaction(ctx, db, txn)
		require.NoError(t, err)
	}

	items, err := repo.FindTransactionsByStatus(ctx, db,
		[]domain.TransactionStatus{domain.TransactionStatusPending, domain.TransactionStatusUnknown},
		now.Add(-5*time.Minute), now.Add(-7*24*time.Hour), 3, 10)
	require.NoError(t, err)

	require.Len(t, items, 1, "only the stuck transaction is inside the window with attempts to spare")
	assert.Equal(t, snowflake.ID(2), items[0].ID)
}

func TestFindOrCreatePaymentAssignsNumbers(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	now := time.Now().UTC()

	first, err := repo.FindOrCreatePayment(ctx, db, &domain.Payment{
		ID: 10, AccountID: 1, PaymentMethodID: 2, ExternalKey: "order-1", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.PaymentNumber)

	second, err := repo.FindOrCreatePayment(ctx, db, &domain.Payment{
		ID: 11, AccountID: 1, PaymentMethodID: 2, ExternalKey: "order-2", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.PaymentNumber)

	// Same external key resolves to the existing payment.
	again, err := repo.FindOrCreatePayment(ctx, db, &domain.Payment{
		ID: 12, AccountID: 1, PaymentMethodID: 2, ExternalKey: "order-1", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}
