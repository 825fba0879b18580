package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/paycore/internal/payment/domain"
	pkgdb "github.com/smallbiznis/paycore/pkg/db"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindOrCreatePayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) (*domain.Payment, error) {
	existing, err := r.GetPaymentByExternalKey(ctx, db, payment.AccountID, payment.ExternalKey)
	if err == nil {
		return existing, nil
	}
	if err != domain.ErrPaymentNotFound {
		return nil, err
	}

	var next struct{ N int64 }
	err = db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(payment_number), 0) + 1 AS n
		 FROM payments
		 WHERE account_id = ?`,
		payment.AccountID,
	).Scan(&next).Error
	if err != nil {
		return nil, err
	}
	payment.PaymentNumber = next.N

	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, account_id, payment_method_id, external_key, payment_number,
			state_name, last_success_state_name, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, external_key) DO NOTHING`,
		payment.ID,
		payment.AccountID,
		payment.PaymentMethodID,
		payment.ExternalKey,
		payment.PaymentNumber,
		payment.StateName,
		payment.LastSuccessStateName,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if res.Error != nil && !pkgdb.IsDuplicateKeyErr(res.Error) {
		return nil, res.Error
	}
	if res.Error != nil || res.RowsAffected == 0 {
		// Lost the race; the winner's row is the payment.
		return r.GetPaymentByExternalKey(ctx, db, payment.AccountID, payment.ExternalKey)
	}
	return payment, nil
}

func (r *repo) GetPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_method_id, external_key, payment_number,
			state_name, last_success_state_name, created_at, updated_at
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return &item, nil
}

func (r *repo) GetPaymentByExternalKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, externalKey string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_method_id, external_key, payment_number,
			state_name, last_success_state_name, created_at, updated_at
		 FROM payments
		 WHERE account_id = ? AND external_key = ?
		 LIMIT 1`,
		accountID,
		externalKey,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return &item, nil
}

func (r *repo) UpdatePaymentState(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, stateName string, lastSuccessStateName string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state_name = ?, last_success_state_name = ?, updated_at = ?
		 WHERE id = ?`,
		stateName,
		lastSuccessStateName,
		updatedAt,
		paymentID,
	).Error
}

func (r *repo) AppendTransaction(ctx context.Context, db *gorm.DB, txn *domain.PaymentTransaction) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (
			id, account_id, payment_id, attempt_id, external_key,
			transaction_type, status, amount, currency,
			processed_amount, processed_currency, state_name,
			gateway_error_code, gateway_error_msg, plugin_detail,
			effective_date, reconcile_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, transaction_type, external_key) DO NOTHING`,
		txn.ID,
		txn.AccountID,
		txn.PaymentID,
		txn.AttemptID,
		txn.ExternalKey,
		txn.TransactionType,
		txn.Status,
		txn.Amount,
		txn.Currency,
		txn.ProcessedAmount,
		txn.ProcessedCurrency,
		txn.StateName,
		txn.GatewayErrorCode,
		txn.GatewayErrorMsg,
		txn.PluginDetail,
		txn.EffectiveDate,
		txn.ReconcileAttempts,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) GetTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*domain.PaymentTransaction, error) {
	var item domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_id, attempt_id, external_key,
			transaction_type, status, amount, currency,
			processed_amount, processed_currency, state_name,
			gateway_error_code, gateway_error_msg, plugin_detail,
			effective_date, reconcile_attempts, created_at, updated_at
		 FROM payment_transactions
		 WHERE id = ?
		 LIMIT 1`,
		transactionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrTransactionNotFound
	}
	return &item, nil
}

func (r *repo) FindTransactionByExternalKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, transactionType domain.TransactionType, externalKey string) (*domain.PaymentTransaction, error) {
	var item domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_id, attempt_id, external_key,
			transaction_type, status, amount, currency,
			processed_amount, processed_currency, state_name,
			gateway_error_code, gateway_error_msg, plugin_detail,
			effective_date, reconcile_attempts, created_at, updated_at
		 FROM payment_transactions
		 WHERE account_id = ? AND transaction_type = ? AND external_key = ?
		 LIMIT 1`,
		accountID,
		transactionType,
		externalKey,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrTransactionNotFound
	}
	return &item, nil
}

func (r *repo) LoadTransactions(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.PaymentTransaction, error) {
	var items []domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_id, attempt_id, external_key,
			transaction_type, status, amount, currency,
			processed_amount, processed_currency, state_name,
			gateway_error_code, gateway_error_msg, plugin_detail,
			effective_date, reconcile_attempts, created_at, updated_at
		 FROM payment_transactions
		 WHERE payment_id = ?
		 ORDER BY effective_date ASC, id ASC`,
		paymentID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CorrectTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, correction domain.TransactionCorrection, updatedAt time.Time) error {
	current, err := r.GetTransaction(ctx, db, transactionID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return domain.ErrSuccessImmutable
	}
	// The status guard repeats in SQL so a concurrent transition cannot be
	// overwritten between the read above and this update.
	return db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET status = ?, state_name = ?, processed_amount = ?, processed_currency = ?,
			gateway_error_code = ?, gateway_error_msg = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		correction.Status,
		correction.StateName,
		correction.ProcessedAmount,
		correction.ProcessedCurrency,
		correction.GatewayErrorCode,
		correction.GatewayErrorMsg,
		updatedAt,
		transactionID,
		domain.TransactionStatusPending,
		domain.TransactionStatusUnknown,
	).Error
}

func (r *repo) IncrementReconcileAttempts(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET reconcile_attempts = reconcile_attempts + 1, updated_at = ?
		 WHERE id = ?`,
		updatedAt,
		transactionID,
	).Error
}

func (r *repo) FindTransactionsByStatus(ctx context.Context, db *gorm.DB, statuses []domain.TransactionStatus, createdBefore, createdAfter time.Time, maxAttempts int, limit int) ([]domain.PaymentTransaction, error) {
	var items []domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_id, attempt_id, external_key,
			transaction_type, status, amount, currency,
			processed_amount, processed_currency, state_name,
			gateway_error_code, gateway_error_msg, plugin_detail,
			effective_date, reconcile_attempts, created_at, updated_at
		 FROM payment_transactions
		 WHERE status IN ? AND created_at > ? AND created_at <= ?
			AND reconcile_attempts < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		statuses,
		createdAfter,
		createdBefore,
		maxAttempts,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertAttempt(ctx context.Context, db *gorm.DB, attempt *domain.PaymentAttempt) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_attempts (
			id, account_id, payment_id, transaction_id, external_key,
			transaction_type, amount, currency, status, plugin_name,
			control_plugin_names, effective_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, transaction_type, external_key) DO NOTHING`,
		attempt.ID,
		attempt.AccountID,
		attempt.PaymentID,
		attempt.TransactionID,
		attempt.ExternalKey,
		attempt.TransactionType,
		attempt.Amount,
		attempt.Currency,
		attempt.Status,
		attempt.PluginName,
		attempt.ControlPluginNames,
		attempt.EffectiveDate,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindAttemptByExternalKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, transactionType domain.TransactionType, externalKey string) (*domain.PaymentAttempt, error) {
	var item domain.PaymentAttempt
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_id, transaction_id, external_key,
			transaction_type, amount, currency, status, plugin_name,
			control_plugin_names, effective_date, created_at, updated_at
		 FROM payment_attempts
		 WHERE account_id = ? AND transaction_type = ? AND external_key = ?
		 LIMIT 1`,
		accountID,
		transactionType,
		externalKey,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrAttemptNotFound
	}
	return &item, nil
}

func (r *repo) UpdateAttempt(ctx context.Context, db *gorm.DB, attemptID snowflake.ID, status domain.AttemptStatus, paymentID, transactionID *snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_attempts
		 SET status = ?,
			payment_id = COALESCE(?, payment_id),
			transaction_id = COALESCE(?, transaction_id),
			updated_at = ?
		 WHERE id = ?`,
		status,
		paymentID,
		transactionID,
		updatedAt,
		attemptID,
	).Error
}
