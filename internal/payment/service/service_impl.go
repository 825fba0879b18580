package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/paycore/internal/audit"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/money"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/control"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/janitor"
	"github.com/smallbiznis/paycore/internal/payment/ledger"
	"github.com/smallbiznis/paycore/internal/payment/plugin"
	"github.com/smallbiznis/paycore/internal/payment/state"
	"github.com/smallbiznis/paycore/pkg/lock"
)

// paymentLockRetries bounds how long a call waits for the per-payment
// serialization lock before giving up with ErrPaymentLocked.
const (
	paymentLockRetries  = 20
	paymentLockInterval = 50 * time.Millisecond
	paymentLockTTL      = 30 * time.Second
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       domain.Repository
	Plugins    *plugin.Registry
	Control    *control.Runner
	Locker     lock.Locker
	Publisher  domain.Publisher
	AuditSvc   audit.Service
	Janitor    *janitor.Janitor
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	repo       domain.Repository
	plugins    *plugin.Registry
	control    *control.Runner
	locker     lock.Locker
	publisher  domain.Publisher
	auditSvc   audit.Service
	janitor    *janitor.Janitor
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		repo:       p.Repo,
		plugins:    p.Plugins,
		control:    p.Control,
		locker:     p.Locker,
		publisher:  p.Publisher,
		auditSvc:   p.AuditSvc,
		janitor:    p.Janitor,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (*domain.PaymentInfo, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	amount := money.Normalize(req.Amount, req.Currency)

	call := &domain.ControlContext{
		AccountID:              req.AccountID,
		PaymentExternalKey:     req.PaymentExternalKey,
		TransactionExternalKey: req.ExternalKey,
		TransactionType:        req.TransactionType,
		PaymentMethodID:        req.PaymentMethodID,
		Amount:                 amount,
		Currency:               req.Currency,
		Properties:             cloneProperties(req.Properties),
	}
	chain := s.control.NewChain(req.ControlPluginNames, call)
	if err := chain.RunPrior(ctx); err != nil {
		s.recordAbort(ctx, req, now, err)
		return nil, err
	}

	attempt, existing, resumed, err := s.resolveAttempt(ctx, req, call, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// A finished attempt under this external key: same answer, no new
		// gateway call.
		info, err := s.paymentInfoForTransaction(ctx, *existing.TransactionID)
		if err != nil {
			return nil, err
		}
		s.notify(ctx, chain, latestStatus(info, *existing.TransactionID))
		return info, nil
	}
	call.AttemptID = attempt.ID

	lockKey := fmt.Sprintf("payment:%d:%s", req.AccountID, req.PaymentExternalKey)
	token, err := s.acquirePaymentLock(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.locker.Release(context.Background(), lockKey, token); err != nil {
			s.log.Warn("payment lock release failed", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	payment, err := s.repo.FindOrCreatePayment(ctx, s.db, &domain.Payment{
		ID:              s.genID.Generate(),
		AccountID:       req.AccountID,
		PaymentMethodID: call.PaymentMethodID,
		ExternalKey:     req.PaymentExternalKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	call.PaymentID = payment.ID

	var txn *domain.PaymentTransaction
	if resumed {
		// A concurrent call under this key may have reached the gateway
		// while this one waited for the payment lock. Re-check before
		// dispatching so one key never charges twice.
		txn, err = s.repo.FindTransactionByExternalKey(ctx, s.db, req.AccountID, req.TransactionType, req.ExternalKey)
		if err != nil && !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, err
		}
	}
	if txn == nil {
		txn = s.dispatch(ctx, req, call, payment, attempt.ID)
		inserted, err := s.repo.AppendTransaction(ctx, s.db, txn)
		if err != nil {
			return nil, err
		}
		if !inserted {
			// Lost an append race under the same external key; adopt the
			// winner's row.
			txn, err = s.repo.FindTransactionByExternalKey(ctx, s.db, req.AccountID, req.TransactionType, req.ExternalKey)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := s.repo.UpdateAttempt(ctx, s.db, attempt.ID, attemptStatusFor(txn.Status), &payment.ID, &txn.ID, now); err != nil {
		return nil, err
	}

	info, err := s.finishTransaction(ctx, payment, txn, now)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, chain, txn.Status)
	s.publisher.Publish(ctx, domain.Event{
		Type:          eventTypeFor(txn.Status),
		AccountID:     req.AccountID,
		PaymentID:     payment.ID,
		TransactionID: txn.ID,
		DedupeKey:     fmt.Sprintf("txn:%d:%s", txn.ID, txn.Status),
		Payload: map[string]any{
			"transaction_type": string(txn.TransactionType),
			"status":           string(txn.Status),
			"state_name":       txn.StateName,
		},
	})
	s.auditSvc.AuditLog(ctx, req.AccountID, "payment.transaction.create", "payment_transaction",
		strconv.FormatInt(int64(txn.ID), 10), map[string]any{
			"payment_id":       payment.ID,
			"transaction_type": string(txn.TransactionType),
			"status":           string(txn.Status),
		})
	if s.obsMetrics != nil {
		s.obsMetrics.TransactionsTotal.WithLabelValues(string(txn.TransactionType), string(txn.Status)).Inc()
	}
	return info, nil
}

// dispatch runs the gateway call with the configured timeout and shapes the
// resulting transaction row. A plugin error or timeout leaves the outcome
// nil, which the state machine records as PENDING: the charge may very well
// have happened.
func (s *Service) dispatch(ctx context.Context, req domain.TransactionRequest, call *domain.ControlContext, payment *domain.Payment, attemptID snowflake.ID) *domain.PaymentTransaction {
	txnID := s.genID.Generate()
	now := s.clock.Now().UTC()

	gw, err := s.plugins.Get(req.PluginName)
	var outcome *domain.PluginOutcome
	if err == nil {
		execCtx, cancel := context.WithTimeout(ctx, s.cfg.PluginCallTimeout)
		outcome, err = gw.Execute(execCtx, domain.ExecuteRequest{
			AccountID:       req.AccountID,
			PaymentID:       payment.ID,
			TransactionID:   txnID,
			PaymentMethodID: call.PaymentMethodID,
			TransactionType: req.TransactionType,
			Amount:          call.Amount,
			Currency:        call.Currency,
			Properties:      call.Properties,
		})
		cancel()
	}
	if err != nil {
		s.log.Warn("gateway call gave no answer",
			zap.String("plugin", req.PluginName),
			zap.Int64("transaction_id", int64(txnID)),
			zap.Error(err))
		outcome = nil
	}

	status, stateName := state.Classify(req.TransactionType, outcome)
	txn := &domain.PaymentTransaction{
		ID:              txnID,
		AccountID:       req.AccountID,
		PaymentID:       payment.ID,
		AttemptID:       &attemptID,
		ExternalKey:     req.ExternalKey,
		TransactionType: req.TransactionType,
		Status:          status,
		Amount:          call.Amount,
		Currency:        call.Currency,
		StateName:       stateName,
		EffectiveDate:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if outcome != nil {
		if outcome.ProcessedCurrency != "" {
			txn.ProcessedAmount = money.Normalize(outcome.ProcessedAmount, outcome.ProcessedCurrency)
			txn.ProcessedCurrency = outcome.ProcessedCurrency
		}
		txn.GatewayErrorCode = outcome.GatewayErrorCode
		txn.GatewayErrorMsg = outcome.GatewayError
		if len(outcome.Properties) > 0 {
			if raw, err := json.Marshal(outcome.Properties); err == nil {
				txn.PluginDetail = datatypes.JSON(raw)
			}
		}
	}
	return txn
}

// finishTransaction refreshes the payment's state names and derives totals
// from the full transaction list.
func (s *Service) finishTransaction(ctx context.Context, payment *domain.Payment, txn *domain.PaymentTransaction, now time.Time) (*domain.PaymentInfo, error) {
	txns, err := s.repo.LoadTransactions(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}
	lastSuccess := payment.LastSuccessStateName
	if name, ok := state.LastSuccessState(txns, 0); ok {
		lastSuccess = name
	}
	if err := s.repo.UpdatePaymentState(ctx, s.db, payment.ID, txn.StateName, lastSuccess, now); err != nil {
		return nil, err
	}
	payment.StateName = txn.StateName
	payment.LastSuccessStateName = lastSuccess
	payment.UpdatedAt = now
	return &domain.PaymentInfo{
		Payment:      *payment,
		Transactions: txns,
		Amounts:      ledger.Compute(txns),
	}, nil
}

// resolveAttempt inserts the idempotency envelope. When a prior attempt under
// the same key already produced a transaction, that attempt is returned as
// existing and the whole call short-circuits.
func (s *Service) resolveAttempt(ctx context.Context, req domain.TransactionRequest, call *domain.ControlContext, now time.Time) (attempt, existing *domain.PaymentAttempt, resumed bool, err error) {
	attempt = &domain.PaymentAttempt{
		ID:              s.genID.Generate(),
		AccountID:       req.AccountID,
		ExternalKey:     req.ExternalKey,
		TransactionType: req.TransactionType,
		Amount:          call.Amount,
		Currency:        call.Currency,
		Status:          domain.AttemptStatusProcessing,
		PluginName:      req.PluginName,
		EffectiveDate:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if len(req.ControlPluginNames) > 0 {
		if raw, err := json.Marshal(req.ControlPluginNames); err == nil {
			attempt.ControlPluginNames = datatypes.JSON(raw)
		}
	}
	inserted, err := s.repo.InsertAttempt(ctx, s.db, attempt)
	if err != nil {
		return nil, nil, false, err
	}
	if inserted {
		return attempt, nil, false, nil
	}

	prior, err := s.repo.FindAttemptByExternalKey(ctx, s.db, req.AccountID, req.TransactionType, req.ExternalKey)
	if err != nil {
		return nil, nil, false, err
	}
	if prior.TransactionID != nil {
		return nil, prior, false, nil
	}
	// The prior attempt may be mid-flight on another instance or may have
	// died before the gateway; resume under its identity and re-check for
	// its transaction once the payment lock is held.
	return prior, nil, true, nil
}

func (s *Service) paymentInfoForTransaction(ctx context.Context, transactionID snowflake.ID) (*domain.PaymentInfo, error) {
	txn, err := s.repo.GetTransaction(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	return s.GetPayment(ctx, txn.PaymentID)
}

func (s *Service) recordAbort(ctx context.Context, req domain.TransactionRequest, now time.Time, cause error) {
	var abort *domain.AbortError
	pluginName := ""
	if errors.As(cause, &abort) {
		pluginName = abort.PluginName
	}
	attempt := &domain.PaymentAttempt{
		ID:              s.genID.Generate(),
		AccountID:       req.AccountID,
		ExternalKey:     req.ExternalKey,
		TransactionType: req.TransactionType,
		Amount:          money.Normalize(req.Amount, req.Currency),
		Currency:        req.Currency,
		Status:          domain.AttemptStatusAborted,
		PluginName:      req.PluginName,
		EffectiveDate:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := s.repo.InsertAttempt(ctx, s.db, attempt); err != nil {
		s.log.Warn("aborted attempt not recorded", zap.Error(err))
	}
	s.auditSvc.AuditLog(ctx, req.AccountID, "payment.transaction.abort", "payment_attempt",
		strconv.FormatInt(int64(attempt.ID), 10), map[string]any{
			"transaction_type": string(req.TransactionType),
			"control_plugin":   pluginName,
		})
	if s.obsMetrics != nil {
		s.obsMetrics.ControlAbortsTotal.WithLabelValues(pluginName).Inc()
	}
}

func (s *Service) ReconcileNow(ctx context.Context, transactionID snowflake.ID) (bool, error) {
	return s.janitor.ReconcileOne(ctx, transactionID)
}

func (s *Service) GetPayment(ctx context.Context, paymentID snowflake.ID) (*domain.PaymentInfo, error) {
	payment, err := s.repo.GetPayment(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	txns, err := s.repo.LoadTransactions(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentInfo{
		Payment:      *payment,
		Transactions: txns,
		Amounts:      ledger.Compute(txns),
	}, nil
}

func (s *Service) GetPaymentByExternalKey(ctx context.Context, accountID snowflake.ID, externalKey string) (*domain.PaymentInfo, error) {
	payment, err := s.repo.GetPaymentByExternalKey(ctx, s.db, accountID, externalKey)
	if err != nil {
		return nil, err
	}
	return s.GetPayment(ctx, payment.ID)
}

func (s *Service) acquirePaymentLock(ctx context.Context, key string) (string, error) {
	for i := 0; i < paymentLockRetries; i++ {
		token, ok, err := s.locker.TryLock(ctx, key, paymentLockTTL)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(paymentLockInterval):
		}
	}
	return "", domain.ErrPaymentLocked
}

func (s *Service) notify(ctx context.Context, chain *control.Chain, status domain.TransactionStatus) {
	switch status {
	case domain.TransactionStatusSuccess, domain.TransactionStatusPending:
		chain.NotifySuccess(ctx)
	default:
		chain.NotifyFailure(ctx)
	}
}

func (s *Service) validate(req domain.TransactionRequest) error {
	if req.AccountID == 0 {
		return domain.ErrInvalidAccount
	}
	if !req.TransactionType.Valid() {
		return domain.ErrInvalidTransactionType
	}
	if strings.TrimSpace(req.ExternalKey) == "" || strings.TrimSpace(req.PaymentExternalKey) == "" {
		return domain.ErrInvalidExternalKey
	}
	if req.Amount.IsNegative() {
		return domain.ErrInvalidAmount
	}
	if req.Amount.IsZero() && req.TransactionType != domain.TransactionTypeVoid {
		return domain.ErrInvalidAmount
	}
	if len(req.Currency) != 3 {
		return domain.ErrInvalidCurrency
	}
	if req.PaymentMethodID == 0 {
		return domain.ErrInvalidPaymentMethod
	}
	if !s.plugins.Exists(req.PluginName) {
		return domain.ErrPluginNotFound
	}
	return nil
}

func attemptStatusFor(status domain.TransactionStatus) domain.AttemptStatus {
	switch status {
	case domain.TransactionStatusSuccess:
		return domain.AttemptStatusSuccess
	case domain.TransactionStatusPaymentFailure, domain.TransactionStatusPluginFailure:
		return domain.AttemptStatusFailure
	default:
		return domain.AttemptStatusProcessing
	}
}

func eventTypeFor(status domain.TransactionStatus) string {
	switch status {
	case domain.TransactionStatusSuccess:
		return domain.EventTransactionSucceeded
	case domain.TransactionStatusPaymentFailure, domain.TransactionStatusPluginFailure:
		return domain.EventTransactionFailed
	default:
		return domain.EventTransactionPending
	}
}

func cloneProperties(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func latestStatus(info *domain.PaymentInfo, transactionID snowflake.ID) domain.TransactionStatus {
	for _, txn := range info.Transactions {
		if txn.ID == transactionID {
			return txn.Status
		}
	}
	return domain.TransactionStatusUnknown
}
