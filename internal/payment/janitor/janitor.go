// Package janitor is the reconciliation worker. It re-queries the gateway
// for transactions stuck in PENDING or UNKNOWN and corrects them in place
// once the gateway knows the real outcome.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/money"
	"github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/plugin"
	"github.com/smallbiznis/paycore/internal/payment/state"
	"github.com/smallbiznis/paycore/pkg/lock"
)

var ErrInvalidConfig = errors.New("janitor: invalid configuration")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Clock     clock.Clock
	Repo      domain.Repository
	Plugins   *plugin.Registry
	Locker    lock.Locker
	Publisher domain.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Janitor struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           config.JanitorConfig
	pluginTimeout time.Duration
	clock         clock.Clock
	repo          domain.Repository
	plugins       *plugin.Registry
	locker        lock.Locker
	publisher     domain.Publisher
	metrics       *metrics.Metrics
}

func New(p Params) (*Janitor, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.Plugins == nil || p.Locker == nil || p.Publisher == nil {
		return nil, ErrInvalidConfig
	}
	pluginTimeout := p.Config.PluginCallTimeout
	if pluginTimeout <= 0 {
		pluginTimeout = 30 * time.Second
	}
	return &Janitor{
		db:            p.DB,
		log:           p.Log.Named("janitor"),
		cfg:           p.Config.Janitor.WithDefaults(),
		pluginTimeout: pluginTimeout,
		clock:         p.Clock,
		repo:          p.Repo,
		plugins:       p.Plugins,
		locker:        p.Locker,
		publisher:     p.Publisher,
		metrics:       p.Metrics,
	}, nil
}

// RunForever runs passes on the configured interval until ctx is cancelled.
func (j *Janitor) RunForever(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.log.Warn("reconciliation pass finished with errors", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a single reconciliation pass over the work window:
// non-terminal transactions old enough that an in-flight call is no longer
// plausible, young enough to still be worth chasing.
func (j *Janitor) RunOnce(ctx context.Context) error {
	start := j.clock.Now()
	if j.metrics != nil {
		j.metrics.JanitorRunsTotal.Inc()
	}

	now := start.UTC()
	createdBefore := now.Add(-j.cfg.DelayBeforeNow)
	createdAfter := now.Add(-j.cfg.GiveUpHorizon)
	candidates, err := j.repo.FindTransactionsByStatus(ctx, j.db,
		[]domain.TransactionStatus{domain.TransactionStatusPending, domain.TransactionStatusUnknown},
		createdBefore, createdAfter, j.cfg.MaxAttempts, j.cfg.BatchSize)
	if err != nil {
		return err
	}

	var errs []error
	repaired := 0
	for i := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		done, err := j.reconcile(ctx, &candidates[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("transaction %d: %w", candidates[i].ID, err))
		}
		if done {
			repaired++
		}
	}

	if j.metrics != nil {
		j.metrics.JanitorRunDuration.Observe(time.Since(start).Seconds())
	}
	j.log.Info("reconciliation pass finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("repaired", repaired),
		zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

// ReconcileOne reconciles a single transaction on demand. Terminal
// transactions are left alone and reported as not repaired.
func (j *Janitor) ReconcileOne(ctx context.Context, transactionID snowflake.ID) (bool, error) {
	txn, err := j.repo.GetTransaction(ctx, j.db, transactionID)
	if err != nil {
		return false, err
	}
	if txn.Status.Terminal() {
		return false, nil
	}
	return j.reconcile(ctx, txn)
}

func (j *Janitor) reconcile(ctx context.Context, txn *domain.PaymentTransaction) (bool, error) {
	key := fmt.Sprintf("janitor:txn:%d", txn.ID)
	token, ok, err := j.locker.TryLock(ctx, key, j.cfg.LockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		// Another worker owns this transaction.
		return false, nil
	}
	defer func() {
		if err := j.locker.Release(context.Background(), key, token); err != nil {
			j.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}()

	log := j.log.With(
		zap.Int64("transaction_id", int64(txn.ID)),
		zap.String("transaction_type", string(txn.TransactionType)),
		zap.String("status", string(txn.Status)))

	attempt, err := j.repo.FindAttemptByExternalKey(ctx, j.db, txn.AccountID, txn.TransactionType, txn.ExternalKey)
	if err != nil {
		log.Warn("no attempt for transaction, cannot resolve plugin", zap.Error(err))
		return false, nil
	}
	gw, err := j.plugins.Get(attempt.PluginName)
	if err != nil {
		log.Warn("plugin not registered", zap.String("plugin", attempt.PluginName))
		return false, nil
	}

	outcome := j.queryWithRetry(ctx, log, gw, txn)
	if outcome == nil {
		// The gateway would not answer. The transaction stays as it is, but
		// the silence still burns an attempt so a gateway that never answers
		// reaches the ceiling instead of being retried forever.
		return false, j.countAttempt(ctx, log, txn)
	}

	newStatus, stateName := state.Classify(txn.TransactionType, outcome)
	if newStatus == domain.TransactionStatusUnknown || newStatus == txn.Status {
		// The gateway does not know either, or nothing changed. Keep the
		// current status and burn one attempt.
		return false, j.countAttempt(ctx, log, txn)
	}

	now := j.clock.Now().UTC()
	correction := domain.TransactionCorrection{
		Status:            newStatus,
		StateName:         stateName,
		ProcessedAmount:   txn.ProcessedAmount,
		ProcessedCurrency: txn.ProcessedCurrency,
		GatewayErrorCode:  outcome.GatewayErrorCode,
		GatewayErrorMsg:   outcome.GatewayError,
	}
	if outcome.ProcessedCurrency != "" {
		correction.ProcessedAmount = money.Normalize(outcome.ProcessedAmount, outcome.ProcessedCurrency)
		correction.ProcessedCurrency = outcome.ProcessedCurrency
	}
	if err := j.repo.CorrectTransaction(ctx, j.db, txn.ID, correction, now); err != nil {
		if errors.Is(err, domain.ErrSuccessImmutable) {
			// Raced with the live path; the transaction already settled.
			return false, nil
		}
		return false, err
	}

	if err := j.refreshPaymentState(ctx, txn.PaymentID, now); err != nil {
		return true, err
	}

	j.publisher.Publish(ctx, domain.Event{
		Type:          domain.EventTransactionRepaired,
		AccountID:     txn.AccountID,
		PaymentID:     txn.PaymentID,
		TransactionID: txn.ID,
		DedupeKey:     fmt.Sprintf("reconcile:%d:%s", txn.ID, newStatus),
		Payload: map[string]any{
			"from_status": string(txn.Status),
			"to_status":   string(newStatus),
			"state_name":  stateName,
		},
	})
	if j.metrics != nil {
		j.metrics.JanitorRepairsTotal.Inc()
	}
	log.Info("transaction repaired", zap.String("new_status", string(newStatus)))
	return true, nil
}

// refreshPaymentState re-derives the payment's state names from the full,
// freshly corrected transaction list.
func (j *Janitor) refreshPaymentState(ctx context.Context, paymentID snowflake.ID, now time.Time) error {
	txns, err := j.repo.LoadTransactions(ctx, j.db, paymentID)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		return nil
	}
	payment, err := j.repo.GetPayment(ctx, j.db, paymentID)
	if err != nil {
		return err
	}
	lastSuccess := payment.LastSuccessStateName
	if name, ok := state.LastSuccessState(txns, 0); ok {
		lastSuccess = name
	}
	latest := txns[len(txns)-1].StateName
	return j.repo.UpdatePaymentState(ctx, j.db, paymentID, latest, lastSuccess, now)
}

func (j *Janitor) countAttempt(ctx context.Context, log *zap.Logger, txn *domain.PaymentTransaction) error {
	now := j.clock.Now().UTC()
	if err := j.repo.IncrementReconcileAttempts(ctx, j.db, txn.ID, now); err != nil {
		return err
	}
	if txn.ReconcileAttempts+1 >= j.cfg.MaxAttempts {
		log.Error("transaction exhausted reconcile attempts, operator required",
			zap.Int("attempts", txn.ReconcileAttempts+1))
		if j.metrics != nil {
			j.metrics.PermanentInconsistencies.Inc()
		}
	}
	return nil
}

func (j *Janitor) queryWithRetry(ctx context.Context, log *zap.Logger, gw domain.GatewayPlugin, txn *domain.PaymentTransaction) *domain.PluginOutcome {
	for i := 0; i <= j.cfg.QueryRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(i) * 200 * time.Millisecond):
			}
		}
		queryCtx, cancel := context.WithTimeout(ctx, j.pluginTimeout)
		outcome, err := gw.QueryStatus(queryCtx, txn.AccountID, txn.PaymentID, txn.ID)
		cancel()
		if err == nil && outcome != nil {
			return outcome
		}
		log.Warn("plugin status query failed", zap.Int("try", i+1), zap.Error(err))
	}
	return nil
}

// Module runs the janitor for the lifetime of the application.
var Module = fx.Module("payment.janitor",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)

func registerHooks(lc fx.Lifecycle, j *Janitor) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				j.RunForever(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
