// Package metrics exposes the engine's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

// Metrics holds the application-level instruments. A nil *Metrics is safe to
// skip at call sites guarded by optional injection.
type Metrics struct {
	TransactionsTotal        *prometheus.CounterVec
	ControlAbortsTotal       *prometheus.CounterVec
	JanitorRunsTotal         prometheus.Counter
	JanitorRepairsTotal      prometheus.Counter
	JanitorRunDuration       prometheus.Histogram
	PermanentInconsistencies prometheus.Counter
	EventsPublishedTotal     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paycore",
			Name:      "transactions_total",
			Help:      "Payment transactions recorded, by type and resulting status.",
		}, []string{"transaction_type", "status"}),
		ControlAbortsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paycore",
			Name:      "control_aborts_total",
			Help:      "Operations aborted by a control plugin.",
		}, []string{"plugin"}),
		JanitorRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paycore",
			Name:      "janitor_runs_total",
			Help:      "Reconciliation passes started.",
		}),
		JanitorRepairsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paycore",
			Name:      "janitor_repairs_total",
			Help:      "Transactions moved to their true state by reconciliation.",
		}),
		JanitorRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "paycore",
			Name:      "janitor_run_duration_seconds",
			Help:      "Wall time of one reconciliation pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		PermanentInconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paycore",
			Name:      "janitor_permanent_inconsistencies_total",
			Help:      "Transactions that exhausted their reconcile attempts and need an operator.",
		}),
		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paycore",
			Name:      "events_published_total",
			Help:      "Domain events written to the outbox.",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.TransactionsTotal,
		m.ControlAbortsTotal,
		m.JanitorRunsTotal,
		m.JanitorRepairsTotal,
		m.JanitorRunDuration,
		m.PermanentInconsistencies,
		m.EventsPublishedTotal,
	)
	return m
}

var Module = fx.Module("metrics",
	fx.Provide(func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return reg
	}),
	fx.Provide(func(reg *prometheus.Registry) prometheus.Registerer { return reg }),
	fx.Provide(New),
)
