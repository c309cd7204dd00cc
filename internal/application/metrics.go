package application

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	SweepsTotal          *prometheus.CounterVec
	AccountsTransitioned *prometheus.CounterVec
	AccountFailures      *prometheus.CounterVec
	SweepDuration        *prometheus.HistogramVec
	NoticesTotal         *prometheus.CounterVec
	LockContention       *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_sweeps_total",
				Help: "Total lifecycle sweeps by outcome.",
			},
			[]string{"rule", "status"},
		),
		AccountsTransitioned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_accounts_transitioned_total",
				Help: "Accounts written or removed by a rule.",
			},
			[]string{"rule"},
		),
		AccountFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_account_failures_total",
				Help: "Per-account failures that did not abort the batch.",
			},
			[]string{"rule", "kind"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lifecycle_sweep_duration_seconds",
				Help:    "Wall time of one sweep.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"rule"},
		),
		NoticesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_notices_sent_total",
				Help: "Dormancy notices attempted by delivery status.",
			},
			[]string{"status"},
		),
		LockContention: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_lock_contention_total",
				Help: "Sweeps skipped because another instance held the rule lock.",
			},
			[]string{"rule"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.SweepsTotal,
			m.AccountsTransitioned,
			m.AccountFailures,
			m.SweepDuration,
			m.NoticesTotal,
			m.LockContention,
		)
	}

	return m
}
