// Package metrics collects run statistics of the seeder in a private
// Prometheus registry and optionally pushes them to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "papercut_seeder"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPartial = "partial"
	ResultNoop    = "noop"
)

// Recorder holds every collector. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	remoteCalls        *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec

	reconcileTotal    *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	accountsObserved  prometheus.Gauge
	accountsCreated   prometheus.Counter
	identityFailures  *prometheus.CounterVec

	jobsSubmitted prometheus.Counter
	jobFailures   prometheus.Counter

	lastRun *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		remoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "calls_total",
				Help:      "Total number of remote API calls by method and result",
			},
			[]string{"method", "result"},
		),

		remoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "call_duration_seconds",
				Help:      "Duration of remote API calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"method"},
		),

		reconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "passes_total",
				Help:      "Total number of reconciliation passes by result",
			},
			[]string{"result"},
		),

		reconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "duration_seconds",
				Help:      "Duration of reconciliation passes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
			},
		),

		accountsObserved: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "accounts_observed",
				Help:      "Number of accounts observed by the last enumeration",
			},
		),

		accountsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "accounts_created_total",
				Help:      "Total number of synthetic accounts created",
			},
		),

		identityFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "identity_failures_total",
				Help:      "Total number of per-identity failures by stage",
			},
			[]string{"stage"},
		),

		jobsSubmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "submitted_total",
				Help:      "Total number of simulated print jobs submitted",
			},
		),

		jobFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "failures_total",
				Help:      "Total number of simulated print jobs rejected",
			},
		),

		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed run by command",
			},
			[]string{"command"},
		),
	}

	r.registry.MustRegister(
		r.remoteCalls,
		r.remoteCallDuration,
		r.reconcileTotal,
		r.reconcileDuration,
		r.accountsObserved,
		r.accountsCreated,
		r.identityFailures,
		r.jobsSubmitted,
		r.jobFailures,
		r.lastRun,
	)

	return r
}

// Registry exposes the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRemoteCall records one remote call.
func (r *Recorder) ObserveRemoteCall(method string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	r.remoteCalls.WithLabelValues(method, result).Inc()
	r.remoteCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordReconcile records the outcome of a reconciliation pass.
func (r *Recorder) RecordReconcile(result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.reconcileTotal.WithLabelValues(result).Inc()
	r.reconcileDuration.Observe(duration.Seconds())
}

// SetAccountsObserved records the size of the latest enumeration.
func (r *Recorder) SetAccountsObserved(n int) {
	if r == nil {
		return
	}
	r.accountsObserved.Set(float64(n))
}

// RecordAccountCreated counts one fully provisioned account.
func (r *Recorder) RecordAccountCreated() {
	if r == nil {
		return
	}
	r.accountsCreated.Inc()
}

// RecordIdentityFailure counts one per-identity failure at the given stage.
func (r *Recorder) RecordIdentityFailure(stage string) {
	if r == nil {
		return
	}
	r.identityFailures.WithLabelValues(stage).Inc()
}

// RecordJob counts one simulated job submission.
func (r *Recorder) RecordJob(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.jobFailures.Inc()
		return
	}
	r.jobsSubmitted.Inc()
}

// MarkRun stamps the completion time of a command.
func (r *Recorder) MarkRun(command string, at time.Time) {
	if r == nil {
		return
	}
	r.lastRun.WithLabelValues(command).Set(float64(at.Unix()))
}

// Push sends every collected metric to a Pushgateway under the given job name.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
