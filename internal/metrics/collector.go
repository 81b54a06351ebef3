// Package metrics exposes worker activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records RPC, consent, job and training activity. A nil
// *Collector is valid and records nothing.
type Collector struct {
	rpcRequestsTotal *prometheus.CounterVec
	rpcDuration      *prometheus.HistogramVec
	consentTotal     *prometheus.CounterVec
	jobsTotal        *prometheus.CounterVec
	trainingTotal    *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	sessionState     *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the worker metrics on a fresh registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := NewCollectorWithRegisterer(namespace, reg)
	c.gatherer = reg
	return c
}

// NewCollectorWithRegisterer registers the worker metrics on reg.
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	c := &Collector{}

	c.rpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of control plane RPCs",
		},
		[]string{"method", "code"},
	)

	c.rpcDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Control plane RPC duration in seconds, including consent and queueing",
			Buckets:   []float64{0.01, 0.1, 1, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"method"},
	)

	c.consentTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consent_decisions_total",
			Help:      "Operator decisions by operation",
		},
		[]string{"operation", "decision"},
	)

	c.jobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Proposed jobs by outcome",
		},
		[]string{"result"},
	)

	c.trainingTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs by outcome",
		},
		[]string{"result"},
	)

	c.trainingDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Duration of training runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	c.sessionState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current session state, 0 otherwise",
		},
		[]string{"state"},
	)

	return c
}

// RecordRPC records a finished RPC.
func (c *Collector) RecordRPC(method, code string, d time.Duration) {
	if c == nil {
		return
	}
	c.rpcRequestsTotal.WithLabelValues(method, code).Inc()
	c.rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordConsent records an operator decision.
func (c *Collector) RecordConsent(operation string, accepted bool) {
	if c == nil {
		return
	}
	decision := "rejected"
	if accepted {
		decision = "accepted"
	}
	c.consentTotal.WithLabelValues(operation, decision).Inc()
}

// RecordJob records the outcome of a proposed job.
func (c *Collector) RecordJob(result string) {
	if c == nil {
		return
	}
	c.jobsTotal.WithLabelValues(result).Inc()
}

// RecordTraining records a finished training run.
func (c *Collector) RecordTraining(success bool, d time.Duration) {
	if c == nil {
		return
	}
	result := "failed"
	if success {
		result = "succeeded"
	}
	c.trainingTotal.WithLabelValues(result).Inc()
	c.trainingDuration.Observe(d.Seconds())
}

// SetState marks current as the active state among all.
func (c *Collector) SetState(current string, all []string) {
	if c == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		c.sessionState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the collector's registry, or the default gatherer when the
// collector was registered elsewhere.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
