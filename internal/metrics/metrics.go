// Package metrics exposes Prometheus collectors for the registration and
// verification pipelines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline records pipeline outcomes and adapter latency. A nil *Pipeline is
// safe to use and records nothing.
type Pipeline struct {
	// Registrations by status: registered, alreadyRegistered
	Registrations *prometheus.CounterVec
	// Verifications by status: found, notFound
	Verifications *prometheus.CounterVec
	// Failures by operation, stage and kind
	Failures *prometheus.CounterVec

	RegisterLatency prometheus.Histogram
	AdapterLatency  *prometheus.HistogramVec
	AdapterErrors   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Pipeline {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Pipeline {
	factory := promauto.With(reg)
	return &Pipeline{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_registrations_total",
			Help: "Registration outcomes by status",
		}, []string{"status"}),

		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_verifications_total",
			Help: "Verification outcomes by status",
		}, []string{"status"}),

		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_pipeline_failures_total",
			Help: "Pipeline failures by operation, stage and kind",
		}, []string{"operation", "stage", "kind"}),

		RegisterLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "provenance_register_duration_seconds",
			Help:    "Duration of Register calls that returned an outcome",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		AdapterLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provenance_adapter_duration_seconds",
			Help:    "Duration of oracle and blob store calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"adapter"}),

		AdapterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provenance_adapter_errors_total",
			Help: "Failed oracle and blob store calls",
		}, []string{"adapter"}),

		gatherer: reg,
	}
}

func (m *Pipeline) RecordRegistration(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(status).Inc()
	m.RegisterLatency.Observe(elapsed.Seconds())
}

func (m *Pipeline) RecordVerification(status string, _ time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(status).Inc()
}

func (m *Pipeline) RecordFailure(operation, stage, kind string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(operation, stage, kind).Inc()
}

func (m *Pipeline) RecordAdapterCall(adapter string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.AdapterLatency.WithLabelValues(adapter).Observe(elapsed.Seconds())
	if err != nil {
		m.AdapterErrors.WithLabelValues(adapter).Inc()
	}
}

// Handler serves the Prometheus exposition format for the collectors.
func (m *Pipeline) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
