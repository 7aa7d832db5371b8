// Package prom implements a Prometheus backend for the metrics package.
//
// All collectors live in a private registry. The registry is exposed for
// scraping through Handler and, when a Pushgateway URL is configured, pushed
// on Flush so short-lived runs (cmd/gridrun) still report.
package prom

import (
	"fmt"
	"net/http"

	"querygrid/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a registry-backed Prometheus metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091; empty disables push
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // querygrid_step_total
	stepDuration  *prometheus.SummaryVec // querygrid_step_duration_seconds
	queryCounter  *prometheus.CounterVec // querygrid_queries_total
	ruleCounter   *prometheus.CounterVec // querygrid_rules_total
	uploadCounter *prometheus.CounterVec // querygrid_uploads_total
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend constructs a Prometheus backend. jobName defaults to
// "querygrid"; gatewayURL may be empty when metrics are only scraped.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if jobName == "" {
		jobName = "querygrid"
	}
	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.StepTotal,
		Help: "Processing step executions, partitioned by step and status.",
	}, []string{"step", "status"})
	stepDuration := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       metrics.StepDuration,
		Help:       "Duration of processing steps in seconds.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"step", "status"})
	queryCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.QueriesTotal,
		Help: "Embedded queries executed, partitioned by outcome (resolved, empty, failed).",
	}, []string{"outcome"})
	ruleCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.RulesTotal,
		Help: "Derivation rule evaluations, partitioned by status (applied, skipped, failed).",
	}, []string{"status"})
	uploadCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.UploadsTotal,
		Help: "Processed uploads, partitioned by file format and status.",
	}, []string{"format", "status"})

	b := &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		stepCounter:   stepCounter,
		stepDuration:  stepDuration,
		queryCounter:  queryCounter,
		ruleCounter:   ruleCounter,
		uploadCounter: uploadCounter,
	}

	for _, c := range []prometheus.Collector{b.stepCounter, b.stepDuration, b.queryCounter, b.ruleCounter, b.uploadCounter} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prom: register collector: %w", err)
		}
	}
	return b, nil
}

// IncCounter routes known metric names to their collectors. Unknown names
// are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.QueriesTotal:
		if b.queryCounter != nil {
			b.queryCounter.WithLabelValues(labels["outcome"]).Add(delta)
		}
	case metrics.RulesTotal:
		if b.ruleCounter != nil {
			b.ruleCounter.WithLabelValues(labels["status"]).Add(delta)
		}
	case metrics.UploadsTotal:
		if b.uploadCounter != nil {
			b.uploadCounter.WithLabelValues(labels["format"], labels["status"]).Add(delta)
		}
	}
}

// ObserveHistogram records step durations; other names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{})
}

// Flush pushes the registry to the Pushgateway, if one is configured.
func (b *Backend) Flush() error {
	if b.gatewayURL == "" {
		return nil
	}
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prom: push: %w", err)
	}
	return nil
}
