// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from query-grid processing.
//
// The package exposes a narrow Backend interface (counters and timing data)
// and a global, pluggable backend that defaults to a no-op implementation, so
// instrumentation is always safe to call even when nothing is configured.
// Concrete metric systems live in subpackages (prom, datadog) so the executor,
// calculator and transport depend only on this package.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the Record helpers.
const (
	StepTotal     = "querygrid_step_total"
	StepDuration  = "querygrid_step_duration_seconds"
	QueriesTotal  = "querygrid_queries_total"
	RulesTotal    = "querygrid_rules_total"
	UploadsTotal  = "querygrid_uploads_total"
	statusSuccess = "success"
	statusFailure = "failure"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

func status(err error) string {
	if err != nil {
		return statusFailure
	}
	return statusSuccess
}

// RecordStep measures latency and success/failure of one processing step
// ("read", "execute", "calculate", "write").
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status(err),
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordQuery counts one embedded query by outcome
// ("resolved", "empty", "failed").
func RecordQuery(job, outcome string) {
	current().IncCounter(QueriesTotal, 1, Labels{
		"job":     job,
		"outcome": outcome,
	})
}

// RecordRule adds delta rule evaluations with the given status
// ("applied", "skipped", "failed").
func RecordRule(job, status string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RulesTotal, float64(delta), Labels{
		"job":    job,
		"status": status,
	})
}

// RecordUpload counts one processed upload by file format and result.
func RecordUpload(job, format string, err error) {
	current().IncCounter(UploadsTotal, 1, Labels{
		"job":    job,
		"format": format,
		"status": status(err),
	})
}
