package prom

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"querygrid/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

func readSummaryCount(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend_Defaults(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("", "")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if b.jobName != "querygrid" {
		t.Fatalf("jobName = %q, want querygrid", b.jobName)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() without gateway = %v, want nil", err)
	}
}

func TestIncCounter_Routing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		metric string
		labels metrics.Labels
		read   func(b *Backend) prometheus.Counter
	}{
		{
			name:   "step",
			metric: metrics.StepTotal,
			labels: metrics.Labels{"job": "web", "step": "execute", "status": "success"},
			read:   func(b *Backend) prometheus.Counter { return b.stepCounter.WithLabelValues("execute", "success") },
		},
		{
			name:   "query",
			metric: metrics.QueriesTotal,
			labels: metrics.Labels{"outcome": "failed"},
			read:   func(b *Backend) prometheus.Counter { return b.queryCounter.WithLabelValues("failed") },
		},
		{
			name:   "rule",
			metric: metrics.RulesTotal,
			labels: metrics.Labels{"status": "applied"},
			read:   func(b *Backend) prometheus.Counter { return b.ruleCounter.WithLabelValues("applied") },
		},
		{
			name:   "upload",
			metric: metrics.UploadsTotal,
			labels: metrics.Labels{"format": "csv", "status": "failure"},
			read:   func(b *Backend) prometheus.Counter { return b.uploadCounter.WithLabelValues("csv", "failure") },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend("test", "")
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			b.IncCounter(tt.metric, 2, tt.labels)
			b.IncCounter(tt.metric, 1, tt.labels)
			b.IncCounter("unknown_metric", 5, tt.labels)

			if got := readCounterValue(t, tt.read(b)); got != 3 {
				t.Fatalf("counter = %v, want 3", got)
			}
		})
	}
}

func TestZeroBackend_NoPanic(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, nil)
	b.IncCounter(metrics.QueriesTotal, 1, nil)
	b.IncCounter(metrics.RulesTotal, 1, nil)
	b.IncCounter(metrics.UploadsTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDuration, 1, nil)
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("test", "")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "read", "status": "success"})
	b.ObserveHistogram(metrics.StepDuration, 0.75, metrics.Labels{"step": "read", "status": "success"})
	b.ObserveHistogram("other", 10, metrics.Labels{"step": "read", "status": "success"})

	count, sum := readSummaryCount(t, b.stepDuration, "read", "success")
	if count != 2 || sum != 1 {
		t.Fatalf("summary count=%d sum=%v, want 2 and 1", count, sum)
	}
}

func TestHandler_ExposesRegistry(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("test", "")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.QueriesTotal, 1, metrics.Labels{"outcome": "resolved"})

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `querygrid_queries_total{outcome="resolved"} 1`) {
		t.Fatalf("exposition missing query counter:\n%s", body)
	}
}

type pushRequestInfo struct {
	method  string
	path    string
	bodyLen int
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	reqCh := make(chan pushRequestInfo, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequestInfo{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("gridrun", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.UploadsTotal, 1, metrics.Labels{"format": "xlsx", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	select {
	case got := <-reqCh:
		if got.method != http.MethodPut {
			t.Fatalf("method = %q, want PUT", got.method)
		}
		if !strings.Contains(got.path, "/job/gridrun") {
			t.Fatalf("path = %q, want job grouping", got.path)
		}
		if got.bodyLen == 0 {
			t.Fatal("push body is empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Flush() did not reach the Pushgateway")
	}
}

func TestFlush_GatewayError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b, err := NewBackend("gridrun", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if err := b.Flush(); err == nil {
		t.Fatal("Flush() error = nil, want gateway failure")
	}
}
