// Package app holds the wiring shared by cmd/querygrid and cmd/gridrun:
// logging, metrics backend selection, storage and the processing pipeline.
// Commands stay thin and only decide how input arrives and output leaves.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"querygrid/internal/calculator"
	"querygrid/internal/config"
	"querygrid/internal/executor"
	"querygrid/internal/metrics"
	"querygrid/internal/metrics/datadog"
	"querygrid/internal/metrics/prom"
	"querygrid/internal/pipeline"
	"querygrid/internal/storage"
	"querygrid/internal/tabular"

	// every backend is compiled in; DB_DRIVER picks one at runtime.
	_ "querygrid/internal/storage/all"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger logs to stderr and, when LOG_FILE is set, appends to that file
// as well. The returned Closer closes the file.
func NewLogger(stderr io.Writer, c *config.Config) (*log.Logger, io.Closer, error) {
	flags := log.LstdFlags | log.Lmicroseconds
	if c.Debug {
		flags |= log.Lshortfile
	}
	if c.LogFile == "" {
		return log.New(stderr, "", flags), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log file dir: %w", err)
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(io.MultiWriter(stderr, f), "", flags), f, nil
}

// ReportIssues prints config issues to w and reports whether any is an error.
func ReportIssues(w io.Writer, issues []config.Issue) bool {
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	return hasError
}

// SetupMetrics installs the backend named by METRICS_BACKEND. It returns a
// scrape handler for the Prometheus backends and nil otherwise.
func SetupMetrics(c *config.Config, logger *log.Logger) (http.Handler, error) {
	switch c.MetricsBackend {
	case "prometheus", "pushgateway":
		gw := ""
		if c.MetricsBackend == "pushgateway" {
			gw = c.PushgatewayURL
		}
		b, err := prom.NewBackend(c.MetricsJob, gw)
		if err != nil {
			return nil, fmt.Errorf("metrics: prometheus: %w", err)
		}
		metrics.SetBackend(b)
		logger.Printf("metrics: backend=%s job=%s pushgateway=%q", c.MetricsBackend, c.MetricsJob, gw)
		return b.Handler(), nil

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       c.DatadogAddr,
			Namespace:  "querygrid.",
			GlobalTags: []string{"job:" + c.MetricsJob},
		})
		if err != nil {
			return nil, fmt.Errorf("metrics: datadog: %w", err)
		}
		metrics.SetBackend(b)
		logger.Printf("metrics: backend=datadog addr=%s", c.DatadogAddr)
		return nil, nil

	case "", "none":
		logger.Printf("metrics: disabled")
		return nil, nil

	default:
		return nil, fmt.Errorf("metrics: unknown backend %q", c.MetricsBackend)
	}
}

// OpenDatabase opens the pool described by c. No connection is made yet.
func OpenDatabase(ctx context.Context, c *config.Config) (storage.Database, error) {
	return storage.New(ctx, c.Storage())
}

// LoadRules returns the rule table from RULES_FILE, or the built-in table.
// Rules that read another rule's target are logged, since their result
// depends on table order.
func LoadRules(c *config.Config, logger *log.Logger) (calculator.Rules, error) {
	rules := calculator.DefaultRules()
	if c.RulesFile != "" {
		var err error
		if rules, err = calculator.LoadRulesFile(c.RulesFile); err != nil {
			return nil, err
		}
		logger.Printf("calculator: loaded %d rules from %s", len(rules), c.RulesFile)
	}
	for _, ch := range rules.Chains() {
		logger.Printf("calculator: rule %d reads row %d written by rule %d", ch.Reader, ch.Row, ch.Writer)
	}
	return rules, nil
}

// NewProcessor builds the pipeline. reports may be nil.
func NewProcessor(c *config.Config, db storage.Database, reports pipeline.ReportStore, logger *log.Logger) (*pipeline.Processor, error) {
	rules, err := LoadRules(c, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.New(db, pipeline.Options{
		Executor: executor.New(executor.Options{
			ScanLabelColumn: c.ScanLabelColumn,
			Job:             c.MetricsJob,
			Logger:          logger,
			Debug:           c.Debug,
		}),
		Calculator:    calculator.New(rules, calculator.Options{Job: c.MetricsJob, Logger: logger}),
		Reports:       reports,
		UnresolvedDir: c.UnresolvedDir,
		Tabular:       tabular.Options{Encoding: c.CSVEncoding},
		Job:           c.MetricsJob,
		Logger:        logger,
	}), nil
}
