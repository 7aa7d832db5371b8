package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"querygrid/internal/tabular"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to operators but does not block startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path names the flag.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be returned as one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownDrivers = []string{"postgres", "mssql", "mysql", "sqlite", "duckdb"}

var knownMetrics = []string{"prometheus", "pushgateway", "datadog", "none"}

// Validate lints c without mutating it.
func Validate(c *Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if c.Port < 1 || c.Port > 65535 {
		add(SeverityError, "port", "port %d must be between 1 and 65535", c.Port)
	}
	if c.RequestTimeout <= 0 {
		add(SeverityError, "request_timeout", "must be positive")
	}

	issues = append(issues, validateDB(c)...)

	if c.MaxFileSize <= 0 {
		add(SeverityError, "max_file_size", "must be positive, got %d", c.MaxFileSize)
	}
	if !tabular.ValidEncoding(c.CSVEncoding) {
		add(SeverityError, "csv_encoding", "unknown encoding %q (known: %s)", c.CSVEncoding, strings.Join(tabular.Encodings(), ", "))
	}
	if c.RulesFile != "" {
		if _, err := os.Stat(c.RulesFile); err != nil {
			add(SeverityError, "rules", "rules file: %v", err)
		}
	}
	if c.ScanLabelColumn {
		add(SeverityWarning, "scan_label_column", "queries in the label column will be executed")
	}

	if c.APIKey == "" {
		add(SeverityWarning, "api_key", "API key check is disabled")
	}
	for path, list := range map[string][]string{"allowed_hosts": c.AllowedHosts, "cors_origins": c.CORSOrigins} {
		if slices.Contains(list, "*") && len(list) > 1 {
			add(SeverityWarning, path, "%q already allows everything; other entries are redundant", "*")
		}
	}

	if !slices.Contains(knownMetrics, c.MetricsBackend) {
		add(SeverityError, "metrics", "unknown metrics backend %q (known: %s)", c.MetricsBackend, strings.Join(knownMetrics, ", "))
	}
	switch c.MetricsBackend {
	case "pushgateway":
		if c.PushgatewayURL == "" {
			add(SeverityError, "pushgateway_url", "required when metrics=pushgateway")
		}
	case "datadog":
		if c.DatadogAddr == "" {
			add(SeverityError, "datadog_addr", "required when metrics=datadog")
		}
	}
	return issues
}

func validateDB(c *Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Contains(knownDrivers, c.DBDriver) {
		add(SeverityError, "db_driver", "unknown driver %q (known: %s)", c.DBDriver, strings.Join(knownDrivers, ", "))
		return issues
	}
	if c.DBDriver == "duckdb" {
		add(SeverityWarning, "db_driver", "duckdb requires a binary built with -tags duckdb")
	}

	if c.DSN == "" {
		switch c.DBDriver {
		case "sqlite", "duckdb":
			if c.DBName == "" {
				add(SeverityError, "db_name", "%s needs a database file path (db_name or dsn)", c.DBDriver)
			}
		default:
			if c.DBHost == "" {
				add(SeverityError, "db_host", "required when dsn is empty")
			}
			if c.DBName == "" {
				add(SeverityError, "db_name", "required when dsn is empty")
			}
			if c.DBUser == "" {
				add(SeverityWarning, "db_user", "empty database user")
			}
		}
	}
	if c.DBPort != "" {
		if p, err := strconv.Atoi(c.DBPort); err != nil || p < 1 || p > 65535 {
			add(SeverityError, "db_port", "invalid port %q: must be between 1 and 65535", c.DBPort)
		}
	}

	if c.PoolSize < 1 {
		add(SeverityError, "db_pool_size", "must be at least 1, got %d", c.PoolSize)
	}
	if c.MaxOverflow < 0 {
		add(SeverityError, "db_max_overflow", "must not be negative, got %d", c.MaxOverflow)
	}
	if c.PoolTimeout <= 0 {
		add(SeverityError, "db_pool_timeout", "must be positive")
	}
	if c.PoolRecycle < 0 {
		add(SeverityError, "db_pool_recycle", "must not be negative")
	}
	return issues
}
