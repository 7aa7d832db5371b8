// Package config centralizes process configuration. Every tunable is a
// command-line flag whose default is seeded from an environment variable
// (12-factor friendly), so `-help` lists all knobs with their effective
// defaults.
//
// Typical usage:
//
//	cfg, err := config.Load() // reads os.Args and os.Getenv
//
// For tests, prefer LoadFromArgs to keep them hermetic:
//
//	fs := flag.NewFlagSet("test", flag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg, err := config.LoadFromArgs(fs, getenv, []string{"-db_driver=sqlite"})
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"querygrid/internal/storage"

	"github.com/go-sql-driver/mysql"
)

// Config holds all process configuration. All fields are plain values so
// the struct can be copied and shared across goroutines after Load.
type Config struct {
	// HTTP listener.
	Host           string
	Port           int
	RequestTimeout time.Duration

	// Database. DSN wins; otherwise a DSN is built from the discrete parts.
	DBDriver   string
	DSN        string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// Pool sizing: PoolSize steady connections plus up to MaxOverflow more.
	PoolSize    int
	MaxOverflow int
	PoolTimeout time.Duration // wait for a free connection
	PoolRecycle time.Duration // max connection lifetime

	// Upload handling.
	MaxFileSize     int64
	CSVEncoding     string
	RulesFile       string
	ScanLabelColumn bool
	UnresolvedDir   string // per-run CSV logs of unresolved queries; empty disables

	// Security.
	APIKey       string
	AllowedHosts []string
	CORSOrigins  []string

	// Logging.
	Debug   bool
	LogFile string

	// Metrics.
	MetricsBackend string // prometheus | pushgateway | datadog | none
	PushgatewayURL string
	DatadogAddr    string
	MetricsJob     string

	// ReportsDB is the bbolt file run summaries are kept in; empty disables.
	ReportsDB string
}

// LoadFromArgs builds a Config by defining flags on fs, seeding each flag's
// default from getenv, and then parsing args.
//
// Precedence:
//  1. Environment values seed each flag's default.
//  2. Explicit CLI flags (in args) override the seeded defaults.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	cfg := &Config{}

	envOrDefaultFn := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	intEnvOrDefaultFn := func(k string, d int) int {
		if v := getenv(k); v != "" {
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return i
			}
		}
		return d
	}
	boolEnvOrDefaultFn := func(k string, d bool) bool {
		if v := strings.ToLower(strings.TrimSpace(getenv(k))); v != "" {
			switch v {
			case "1", "true", "yes", "on":
				return true
			case "0", "false", "no", "off":
				return false
			}
		}
		return d
	}
	// Durations accept Go syntax ("30s") or bare seconds ("30").
	durEnvOrDefaultFn := func(k string, d time.Duration) time.Duration {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			if p, err := parseDuration(v); err == nil {
				return p
			}
		}
		return d
	}

	// HTTP
	fs.StringVar(&cfg.Host, "host", envOrDefaultFn("APP_HOST", "0.0.0.0"), "Listen host")
	fs.IntVar(&cfg.Port, "port", intEnvOrDefaultFn("APP_PORT", 8000), "Listen port")
	fs.DurationVar(&cfg.RequestTimeout, "request_timeout", durEnvOrDefaultFn("REQUEST_TIMEOUT", 120*time.Second), "Upper bound for processing one upload")

	// DB connectivity
	fs.StringVar(&cfg.DBDriver, "db_driver", envOrDefaultFn("DB_DRIVER", "postgres"), "Database driver: postgres, mssql, mysql, sqlite or duckdb")
	fs.StringVar(&cfg.DSN, "dsn", getenv("DB_DSN"), "Full DSN; when empty it is built from the db_* parts")
	fs.StringVar(&cfg.DBUser, "db_user", getenv("DB_USER"), "DB user")
	fs.StringVar(&cfg.DBPassword, "db_password", getenv("DB_PASSWORD"), "DB password")
	fs.StringVar(&cfg.DBHost, "db_host", envOrDefaultFn("DB_HOST", "localhost"), "DB host")
	fs.StringVar(&cfg.DBPort, "db_port", getenv("DB_PORT"), "DB port (driver default when empty)")
	fs.StringVar(&cfg.DBName, "db_name", getenv("DB_NAME"), "DB name (file path for sqlite/duckdb)")

	// Pool
	fs.IntVar(&cfg.PoolSize, "db_pool_size", intEnvOrDefaultFn("DB_POOL_SIZE", 20), "Steady pool size")
	fs.IntVar(&cfg.MaxOverflow, "db_max_overflow", intEnvOrDefaultFn("DB_MAX_OVERFLOW", 10), "Extra connections allowed above the pool size")
	fs.DurationVar(&cfg.PoolTimeout, "db_pool_timeout", durEnvOrDefaultFn("DB_POOL_TIMEOUT", 30*time.Second), "Wait for a free connection")
	fs.DurationVar(&cfg.PoolRecycle, "db_pool_recycle", durEnvOrDefaultFn("DB_POOL_RECYCLE", 1800*time.Second), "Maximum connection lifetime")

	// Uploads
	maxFile := fs.Int64("max_file_size", int64(intEnvOrDefaultFn("MAX_FILE_SIZE", 10<<20)), "Largest accepted upload in bytes")
	fs.StringVar(&cfg.CSVEncoding, "csv_encoding", envOrDefaultFn("CSV_ENCODING", "utf-8"), "Character set of uploaded CSV files")
	fs.StringVar(&cfg.RulesFile, "rules", getenv("RULES_FILE"), "YAML derivation rule table (built-in table when empty)")
	fs.BoolVar(&cfg.ScanLabelColumn, "scan_label_column", boolEnvOrDefaultFn("SCAN_LABEL_COLUMN", false), "Also execute queries found in the label column")
	fs.StringVar(&cfg.UnresolvedDir, "unresolved_dir", getenv("UNRESOLVED_DIR"), "Directory for per-run CSV logs of unresolved queries")

	// Security
	fs.StringVar(&cfg.APIKey, "api_key", getenv("API_KEY"), "Required X-API-Key value (check disabled when empty)")
	allowedHosts := fs.String("allowed_hosts", envOrDefaultFn("ALLOWED_HOSTS", "*"), "Comma-separated or JSON list of allowed Host headers")
	corsOrigins := fs.String("cors_origins", envOrDefaultFn("CORS_ORIGINS", "*"), "Comma-separated or JSON list of allowed CORS origins")

	// Logging
	fs.BoolVar(&cfg.Debug, "debug", boolEnvOrDefaultFn("DEBUG", false), "Verbose logging")
	fs.StringVar(&cfg.LogFile, "log_file", getenv("LOG_FILE"), "Also append logs to this file")

	// Metrics and reports
	fs.StringVar(&cfg.MetricsBackend, "metrics", envOrDefaultFn("METRICS_BACKEND", "prometheus"), "Metrics backend: prometheus, pushgateway, datadog or none")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway_url", getenv("PUSHGATEWAY_URL"), "Prometheus Pushgateway base URL")
	fs.StringVar(&cfg.DatadogAddr, "datadog_addr", envOrDefaultFn("DATADOG_ADDR", "127.0.0.1:8125"), "DogStatsD address")
	fs.StringVar(&cfg.MetricsJob, "metrics_job", envOrDefaultFn("METRICS_JOB", "querygrid"), "Job label for metrics")
	fs.StringVar(&cfg.ReportsDB, "reports_db", getenv("REPORTS_DB"), "bbolt file for run summaries (disabled when empty)")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.MaxFileSize = *maxFile
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.MetricsBackend = strings.ToLower(strings.TrimSpace(cfg.MetricsBackend))
	var err error
	if cfg.AllowedHosts, err = parseList(*allowedHosts); err != nil {
		return nil, fmt.Errorf("allowed_hosts: %w", err)
	}
	if cfg.CORSOrigins, err = parseList(*corsOrigins); err != nil {
		return nil, fmt.Errorf("cors_origins: %w", err)
	}
	return cfg, nil
}

// Load is the production entry point: flag.CommandLine, os.Getenv and
// os.Args[1:].
func Load() (*Config, error) {
	return LoadFromArgs(flag.CommandLine, os.Getenv, os.Args[1:])
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// defaultPorts are used when DB_PORT is empty.
var defaultPorts = map[string]string{
	"postgres": "5432",
	"mssql":    "1433",
	"mysql":    "3306",
}

// DatabaseDSN returns DSN when set, otherwise a driver-specific DSN built
// from the discrete DB_* settings.
func (c *Config) DatabaseDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	port := c.DBPort
	if port == "" {
		port = defaultPorts[c.DBDriver]
	}
	hostPort := net.JoinHostPort(c.DBHost, port)

	switch c.DBDriver {
	case "postgres":
		u := url.URL{Scheme: "postgres", User: url.UserPassword(c.DBUser, c.DBPassword), Host: hostPort, Path: "/" + c.DBName}
		return u.String()
	case "mssql":
		u := url.URL{Scheme: "sqlserver", User: url.UserPassword(c.DBUser, c.DBPassword), Host: hostPort}
		u.RawQuery = url.Values{"database": {c.DBName}}.Encode()
		return u.String()
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.DBUser
		mc.Passwd = c.DBPassword
		mc.Net = "tcp"
		mc.Addr = hostPort
		mc.DBName = c.DBName
		return mc.FormatDSN()
	default:
		// sqlite and duckdb take a file path.
		return c.DBName
	}
}

// Storage translates the pool settings into a storage.Config.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		Kind:            c.DBDriver,
		DSN:             c.DatabaseDSN(),
		MaxConns:        c.PoolSize + c.MaxOverflow,
		MinConns:        c.PoolSize,
		AcquireTimeout:  c.PoolTimeout,
		MaxConnLifetime: c.PoolRecycle,
	}
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// parseList accepts "a, b" or a JSON array such as `["a","b"]`.
func parseList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("invalid JSON list: %w", err)
		}
		return out, nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
