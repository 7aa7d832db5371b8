package app

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"querygrid/internal/calculator"
	"querygrid/internal/config"
	"querygrid/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestNewLogger_TeesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "querygrid.log")
	var stderr bytes.Buffer
	logger, closer, err := NewLogger(&stderr, &config.Config{LogFile: path})
	require.NoError(t, err)

	logger.Print("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, stderr.String(), "hello")
}

func TestNewLogger_StderrOnly(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	logger, closer, err := NewLogger(&stderr, &config.Config{Debug: true})
	require.NoError(t, err)
	logger.Print("x")
	assert.NoError(t, closer.Close())
	assert.Contains(t, stderr.String(), "app_test.go")
}

func TestReportIssues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.False(t, ReportIssues(&buf, []config.Issue{{Severity: config.SeverityWarning, Path: "api_key", Message: "empty"}}))
	assert.True(t, ReportIssues(&buf, []config.Issue{{Severity: config.SeverityError, Path: "port", Message: "bad"}}))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "api_key: empty")
}

func TestSetupMetrics(t *testing.T) {
	h, err := SetupMetrics(&config.Config{MetricsBackend: "prometheus", MetricsJob: "t"}, quiet())
	require.NoError(t, err)
	assert.NotNil(t, h)

	h, err = SetupMetrics(&config.Config{MetricsBackend: "none"}, quiet())
	require.NoError(t, err)
	assert.Nil(t, h)

	h, err = SetupMetrics(&config.Config{MetricsBackend: "datadog", DatadogAddr: "127.0.0.1:8125", MetricsJob: "t"}, quiet())
	require.NoError(t, err)
	assert.Nil(t, h)

	_, err = SetupMetrics(&config.Config{MetricsBackend: "graphite"}, quiet())
	assert.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rules, err := LoadRules(&config.Config{}, log.New(&buf, "", 0))
	require.NoError(t, err)
	assert.Equal(t, calculator.DefaultRules(), rules)
	assert.Contains(t, buf.String(), "reads row 31")

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - {target: 2, op: sum, sources: [0, 1]}\n"), 0o600))
	rules, err = LoadRules(&config.Config{RulesFile: path}, quiet())
	require.NoError(t, err)
	assert.Equal(t, calculator.Rules{{Target: 2, Sources: []int{0, 1}, Op: calculator.OpSum}}, rules)

	_, err = LoadRules(&config.Config{RulesFile: filepath.Join(t.TempDir(), "missing.yaml")}, quiet())
	assert.Error(t, err)
}

func TestNewProcessor_SQLite(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		DBDriver:   "sqlite",
		DBName:     filepath.Join(t.TempDir(), "q.db"),
		PoolSize:   1,
		MetricsJob: "t",
	}
	ctx := context.Background()
	db, err := OpenDatabase(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	p, err := NewProcessor(cfg, db, nil, quiet())
	require.NoError(t, err)

	res, err := p.Process(ctx, pipeline.Input{Filename: "r.csv", Data: []byte("Item,A\nx,SELECT 2 + 2\n")})
	require.NoError(t, err)
	assert.Equal(t, "Item,A\nx,4\n", string(res.Output))
}
