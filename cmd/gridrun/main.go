// Command gridrun processes one report file from disk: it resolves the
// embedded queries, applies the row derivations and writes the result next
// to the input (or to -out). Database and metrics settings are shared with
// the querygrid service, so the same environment works for both.
//
//	gridrun -in report.xlsx -db_driver postgres -dsn postgres://...
//	gridrun -print-rules > rules.yaml
//
// Exit codes: 0 on success, 1 on any fatal error, 2 with -strict when at
// least one query stayed unresolved.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"querygrid/internal/app"
	"querygrid/internal/calculator"
	"querygrid/internal/config"
	"querygrid/internal/metrics"
	"querygrid/internal/pipeline"
	"querygrid/internal/report"
	"querygrid/internal/storage"
	"querygrid/internal/tabular"
)

const (
	exitOK         = 0
	exitFatal      = 1
	exitUnresolved = 2
)

// Deps holds the side effects run needs.
type Deps struct {
	OpenDB func(ctx context.Context, c *config.Config) (storage.Database, error)
}

func defaultDeps() Deps { return Deps{OpenDB: app.OpenDatabase} }

// defaultOutput derives "<dir>/<name>_processed<ext>" from in.
func defaultOutput(in string, f tabular.Format) string {
	base := strings.TrimSuffix(in, filepath.Ext(in))
	return base + "_processed" + f.Extension()
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer, deps Deps) int {
	fs := flag.NewFlagSet("gridrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "input report (.csv, .xlsx or .xlsm)")
	out := fs.String("out", "", "output path (default <in>_processed.<ext>)")
	noCalc := fs.Bool("no-calc", false, "skip the row derivations")
	strict := fs.Bool("strict", false, "exit 2 when any query is unresolved")
	printRules := fs.Bool("print-rules", false, "print the active rule table as YAML and exit")

	cfg, err := config.LoadFromArgs(fs, getenv, args)
	if err != nil {
		return exitFatal
	}
	if *printRules {
		rules, err := app.LoadRules(cfg, log.New(stderr, "", 0))
		if err == nil {
			err = calculator.WriteRules(stdout, rules)
		}
		if err != nil {
			fmt.Fprintf(stderr, "gridrun: %v\n", err)
			return exitFatal
		}
		return exitOK
	}
	if *in == "" {
		fmt.Fprintln(stderr, "gridrun: -in is required")
		return exitFatal
	}
	if app.ReportIssues(stderr, config.Validate(cfg)) {
		fmt.Fprintln(stderr, "gridrun: configuration is invalid")
		return exitFatal
	}

	if err := process(ctx, cfg, *in, *out, !*noCalc, *strict, stdout, stderr, deps); err != nil {
		if errors.Is(err, errUnresolved) {
			return exitUnresolved
		}
		fmt.Fprintf(stderr, "gridrun: %v\n", err)
		return exitFatal
	}
	return exitOK
}

var errUnresolved = errors.New("unresolved queries")

func process(ctx context.Context, cfg *config.Config, in, out string, calculate, strict bool, stdout, stderr io.Writer, deps Deps) error {
	logger, logCloser, err := app.NewLogger(stderr, cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if _, err := app.SetupMetrics(cfg, logger); err != nil {
		return err
	}
	// Pushgateway and DogStatsD both need a final flush for a batch run.
	defer func() {
		if err := metrics.Flush(); err != nil {
			logger.Printf("metrics: flush error: %v", err)
		}
	}()

	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}

	db, err := deps.OpenDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var store pipeline.ReportStore
	if cfg.ReportsDB != "" {
		s, err := report.Open(cfg.ReportsDB)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	proc, err := app.NewProcessor(cfg, db, store, logger)
	if err != nil {
		return err
	}
	res, err := proc.Process(ctx, pipeline.Input{
		Filename:  filepath.Base(in),
		Data:      data,
		Calculate: calculate,
	})
	if err != nil {
		return err
	}

	if out == "" {
		out = defaultOutput(in, res.Format)
	}
	if err := os.WriteFile(out, res.Output, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.Printf("wrote %s", out)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Summary); err != nil {
		return err
	}
	if strict && len(res.Summary.Unresolved) > 0 {
		return errUnresolved
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}
