// Package pipeline runs one upload end to end: decode the file, resolve its
// embedded queries on a dedicated database session, optionally apply the
// row derivations, and encode the result in the upload's own format.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"querygrid/internal/calculator"
	"querygrid/internal/executor"
	"querygrid/internal/grid"
	"querygrid/internal/metrics"
	"querygrid/internal/report"
	"querygrid/internal/skiplog"
	"querygrid/internal/storage"
	"querygrid/internal/tabular"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// ErrInvalidInput wraps decode failures of the uploaded file.
var ErrInvalidInput = errors.New("invalid input")

// ReportStore receives one summary per successful run.
type ReportStore interface {
	Put(report.Summary) error
}

// Input is one upload.
type Input struct {
	// ID names the run. Empty means a fresh UUIDv7.
	ID       string
	Filename string
	Data     []byte
	// Calculate applies the derivation rules after the queries resolve.
	Calculate bool
}

// Result is the processed upload.
type Result struct {
	Summary report.Summary
	Format  tabular.Format
	Output  []byte
	Grid    *grid.Grid
}

// Options configures a Processor.
type Options struct {
	Executor   *executor.Executor
	Calculator *calculator.Calculator
	// Reports persists summaries when non-nil.
	Reports ReportStore
	// UnresolvedDir receives a CSV per run listing unresolved queries.
	UnresolvedDir string
	// Tabular controls decoding (CSV encoding, delimiter, sheet).
	Tabular tabular.Options
	Job     string
	Logger  *log.Logger
}

// Processor is safe for concurrent use; every Process call checks out its
// own session.
type Processor struct {
	db   storage.Database
	opts Options
	now  func() time.Time
}

// New returns a Processor over db.
func New(db storage.Database, opts Options) *Processor {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Executor == nil {
		opts.Executor = executor.New(executor.Options{Job: opts.Job, Logger: opts.Logger})
	}
	if opts.Calculator == nil {
		opts.Calculator = calculator.New(nil, calculator.Options{Job: opts.Job, Logger: opts.Logger})
	}
	return &Processor{db: db, opts: opts, now: time.Now}
}

// Process runs in through every step. The returned error wraps
// tabular.ErrUnsupportedFormat, ErrInvalidInput or
// executor.ErrDatabaseUnavailable when one of those is the cause.
func (p *Processor) Process(ctx context.Context, in Input) (res Result, err error) {
	start := p.now()
	format, err := tabular.FormatFromFilename(in.Filename)
	if err != nil {
		return Result{}, err
	}
	defer func() { metrics.RecordUpload(p.opts.Job, string(format), err) }()

	id := in.ID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return Result{}, fmt.Errorf("pipeline: run id: %w", err)
		}
		id = u.String()
	}

	g, err := p.read(in.Data, format)
	if err != nil {
		return Result{}, err
	}

	exec, err := p.execute(ctx, g)
	if err != nil {
		return Result{}, err
	}

	var calc calculator.Report
	if in.Calculate {
		t := p.now()
		calc = p.opts.Calculator.Calculate(g)
		metrics.RecordStep(p.opts.Job, "calculate", nil, p.now().Sub(t))
	}

	var out bytes.Buffer
	t := p.now()
	err = tabular.Write(&out, g, format)
	metrics.RecordStep(p.opts.Job, "write", err, p.now().Sub(t))
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: write %s: %w", format, err)
	}

	sum := report.Summary{
		ID:           id,
		Filename:     in.Filename,
		Format:       string(format),
		Fingerprint:  fmt.Sprintf("%016x", xxh3.Hash(in.Data)),
		Bytes:        int64(len(in.Data)),
		Rows:         g.Rows(),
		Columns:      g.Cols(),
		TotalQueries: exec.Total,
		Unresolved:   exec.Unresolved,
		Calculated:   in.Calculate,
		RulesApplied: calc.Applied,
		RulesSkipped: calc.Skipped,
		RulesFailed:  calc.Failed,
		StartedAt:    start.UTC(),
		Duration:     p.now().Sub(start),
	}
	if sum.Unresolved == nil {
		sum.Unresolved = []string{}
	}
	p.logUnresolved(id, exec)
	p.store(sum)

	p.opts.Logger.Printf("pipeline: run=%s file=%q %s queries=%d unresolved=%d in %s",
		id, in.Filename, g, sum.TotalQueries, len(sum.Unresolved), sum.Duration.Truncate(time.Millisecond))
	return Result{Summary: sum, Format: format, Output: out.Bytes(), Grid: g}, nil
}

func (p *Processor) read(data []byte, format tabular.Format) (*grid.Grid, error) {
	t := p.now()
	g, err := tabular.Read(bytes.NewReader(data), format, p.opts.Tabular)
	metrics.RecordStep(p.opts.Job, "read", err, p.now().Sub(t))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w: %v", ErrInvalidInput, err)
	}
	return g, nil
}

// execute checks out one session for the whole grid. Grids without query
// cells never touch the database.
func (p *Processor) execute(ctx context.Context, g *grid.Grid) (executor.Report, error) {
	if !p.opts.Executor.HasQueries(g) {
		return executor.Report{}, nil
	}
	t := p.now()
	s, err := p.db.Acquire(ctx)
	if err != nil {
		metrics.RecordStep(p.opts.Job, "execute", err, p.now().Sub(t))
		return executor.Report{}, fmt.Errorf("pipeline: %w: %v", executor.ErrDatabaseUnavailable, err)
	}
	defer s.Release()

	rep, err := p.opts.Executor.Execute(ctx, g, s)
	metrics.RecordStep(p.opts.Job, "execute", err, p.now().Sub(t))
	if err != nil {
		return executor.Report{}, fmt.Errorf("pipeline: %w", err)
	}
	return rep, nil
}

func (p *Processor) logUnresolved(id string, rep executor.Report) {
	if p.opts.UnresolvedDir == "" || len(rep.Unresolved) == 0 {
		return
	}
	l, err := skiplog.Create(p.opts.UnresolvedDir, id)
	if err != nil {
		p.opts.Logger.Printf("pipeline: warning: %v", err)
		return
	}
	for _, o := range rep.Outcomes {
		if o.Kind == executor.Resolved {
			continue
		}
		detail := ""
		if o.Err != nil {
			detail = o.Err.Error()
		}
		if err := l.Add(o.Kind.String(), o.Row, o.Column, o.Query, detail); err != nil {
			p.opts.Logger.Printf("pipeline: warning: skiplog: %v", err)
			break
		}
	}
	if err := l.Close(); err != nil {
		p.opts.Logger.Printf("pipeline: warning: %v", err)
		return
	}
	p.opts.Logger.Printf("pipeline: run=%s unresolved queries written to %s %v", id, l.Path(), l.Counts())
}

func (p *Processor) store(sum report.Summary) {
	if p.opts.Reports == nil {
		return
	}
	if err := p.opts.Reports.Put(sum); err != nil {
		p.opts.Logger.Printf("pipeline: warning: store report %s: %v", sum.ID, err)
	}
}
