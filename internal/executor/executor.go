// Package executor resolves embedded SQL queries in a grid.
//
// Every cell whose text is classified as a query is executed through a
// storage.Session and replaced by the first column of the first result row.
// Cells are visited in row-major order; each query runs in its own
// transaction, and a failing query only affects its own cell.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"querygrid/internal/grid"
	"querygrid/internal/metrics"
	"querygrid/internal/storage"
)

// ErrDatabaseUnavailable reports that the session could not be used before
// the first query ran. The grid is left untouched in that case.
var ErrDatabaseUnavailable = errors.New("database unavailable")

// DefaultToken is the lower-case prefix that marks a query cell.
const DefaultToken = "select"

// Classifier decides whether a cell holds query text.
type Classifier struct {
	Token string
}

// IsQuery reports whether c is a Text cell whose trimmed, lower-cased
// content starts with the classifier token. Numbers and nulls never are.
func (cl Classifier) IsQuery(c grid.Cell) bool {
	s, ok := c.Str()
	if !ok {
		return false
	}
	tok := cl.Token
	if tok == "" {
		tok = DefaultToken
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), strings.ToLower(tok))
}

// OutcomeKind classifies what happened to one query cell.
type OutcomeKind uint8

const (
	// Resolved: the query returned a usable first value.
	Resolved OutcomeKind = iota
	// Empty: the query ran but returned no rows, or a NULL first value.
	Empty
	// Failed: the query returned an error.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
	}
}

// Outcome is the per-cell result of one query.
type Outcome struct {
	Row    int
	Col    int
	Column string
	Query  string
	Kind   OutcomeKind
	Value  grid.Cell // Null unless Kind == Resolved
	Err    error     // set only when Kind == Failed
}

// Report summarizes one Execute call.
type Report struct {
	// Total is the number of query cells visited.
	Total int
	// Unresolved holds the original text of every Empty or Failed query, in
	// visitation order.
	Unresolved []string
	// Outcomes has one entry per query cell, in visitation order.
	Outcomes []Outcome
}

// Options configures an Executor.
type Options struct {
	Classifier Classifier
	// ScanLabelColumn also classifies cells in grid.LabelColumn.
	ScanLabelColumn bool
	// Job labels emitted metrics.
	Job string
	// Logger receives per-query failures. Defaults to log.Default().
	Logger *log.Logger
	// Debug logs every resolved query as well.
	Debug bool
}

// Executor runs query cells against a session.
type Executor struct {
	opts Options
}

// New returns an Executor configured by opts.
func New(opts Options) *Executor {
	if opts.Classifier.Token == "" {
		opts.Classifier.Token = DefaultToken
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Executor{opts: opts}
}

// Execute resolves every query cell of g in place using s.
//
// Per-query errors never propagate: they become Null cells and entries in
// Report.Unresolved. Execute returns an error only when the session fails
// its ping before the first query (wrapping ErrDatabaseUnavailable) or when
// ctx is done; in the latter case g is partially processed and should be
// discarded.
func (e *Executor) Execute(ctx context.Context, g *grid.Grid, s storage.Session) (Report, error) {
	var (
		rep    Report
		pinged bool
	)

	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			if !e.isQueryCell(g, r, c) {
				continue
			}
			cell := g.At(r, c)
			if err := ctx.Err(); err != nil {
				return rep, fmt.Errorf("executor: %w", err)
			}
			if !pinged {
				if err := s.Ping(ctx); err != nil {
					return Report{}, fmt.Errorf("executor: %w: %v", ErrDatabaseUnavailable, err)
				}
				pinged = true
			}

			q, _ := cell.Str()
			out := e.run(ctx, s, q)
			out.Row, out.Col, out.Column = r, c, g.Column(c)

			g.Set(r, c, out.Value)
			rep.Total++
			rep.Outcomes = append(rep.Outcomes, out)
			if out.Kind != Resolved {
				rep.Unresolved = append(rep.Unresolved, q)
			}
			e.log(out)
			metrics.RecordQuery(e.opts.Job, out.Kind.String())
		}
	}
	return rep, nil
}

// HasQueries reports whether Execute would run at least one query on g.
// Callers use it to skip checking out a session for query-free grids.
func (e *Executor) HasQueries(g *grid.Grid) bool {
	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			if e.isQueryCell(g, r, c) {
				return true
			}
		}
	}
	return false
}

func (e *Executor) isQueryCell(g *grid.Grid, r, c int) bool {
	if c == grid.LabelColumn && !e.opts.ScanLabelColumn {
		return false
	}
	return e.opts.Classifier.IsQuery(g.At(r, c))
}

func (e *Executor) run(ctx context.Context, s storage.Session, q string) Outcome {
	row, err := s.QueryFirst(ctx, q)
	if err != nil {
		return Outcome{Query: q, Kind: Failed, Value: grid.Null(), Err: err}
	}
	if !row.Found {
		return Outcome{Query: q, Kind: Empty, Value: grid.Null()}
	}
	v := grid.FromValue(row.Value)
	if v.IsNull() {
		return Outcome{Query: q, Kind: Empty, Value: v}
	}
	return Outcome{Query: q, Kind: Resolved, Value: v}
}

func (e *Executor) log(o Outcome) {
	switch o.Kind {
	case Failed:
		e.opts.Logger.Printf("executor: query failed row=%d column=%q err=%v", o.Row, o.Column, o.Err)
	case Empty:
		if e.opts.Debug {
			e.opts.Logger.Printf("executor: query returned no value row=%d column=%q", o.Row, o.Column)
		}
	case Resolved:
		if e.opts.Debug {
			e.opts.Logger.Printf("executor: query resolved row=%d column=%q value=%s", o.Row, o.Column, o.Value)
		}
	}
}
