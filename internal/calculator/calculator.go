// Package calculator applies row-derivation rules to a grid.
//
// For every column except grid.LabelColumn, each rule in table order reads
// its source rows, coerces them to numbers and writes the result into its
// target row. A source that is not numeric turns the result into Null.
// Rules whose rows fall outside the grid are skipped; nothing here returns
// an error.
package calculator

import (
	"fmt"
	"log"

	"querygrid/internal/grid"
	"querygrid/internal/metrics"
)

// Options configures a Calculator.
type Options struct {
	// Job labels emitted metrics.
	Job string
	// Logger receives skip warnings and recovered failures. Defaults to
	// log.Default().
	Logger *log.Logger
}

// Report counts (rule, column) evaluations of one Calculate call.
type Report struct {
	Applied int
	Skipped int
	Failed  int
}

// Calculator evaluates an immutable rule table.
type Calculator struct {
	rules Rules
	opts  Options
}

// New returns a Calculator over rules; nil rules means DefaultRules.
func New(rules Rules, opts Options) *Calculator {
	if rules == nil {
		rules = DefaultRules()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Calculator{rules: append(Rules(nil), rules...), opts: opts}
}

// Rules returns a copy of the rule table.
func (c *Calculator) Rules() Rules { return append(Rules(nil), c.rules...) }

// Calculate applies every rule to every non-label column of g in place.
func (c *Calculator) Calculate(g *grid.Grid) Report {
	var rep Report
	warned := make(map[int]bool)

	for col := 0; col < g.Cols(); col++ {
		if col == grid.LabelColumn {
			continue
		}
		for i, r := range c.rules {
			if !g.InBounds(r.Target, col) {
				if !warned[i] {
					c.opts.Logger.Printf("calculator: warning: target row %d out of bounds (rows=%d), rule skipped", r.Target, g.Rows())
					warned[i] = true
				}
				rep.Skipped++
				continue
			}
			if !sourcesInBounds(g, r, col) {
				rep.Skipped++
				continue
			}
			if err := apply(g, r, col); err != nil {
				c.opts.Logger.Printf("calculator: error row=%d column=%q: %v", r.Target, g.Column(col), err)
				g.Set(r.Target, col, grid.Null())
				rep.Failed++
				continue
			}
			rep.Applied++
		}
	}

	metrics.RecordRule(c.opts.Job, "applied", rep.Applied)
	metrics.RecordRule(c.opts.Job, "skipped", rep.Skipped)
	metrics.RecordRule(c.opts.Job, "failed", rep.Failed)
	return rep
}

func sourcesInBounds(g *grid.Grid, r Rule, col int) bool {
	for _, s := range r.Sources {
		if !g.InBounds(s, col) {
			return false
		}
	}
	return true
}

// apply evaluates one (rule, column) pair. A panic, e.g. from a rule whose
// op does not match its source count, is returned as an error.
func apply(g *grid.Grid, r Rule, col int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rule %s: %v", r, p)
		}
	}()

	vals := make([]float64, len(r.Sources))
	for i, s := range r.Sources {
		vals[i] = g.At(s, col).Coerce()
	}
	g.Set(r.Target, col, grid.Number(r.Op.apply(vals)))
	return nil
}
