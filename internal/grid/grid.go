// Package grid holds the in-memory table that an uploaded report is loaded
// into. A Grid is rectangular and its shape is fixed at construction: callers
// replace cell contents with Set but can never add or remove rows or columns.
//
// Rows are addressed by zero-based data-row index (the header row of the
// source file is not a row; it supplies the column labels). Columns are
// addressed by ordinal.
package grid

import "fmt"

// LabelColumn is the ordinal of the column holding row labels.
const LabelColumn = 0

// Grid is a mutable, rectangular table of cells. It is not safe for
// concurrent use; a grid is owned by a single request at a time.
type Grid struct {
	columns []string
	rows    [][]Cell
}

// New builds a grid with the given column labels. Every row is padded with
// Null (or truncated) to len(columns) so the result is rectangular. The rows
// slice is adopted, not copied.
func New(columns []string, rows [][]Cell) *Grid {
	cols := append([]string(nil), columns...)
	for i, r := range rows {
		switch {
		case len(r) < len(cols):
			padded := make([]Cell, len(cols))
			copy(padded, r)
			rows[i] = padded
		case len(r) > len(cols):
			rows[i] = r[:len(cols)]
		}
	}
	return &Grid{columns: cols, rows: rows}
}

// Rows returns the number of data rows.
func (g *Grid) Rows() int { return len(g.rows) }

// Cols returns the number of columns.
func (g *Grid) Cols() int { return len(g.columns) }

// Columns returns a copy of the column labels.
func (g *Grid) Columns() []string { return append([]string(nil), g.columns...) }

// Column returns the label of column col.
func (g *Grid) Column(col int) string { return g.columns[col] }

// InBounds reports whether (row, col) addresses a cell of g.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < len(g.rows) && col >= 0 && col < len(g.columns)
}

// At returns the cell at (row, col). It panics when out of bounds.
func (g *Grid) At(row, col int) Cell { return g.rows[row][col] }

// Set replaces the cell at (row, col). It panics when out of bounds.
func (g *Grid) Set(row, col int, c Cell) { g.rows[row][col] = c }

// Row returns a copy of row r.
func (g *Grid) Row(r int) []Cell { return append([]Cell(nil), g.rows[r]...) }

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	rows := make([][]Cell, len(g.rows))
	for i, r := range g.rows {
		rows[i] = append([]Cell(nil), r...)
	}
	return &Grid{columns: g.Columns(), rows: rows}
}

// Equal reports whether g and o have the same labels, shape and cells.
func (g *Grid) Equal(o *Grid) bool {
	if g.Rows() != o.Rows() || g.Cols() != o.Cols() {
		return false
	}
	for i := range g.columns {
		if g.columns[i] != o.columns[i] {
			return false
		}
	}
	for r := range g.rows {
		for c := range g.rows[r] {
			if !g.rows[r][c].Equal(o.rows[r][c]) {
				return false
			}
		}
	}
	return true
}

// String renders the shape for logs, e.g. "grid(42x3)".
func (g *Grid) String() string {
	return fmt.Sprintf("grid(%dx%d)", g.Rows(), g.Cols())
}
