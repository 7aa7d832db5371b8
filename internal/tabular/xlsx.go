package tabular

import (
	"fmt"
	"io"
	"strconv"

	"querygrid/internal/grid"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet names the worksheet WriteXLSX creates.
const DefaultSheet = "Sheet1"

// ReadXLSX decodes one worksheet of an XLSX workbook. Numeric cells,
// including formulas with a cached numeric result, become Number cells
// (dates arrive as serial numbers); everything else is kept as text.
func ReadXLSX(r io.Reader, opts Options) (*grid.Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("tabular: open xlsx: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, ErrEmptyInput
		}
		sheet = list[0]
	}

	it, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("tabular: sheet %q: %w", sheet, err)
	}
	defer it.Close()

	var (
		headers []string
		rows    [][]grid.Cell
		rowNum  int
	)
	for it.Next() {
		rowNum++
		vals, err := it.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("tabular: read xlsx row %d: %w", rowNum, err)
		}
		if headers == nil {
			if len(vals) == 0 {
				return nil, ErrEmptyInput
			}
			headers = normalizeHeaders(vals)
			continue
		}
		row := make([]grid.Cell, len(vals))
		for c, v := range vals {
			row[c], err = xlsxCell(f, sheet, c+1, rowNum, v)
			if err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("tabular: read xlsx: %w", err)
	}
	if headers == nil {
		return nil, ErrEmptyInput
	}
	return grid.New(headers, rows), nil
}

func xlsxCell(f *excelize.File, sheet string, col, row int, raw string) (grid.Cell, error) {
	if raw == "" {
		return grid.Null(), nil
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return grid.Cell{}, fmt.Errorf("tabular: %w", err)
	}
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return grid.Cell{}, fmt.Errorf("tabular: cell %s: %w", name, err)
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return grid.Number(v), nil
		}
	case excelize.CellTypeBool:
		if raw == "1" {
			return grid.Text("TRUE"), nil
		}
		return grid.Text("FALSE"), nil
	}
	return grid.Text(raw), nil
}

// WriteXLSX encodes g as a single-sheet workbook with a header row. Null
// cells are left blank, numbers are written as numeric cells.
func WriteXLSX(w io.Writer, g *grid.Grid, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("tabular: sheet name: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("tabular: stream writer: %w", err)
	}

	header := make([]any, g.Cols())
	for c, name := range g.Columns() {
		header[c] = name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("tabular: write xlsx header: %w", err)
	}

	vals := make([]any, g.Cols())
	for r := 0; r < g.Rows(); r++ {
		for c, cell := range g.Row(r) {
			vals[c] = xlsxValue(cell)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("tabular: %w", err)
		}
		if err := sw.SetRow(cell, vals); err != nil {
			return fmt.Errorf("tabular: write xlsx row %d: %w", r, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("tabular: flush xlsx: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("tabular: write xlsx: %w", err)
	}
	return nil
}

func xlsxValue(c grid.Cell) any {
	switch c.Kind() {
	case grid.KindNumber:
		f, _ := c.Float()
		return f
	case grid.KindText:
		s, _ := c.Str()
		return s
	default:
		return nil
	}
}
