// Package tabular converts uploaded CSV and XLSX files to grids and back.
//
// The first row of a file supplies the column labels; every following row is
// a data row. Empty fields become Null cells so that classification and
// numeric coercion see a missing value rather than an empty string.
package tabular

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"querygrid/internal/grid"
)

var (
	// ErrUnsupportedFormat is returned for file extensions other than
	// .csv, .xlsx and .xlsm.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyInput is returned when a file has no header row.
	ErrEmptyInput = errors.New("file has no header row")
)

// Format identifies a tabular file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// FormatFromFilename picks the format from name's extension.
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return CSV, nil
	case ".xlsx", ".xlsm":
		return XLSX, nil
	default:
		return "", fmt.Errorf("%w: %q (allowed: .csv, .xlsx, .xlsm)", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Extension returns the file extension written for f, including the dot.
func (f Format) Extension() string { return "." + string(f) }

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Options tunes decoding. The zero value reads UTF-8, comma-separated CSV
// and the first worksheet of an XLSX file.
type Options struct {
	// Encoding names the CSV character set, e.g. "windows-1250". Empty means
	// UTF-8.
	Encoding string
	// Comma is the CSV field delimiter. Zero means ','.
	Comma rune
	// Sheet selects the XLSX worksheet. Empty means the first sheet.
	Sheet string
}

// Read decodes r as format f.
func Read(r io.Reader, f Format, opts Options) (*grid.Grid, error) {
	switch f {
	case CSV:
		return ReadCSV(r, opts)
	case XLSX:
		return ReadXLSX(r, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Write encodes g as format f.
func Write(w io.Writer, g *grid.Grid, f Format) error {
	switch f {
	case CSV:
		return WriteCSV(w, g)
	case XLSX:
		return WriteXLSX(w, g, "")
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// normalizeHeaders strips a leading BOM, names blank headers "Unnamed: N"
// and disambiguates repeated labels as "X.1", "X.2", ...
func normalizeHeaders(h []string) []string {
	res := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimSpace(strings.TrimPrefix(c, utf8BOM))
		}
		if c == "" {
			c = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[c]; dup {
			seen[c] = n + 1
			c = fmt.Sprintf("%s.%d", c, n+1)
		}
		seen[c] = 0
		res[i] = c
	}
	return res
}

// fieldCell maps a raw text field to a cell; empty fields are Null.
func fieldCell(s string) grid.Cell {
	if s == "" {
		return grid.Null()
	}
	return grid.Text(s)
}
