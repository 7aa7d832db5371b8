package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"querygrid/internal/grid"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// encodings maps accepted CSV charset names to decoders. UTF-8 needs no
// decoding and maps to nil.
var encodings = map[string]encoding.Encoding{
	"":             nil,
	"utf-8":        nil,
	"utf8":         nil,
	"utf-8-sig":    nil,
	"utf-16":       unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	"windows-1250": charmap.Windows1250,
	"cp1250":       charmap.Windows1250,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
	"latin2":       charmap.ISO8859_2,
}

// Encodings lists the accepted CSV charset names.
func Encodings() []string {
	out := make([]string, 0, len(encodings))
	for name := range encodings {
		if name != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ValidEncoding reports whether name is an accepted CSV charset.
func ValidEncoding(name string) bool {
	_, ok := encodings[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func decoder(r io.Reader, name string) (io.Reader, error) {
	enc, ok := encodings[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("tabular: unknown encoding %q", name)
	}
	if enc == nil {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// ReadCSV decodes a CSV file into a grid. Rows shorter than the header are
// padded with Null and longer rows are truncated; quoting is lenient.
func ReadCSV(r io.Reader, opts Options) (*grid.Grid, error) {
	dr, err := decoder(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(dr)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	h, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("tabular: read csv header: %w", err)
	}
	headers := normalizeHeaders(h)

	var rows [][]grid.Cell
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tabular: read csv: %w", err)
		}
		row := make([]grid.Cell, len(rec))
		for i, v := range rec {
			row[i] = fieldCell(v)
		}
		rows = append(rows, row)
	}
	return grid.New(headers, rows), nil
}

// WriteCSV encodes g as UTF-8 CSV with a header row. Null cells are written
// as empty fields and numbers in their shortest form.
func WriteCSV(w io.Writer, g *grid.Grid) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(g.Columns()); err != nil {
		return fmt.Errorf("tabular: write csv header: %w", err)
	}
	rec := make([]string, g.Cols())
	for r := 0; r < g.Rows(); r++ {
		for c, cell := range g.Row(r) {
			rec[c] = cell.String()
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("tabular: write csv row %d: %w", r, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("tabular: write csv: %w", err)
	}
	return nil
}
