package tabular

import (
	"bytes"
	"strings"
	"testing"

	"querygrid/internal/grid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func TestFormatFromFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want Format
		err  bool
	}{
		{"report.csv", CSV, false},
		{"REPORT.CSV", CSV, false},
		{"q.xlsx", XLSX, false},
		{"macro.xlsm", XLSX, false},
		{"old.xls", "", true},
		{"notes.txt", "", true},
		{"noext", "", true},
	}
	for _, c := range cases {
		got, err := FormatFromFilename(c.name)
		if c.err {
			assert.ErrorIs(t, err, ErrUnsupportedFormat, c.name)
			continue
		}
		require.NoError(t, err, c.name)
		assert.Equal(t, c.want, got, c.name)
	}

	assert.Equal(t, ".xlsx", XLSX.Extension())
	assert.Equal(t, "text/csv", CSV.ContentType())
	assert.Contains(t, XLSX.ContentType(), "spreadsheetml")
}

func TestNormalizeHeaders(t *testing.T) {
	t.Parallel()

	got := normalizeHeaders([]string{"\uFEFFlabel", " A ", "", "A", "A", ""})
	assert.Equal(t, []string{"label", "A", "Unnamed: 2", "A.1", "A.2", "Unnamed: 5"}, got)
}

func TestReadCSV_NullsPaddingAndQuotes(t *testing.T) {
	t.Parallel()

	src := "\uFEFFlabel,A,B\n" +
		"revenue,SELECT 42,7\n" +
		"short,\n" +
		"long,1,2,3\n" +
		`quoted,"SELECT a, b FROM t",say "hi"` + "\n"

	g, err := ReadCSV(strings.NewReader(src), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"label", "A", "B"}, g.Columns())
	require.Equal(t, 4, g.Rows())

	s, ok := g.At(0, 1).Str()
	assert.True(t, ok)
	assert.Equal(t, "SELECT 42", s)
	assert.Equal(t, grid.KindText, g.At(0, 2).Kind(), "CSV fields stay text")

	assert.True(t, g.At(1, 1).IsNull(), "empty field is null")
	assert.True(t, g.At(1, 2).IsNull(), "missing field is null")
	assert.Equal(t, "2", g.At(2, 2).String(), "extra fields truncated")

	s, _ = g.At(3, 1).Str()
	assert.Equal(t, "SELECT a, b FROM t", s)
	s, _ = g.At(3, 2).Str()
	assert.Equal(t, `say "hi"`, s)
}

func TestReadCSV_Encodings(t *testing.T) {
	t.Parallel()

	enc, err := charmap.Windows1250.NewEncoder().String("label,A\nzisk,Příjem\n")
	require.NoError(t, err)

	g, err := ReadCSV(strings.NewReader(enc), Options{Encoding: "windows-1250"})
	require.NoError(t, err)
	s, _ := g.At(0, 1).Str()
	assert.Equal(t, "Příjem", s)

	_, err = ReadCSV(strings.NewReader("a\n"), Options{Encoding: "ebcdic"})
	assert.Error(t, err)

	assert.True(t, ValidEncoding(" Latin2 "))
	assert.False(t, ValidEncoding("klingon"))
	assert.Contains(t, Encodings(), "iso-8859-2")
}

func TestReadCSV_Semicolon(t *testing.T) {
	t.Parallel()

	g, err := ReadCSV(strings.NewReader("label;A\nx;1\n"), Options{Comma: ';'})
	require.NoError(t, err)
	assert.Equal(t, "1", g.At(0, 1).String())
}

func TestReadCSV_Empty(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader(""), Options{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	g := grid.New([]string{"label", "A", "B"}, [][]grid.Cell{
		{grid.Text("total"), grid.Number(42), grid.Null()},
		{grid.Text("ratio"), grid.Number(0.25), grid.Text("a,b")},
		{grid.Text("big"), grid.Number(1e21), grid.Number(-3)},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, g))

	want := "label,A,B\n" +
		"total,42,\n" +
		"ratio,0.25,\"a,b\"\n" +
		"big,1000000000000000000000,-3\n"
	assert.Equal(t, want, buf.String())
}

func TestCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	src := "label,A,B\nx,SELECT 1,\ny,,3.5\n"
	g, err := Read(strings.NewReader(src), CSV, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g, CSV))
	assert.Equal(t, src, buf.String())
}

func TestXLSX_WriteThenRead(t *testing.T) {
	t.Parallel()

	in := grid.New([]string{"label", "A", "B"}, [][]grid.Cell{
		{grid.Text("revenue"), grid.Number(42), grid.Text("SELECT 1")},
		{grid.Text("blank"), grid.Null(), grid.Number(-1.5)},
		{grid.Text("digits"), grid.Text("007"), grid.Null()},
	})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in, XLSX))

	out, err := Read(bytes.NewReader(buf.Bytes()), XLSX, Options{})
	require.NoError(t, err)

	assert.Equal(t, in.Columns(), out.Columns())
	require.Equal(t, in.Rows(), out.Rows())
	assert.True(t, out.Equal(in), "got %v", out)
	assert.Equal(t, grid.KindText, out.At(2, 1).Kind(), "string cells holding digits stay text")
}

func TestReadXLSX_SheetSelectionAndTypes(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer f.Close()
	_, err := f.NewSheet("Queries")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Queries", "A1", &[]any{"label", "", "A"}))
	require.NoError(t, f.SetSheetRow("Queries", "A2", &[]any{"flag", true, 3}))
	require.NoError(t, f.SetCellFormula("Queries", "C3", "=1+1"))
	require.NoError(t, f.SetCellValue("Queries", "A3", "formula"))

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)

	g, err := ReadXLSX(bytes.NewReader(buf.Bytes()), Options{Sheet: "Queries"})
	require.NoError(t, err)

	assert.Equal(t, []string{"label", "Unnamed: 1", "A"}, g.Columns())
	assert.Equal(t, "TRUE", g.At(0, 1).String())
	n, ok := g.At(0, 2).Float()
	assert.True(t, ok)
	assert.Equal(t, 3.0, n)
	assert.True(t, g.At(1, 1).IsNull())

	_, err = ReadXLSX(bytes.NewReader(buf.Bytes()), Options{Sheet: "Missing"})
	assert.Error(t, err)
}

func TestReadXLSX_Garbage(t *testing.T) {
	t.Parallel()

	_, err := ReadXLSX(strings.NewReader("not a zip"), Options{})
	assert.Error(t, err)
}

func TestWriteXLSX_CustomSheet(t *testing.T) {
	t.Parallel()

	g := grid.New([]string{"label"}, nil)
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, g, "Results"))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Results"}, f.GetSheetList())
}
